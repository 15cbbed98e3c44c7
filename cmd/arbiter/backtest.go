package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

func newBacktestCmd() *cobra.Command {
	var (
		startFlag string
		endFlag   string
		fromFile  string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a one-shot backtest and print its result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			cfg := model.BacktestConfig{
				EngineConfig:  a.cfg.Engine,
				Granularity:   model.GranularityDaily,
				Interpolation: model.InterpolationStep,
			}

			if fromFile != "" {
				data, err := os.ReadFile(fromFile)
				if err != nil {
					return fmt.Errorf("read backtest config: %w", err)
				}
				if err := json.Unmarshal(data, &cfg); err != nil {
					return fmt.Errorf("parse backtest config: %w", err)
				}
			} else {
				start, err := time.Parse("2006-01-02", startFlag)
				if err != nil {
					return fmt.Errorf("parse --start: %w", err)
				}
				end, err := time.Parse("2006-01-02", endFlag)
				if err != nil {
					return fmt.Errorf("parse --end: %w", err)
				}
				cfg.StartDate, cfg.EndDate = start, end
			}

			jobID, err := a.driver.Start(context.Background(), cfg)
			if err != nil {
				return fmt.Errorf("start backtest: %w", err)
			}

			for {
				job, ok := a.driver.Status(jobID)
				if !ok {
					return fmt.Errorf("backtest job %q vanished", jobID)
				}
				if job.Status == model.BacktestCompleted || job.Status == model.BacktestFailed || job.Status == model.BacktestCancelled {
					break
				}
				time.Sleep(200 * time.Millisecond)
			}

			job, _ := a.driver.Status(jobID)
			if job.Status != model.BacktestCompleted {
				return fmt.Errorf("backtest ended with status %s: %s", job.Status, job.Error)
			}

			result, _ := a.driver.Result(jobID)
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal result: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&startFlag, "start", "", "backtest start date, YYYY-MM-DD")
	cmd.Flags().StringVar(&endFlag, "end", "", "backtest end date, YYYY-MM-DD")
	cmd.Flags().StringVar(&fromFile, "config", "", "path to a JSON BacktestConfig, overrides --start/--end")

	return cmd
}
