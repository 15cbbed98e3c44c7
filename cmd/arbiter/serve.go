package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kestrelfin/etf-arbiter/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane HTTP server and the monitor loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			server := api.New(a.log, a.cfg, a.metrics, a.engine, a.driver, a.coordinator,
				a.mapping, a.watchlist, a.repo, a.registries, a.provider)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a.engine.StartMonitor(ctx, a.watchlist.Codes)
			a.coordinator.SetMonitorRunning(true)
			a.log.Info("monitor loop started")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Run(ctx) }()

			select {
			case <-quit:
				a.log.Info("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					a.log.Error("http server error", zap.Error(err))
				}
			}

			cancel()
			a.engine.StopMonitor()
			return nil
		},
	}
}
