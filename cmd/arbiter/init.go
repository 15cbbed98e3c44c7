package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelfin/etf-arbiter/internal/provider"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Rebuild the stock<->ETF mapping store and persist it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			up, ok := a.provider.(interface{ ETFUniverse() []string })
			if !ok {
				return fmt.Errorf("configured provider cannot enumerate an ETF universe")
			}
			hp, ok := a.provider.(provider.HoldingsProvider)
			if !ok {
				return fmt.Errorf("configured provider does not serve holdings")
			}

			if err := a.mapping.Rebuild(up.ETFUniverse(), hp); err != nil {
				return fmt.Errorf("rebuild mapping: %w", err)
			}
			if err := a.mapping.Save(a.cfg.MappingPath); err != nil {
				return fmt.Errorf("save mapping: %w", err)
			}

			fmt.Printf("mapping rebuilt: %d stocks mapped, saved to %s\n", len(a.mapping.ListStocks()), a.cfg.MappingPath)
			return nil
		},
	}
}
