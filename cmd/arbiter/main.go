// Command arbiter boots the ETF arbitrage engine: load config, wire the
// strategy pipeline and storage, and either serve the control plane, run a
// one-shot mapping rebuild, or drive a backtest, depending on the
// subcommand — grounded on the same load-config/init-logger/wire-service
// bootstrap shape used by the service commands elsewhere in the stack.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "arbiter",
		Short: "ETF arbitrage opportunity engine",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml (default: config.yaml in . or else ./configs)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newBacktestCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
