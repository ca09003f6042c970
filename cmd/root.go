// Package cmd wires the CLI commands.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/0xsequent/arbswap/utils"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "arbswap",
	Short: "Cross-venue swap executor with flash-loan arbitrage",
	Long: `arbswap quotes a token swap across multiple venues concurrently,
detects cross-venue arbitrage spreads, and executes either a flash-loan
funded atomic bundle through a private relay or a direct swap.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// ExecuteContext runs the root command under the given context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
