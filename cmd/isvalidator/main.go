// isvalidator: serves and evaluates the is_validator extension function.
// Subcommands: serve, functions, eval, install-pg.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/p2p-org/polkadot-profit-transformer/internal/config"
	"github.com/p2p-org/polkadot-profit-transformer/internal/udf"
)

var (
	cfg      config.Config
	registry *udf.Registry

	rootCmd = &cobra.Command{
		Use:           "isvalidator",
		Short:         "Serve and evaluate the is_validator extension function",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
			slog.SetDefault(logger)
		},
	}
)

func init() {
	cfg = config.FromEnv()
	registry = udf.Builtins()
	rootCmd.AddCommand(newServeCmd(), newFunctionsCmd(), newEvalCmd(), newInstallPGCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}
