package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cobra"

	"github.com/p2p-org/polkadot-profit-transformer/internal/config"
	"github.com/p2p-org/polkadot-profit-transformer/internal/pgfunc"
	"github.com/p2p-org/polkadot-profit-transformer/internal/server"
	"github.com/p2p-org/polkadot-profit-transformer/internal/udf"
)

// nullArg marks an absent argument on the command line, as in psql's COPY.
const nullArg = `\N`

var errNoDatabase = errors.New("DATABASE_URL or --database-url is required")

func newServeCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP invocation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				cfg.Addr = config.AddrFromPort(port)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if cfg.DatabaseURL != "" {
				if err := installPG(ctx, cfg.DatabaseURL); err != nil {
					return err
				}
			}
			return server.New(registry, slog.Default(), cfg.MaxBodyBytes).ListenAndServe(ctx, cfg.Addr)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "install functions into this Postgres on start")
	return cmd
}

func newFunctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List registered functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printFunctions(cmd.OutOrStdout(), registry.List())
		},
	}
}

func newEvalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "eval NAME [ARG...]",
		Short: `Invoke a function; pass \N for an absent argument`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := registry.Invoke(args[0], parseArgs(args[1:]))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), udf.FormatResult(res))
			return err
		},
	}
}

func newInstallPGCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install-pg",
		Short: "Create or replace is_validator in Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DatabaseURL == "" {
				return errNoDatabase
			}
			return installPG(cmd.Context(), cfg.DatabaseURL)
		},
	}
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres connection string")
	return cmd
}

func installPG(ctx context.Context, dsn string) error {
	pool, err := pgfunc.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	if err := pgfunc.Install(ctx, pool); err != nil {
		return err
	}
	slog.Info("installed sql function", "function", udf.IsValidatorName)
	return nil
}

func parseArgs(raw []string) []pgtype.Text {
	out := make([]pgtype.Text, len(raw))
	for i, s := range raw {
		if s != nullArg {
			out[i] = udf.Text(s)
		}
	}
	return out
}

func printFunctions(w io.Writer, descs []udf.Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPARAMS\tVERSION\tDESCRIPTION")
	for _, d := range descs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, strings.Join(d.Params, ", "), d.Version, d.Description)
	}
	return tw.Flush()
}
