package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tech-arch1tect/rentid/app"
	"github.com/tech-arch1tect/rentid/config"
)

const commandTimeout = 30 * time.Second

type configLoader func() (*config.Config, error)

func main() {
	if err := newRootCommand(loadConfig).Execute(); err != nil {
		var exitErr *app.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRootCommand(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rentid",
		Short:         "Account registration, verification and session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand(load))
	cmd.AddCommand(newMigrateCommand(load))
	cmd.AddCommand(newCleanupCommand(load))
	cmd.AddCommand(newPurgePendingCommand(load))
	return cmd
}

func newServeCommand(load configLoader) *cobra.Command {
	var fxLogs bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			builder := app.NewApp().WithConfig(cfg)
			if fxLogs {
				builder.WithFxLogs()
			}
			application, err := builder.Build()
			if err != nil {
				return err
			}
			return application.Run()
		},
	}

	cmd.Flags().BoolVar(&fxLogs, "fx-logs", false, "Log dependency injection events at debug level")
	return cmd
}

func newMigrateCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			cfg.Database.AutoMigrate = true
			return runOnce(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				a.Logger().Info("database schema is up to date")
				return writeJSON(cmd.OutOrStdout(), map[string]int{"models": len(app.Models())})
			})
		},
	}
}

func newCleanupCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired verification records and revoked tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				report, err := a.Maintenance().Cleanup(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newPurgePendingCommand(load configLoader) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge-pending",
		Short: "Delete accounts that never completed email verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if olderThan > 0 {
				cfg.Verification.PendingPurgeAfter = olderThan
			}
			return runOnce(cmd.Context(), cfg, func(ctx context.Context, a *app.App) error {
				report, err := a.Maintenance().PurgePending(ctx)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Override the pending account age threshold (e.g. 168h)")
	return cmd
}

// runOnce starts the application without HTTP or periodic workers, runs fn
// and stops it again.
func runOnce(ctx context.Context, cfg *config.Config, fn func(context.Context, *app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.Maintenance.Enabled = false

	a, err := app.NewApp().WithConfig(cfg).WithoutHTTP().Build()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := a.Start(ctx); err != nil {
		return err
	}

	runErr := fn(ctx, a)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), commandTimeout)
	defer stopCancel()
	if err := a.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
