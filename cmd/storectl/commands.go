package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dejobratic/storefront/internal/auth"
	"github.com/dejobratic/storefront/internal/config"
	"github.com/dejobratic/storefront/internal/platform"
	"github.com/dejobratic/storefront/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric/noop"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Operate the storefront order ledger",
		SilenceUsage: true,
	}

	root.AddCommand(
		newSweepCommand(),
		newOrphansCommand(),
		newPurgeCommand(),
		newTokenCommand(),
	)
	return root
}

func newSweepCommand() *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile pending orders against the payment processor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPlatform(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, p *platform.Platform) error {
				result, err := p.Service.SweepPending(ctx, olderThan, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*time.Minute, "only check orders pending for at least this long")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of orders to check")
	return cmd
}

func newOrphansCommand() *cobra.Command {
	var (
		since time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List processor checkout sessions that have no local order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPlatform(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, p *platform.Platform) error {
				sessions, err := p.Service.FindOrphanSessions(ctx, time.Now().Add(-since), limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sessions)
			})
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "look at sessions created within this window")
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum number of sessions to inspect")
	return cmd
}

func newPurgeCommand() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "purge-idempotency",
		Short: "Delete stored checkout responses older than max-age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPlatform(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, p *platform.Platform) error {
				removed, err := p.Idempotency.Purge(ctx, maxAge)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d idempotency keys\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "keys older than this are removed")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var (
		identity auth.Identity
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed identity token for local testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			token, err := auth.NewTokens(secret).Mint(identity, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&identity.UserID, "user", "", "user id to embed")
	cmd.Flags().StringVar(&identity.Email, "email", "", "email to embed")
	cmd.Flags().StringVar(&identity.Role, "role", "", "role to embed, e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// withPlatform opens the backing services for the duration of fn.
func withPlatform(ctx context.Context, logOut io.Writer, fn func(context.Context, *platform.Platform) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg.Database.AutoMigrate = false

	logger := telemetry.NewLogger(logOut, telemetry.ParseLevel(cfg.Telemetry.LogLevel), slog.String("service", "storectl"))

	p, err := platform.Open(ctx, cfg, noop.NewMeterProvider().Meter("storectl"), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(context.Background()); err != nil {
			logger.Error("failed to release connections", "error", err)
		}
	}()

	return fn(ctx, p)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
