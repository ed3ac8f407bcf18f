package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"statuspage/internal/app"
	"statuspage/internal/config"
	"statuspage/internal/report"
	"statuspage/internal/retention"
	"statuspage/internal/status"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "statuspage",
		Short: "Public status page backed by periodic health checks",
		Long: `statuspage polls the configured probes, keeps a day-bucketed history of
their results and serves it as an HTML page and a JSON API.

Configuration comes from the environment, an optional .env file and a
probes YAML file. Send SIGHUP to reload the page options.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the collector and the HTTP server (default)",
			RunE:  runServe,
		},
		newStatusCmd(),
		newPurgeCmd(),
	)
	return root
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)
	logger.Info("starting statuspage", "addr", cfg.Addr, "base", cfg.BasePath, "store", cfg.Store)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("init failed", "err", err)
		return err
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("shutdown with error", "err", err)
		return err
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current status rollup from the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			backend, err := app.OpenStore(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer backend.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			resp, err := status.NewService(backend, config.NewHolder(cfg.Status)).GetStatus(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			fmt.Fprint(cmd.OutOrStdout(), report.Render(resp))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the API response instead of a table")
	return cmd
}

func newPurgeCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete snapshots older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if days <= 0 {
				days = cfg.Status.RetentionDays
			}
			backend, err := app.OpenStore(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer backend.Close()

			logger := newLogger(cfg.LogLevel)
			return retention.NewService(backend, logger.With("module", "retention"), nil).Run(cmd.Context(), days)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "days to keep (defaults to STATUS_RETENTION_DAYS)")
	return cmd
}
