package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdulachik/autoposter/internal/app"
	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/scheduler"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the posting daemon",
	Long: `Run every enabled job on its schedule until interrupted.

Jobs without a schedule use DEFAULT_SCHEDULE. When HTTP_ADDR is set,
/healthz and /metrics are served on it.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.ValidateForServe(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	slog.Info("connecting to database", "path", cfg.DatabasePath)
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer a.Close()

	sched := scheduler.New(scheduler.Config{
		Notifier: a.Notifier,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})

	// Validate credentials on startup
	if me, err := a.Telegram.GetMe(ctx); err != nil {
		sched.Health().SetUnhealthy("telegram", err)
		slog.Error("failed to validate Telegram bot token", "error", err)
	} else {
		sched.Health().SetHealthy("telegram", "authenticated as @"+me.Username)
	}

	if err := scheduleJobs(ctx, a, sched); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- sched.Run(ctx)
	}()

	if cfg.HTTPAddr != "" {
		server := newHTTPServer(sched, a.Metrics)
		go func() {
			slog.Info("serving health and metrics", "addr", cfg.HTTPAddr)
			if err := server.Listen(cfg.HTTPAddr); err != nil {
				slog.Error("http server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := server.ShutdownWithContext(shutdownCtx); err != nil {
				slog.Warn("http server shutdown", "error", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		err = <-errCh
	case err = <-errCh:
	}

	slog.Info("shutting down...")
	if err != nil {
		return fmt.Errorf("scheduler error: %w", err)
	}
	return nil
}

// scheduleJobs registers every enabled job. Any job that cannot be built or
// scheduled stops startup.
func scheduleJobs(ctx context.Context, a *app.App, sched *scheduler.Scheduler) error {
	defs, err := a.Definitions(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}

	scheduled := 0
	for _, def := range defs {
		if !def.IsEnabled() {
			slog.Info("job disabled, not scheduling", "job", def.Name)
			continue
		}

		j, err := a.BuildJob(def)
		if err != nil {
			return fmt.Errorf("build job: %w", err)
		}

		spec := def.Schedule
		if spec == "" {
			spec = a.Config.DefaultSchedule
		}
		if err := sched.Add(j, spec); err != nil {
			return err
		}
		scheduled++
	}

	if scheduled == 0 {
		slog.Warn("no jobs scheduled", "config_dir", a.Config.ConfigDir)
	}
	return nil
}
