package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/db"
	"github.com/spf13/cobra"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Run all pending database migrations to set up or update the schema.

With --down the most recent migration is reverted instead.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Revert the most recent migration")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	slog.Info("connecting to database", "path", cfg.DatabasePath)
	store, err := db.NewStore(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	if migrateDown {
		file, err := store.Rollback(ctx)
		if errors.Is(err, db.ErrNoMigrations) {
			slog.Info("nothing to revert")
			return nil
		}
		if err != nil {
			return fmt.Errorf("revert migration: %w", err)
		}
		slog.Info("migration reverted", "file", file)
		return nil
	}

	n, err := store.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("migrations completed successfully", "applied", n)
	return nil
}
