package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/abdulachik/autoposter/internal/chatlock"
	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/db"
	"github.com/abdulachik/autoposter/internal/job"
	"github.com/abdulachik/autoposter/internal/metrics"
	"github.com/abdulachik/autoposter/internal/notify"
	"github.com/abdulachik/autoposter/internal/poster"
	"github.com/abdulachik/autoposter/internal/selector"
	"github.com/abdulachik/autoposter/internal/telegram"
)

// App is the main application container holding all dependencies.
type App struct {
	Config   *config.Config
	Store    *db.Store
	Locks    *chatlock.Arbitrator
	Metrics  *metrics.Metrics
	Notifier notify.Notifier
	Logger   *slog.Logger

	// Telegram is nil when no bot token is configured.
	Telegram *telegram.Client
}

// New creates a new application instance with all dependencies wired up.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := db.NewStore(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	if _, err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{
		Config:  cfg,
		Store:   store,
		Locks:   chatlock.New(),
		Metrics: metrics.New(),
		Logger:  slog.Default(),
	}

	if cfg.TelegramBotToken != "" {
		a.Telegram, err = a.newClient(cfg.TelegramBotToken)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	a.Notifier = notify.NewLogNotifier(a.Logger)
	if cfg.NotifyChatID != "" && a.Telegram != nil {
		a.Notifier, err = notify.NewTelegramNotifier(notify.TelegramConfig{
			Sender: a.Telegram,
			ChatID: cfg.NotifyChatID,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) newClient(token string) (*telegram.Client, error) {
	return telegram.New(telegram.Config{
		Token:      token,
		BaseURL:    a.Config.TelegramAPIURL,
		Interval:   a.Config.TelegramRateLimit,
		MaxRetries: a.Config.TelegramMaxRetries,
		Logger:     a.Logger,
	})
}

// JobDeps returns the collaborators shared by every job.
func (a *App) JobDeps() job.Deps {
	posterDeps := poster.Deps{
		Logger:     a.Logger,
		Arbitrator: a.Locks,
		NewTransport: func(token string) (poster.Transport, error) {
			return a.newClient(token)
		},
	}
	if a.Telegram != nil {
		posterDeps.Transport = a.Telegram
	}

	return job.Deps{
		Selector: selector.Deps{
			Logger:     a.Logger,
			StagingDir: a.Config.SessionsDir,
		},
		Poster:   posterDeps,
		Metrics:  a.Metrics,
		Recorder: job.NewStoreRecorder(a.Store),
		Logger:   a.Logger,
	}
}

// BuildJob resolves a definition against the shared collaborators.
func (a *App) BuildJob(def config.Definition) (*job.Job, error) {
	return job.FromDefinition(def, a.JobDeps())
}

// BuildSelector resolves only a definition's selector.
func (a *App) BuildSelector(def config.Definition) (selector.Selector, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return selector.FromSpec(def.Selector, a.JobDeps().Selector)
}

// Definition finds a job by name, preferring the job store over CONFIG_DIR.
func (a *App) Definition(ctx context.Context, name string) (config.Definition, error) {
	row, err := a.Store.GetJob(ctx, name)
	switch {
	case err == nil:
		return fromRow(row)
	case !errors.Is(err, sql.ErrNoRows):
		return config.Definition{}, fmt.Errorf("get job %s: %w", name, err)
	}

	return config.LoadDefinition(a.Config.ConfigDir, name)
}

// Definitions returns every known job sorted by name. Stored jobs replace
// files of the same name.
func (a *App) Definitions(ctx context.Context) ([]config.Definition, error) {
	files, err := config.LoadDefinitions(a.Config.ConfigDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	byName := make(map[string]config.Definition, len(files))
	for _, def := range files {
		byName[def.Name] = def
	}

	rows, err := a.Store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	for _, row := range rows {
		def, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		byName[def.Name] = def
	}

	defs := make([]config.Definition, 0, len(byName))
	for _, def := range byName {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// Import stores a definition, replacing one of the same name.
func (a *App) Import(ctx context.Context, def config.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	// Resolve the selector and poster now so a bad definition never lands in the store.
	if _, err := a.BuildJob(def); err != nil {
		return err
	}

	data, err := def.Marshal()
	if err != nil {
		return fmt.Errorf("encode definition: %w", err)
	}

	return a.Store.UpsertJob(ctx, db.UpsertJobParams{
		Name:       def.Name,
		Definition: string(data),
		Schedule:   def.Schedule,
		Enabled:    def.IsEnabled(),
	})
}

func fromRow(row db.Job) (config.Definition, error) {
	def, err := config.ParseDefinition([]byte(row.Definition), config.FormatJSON)
	if err != nil {
		return config.Definition{}, fmt.Errorf("stored job %s: %w", row.Name, err)
	}
	enabled := row.Enabled
	def.Enabled = &enabled
	if row.Schedule != "" {
		def.Schedule = row.Schedule
	}
	return def, nil
}

// Close closes all resources.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
