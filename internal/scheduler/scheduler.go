package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/abdulachik/autoposter/internal/job"
	"github.com/abdulachik/autoposter/internal/metrics"
	"github.com/abdulachik/autoposter/internal/notify"
)

// Runner is a job the scheduler can fire.
type Runner interface {
	Name() string
	Run(ctx context.Context, opts job.Options) (job.Summary, error)
}

// Scheduler fires jobs on their cron schedules.
type Scheduler struct {
	cron     *cron.Cron
	parser   cron.Parser
	health   *Health
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	location *time.Location

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// Config holds scheduler configuration.
type Config struct {
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// Location for cron expressions. Defaults to local time.
	Location *time.Location
}

// New creates a new scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewLogNotifier(logger)
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{logger: logger.With("component", "cron")}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		parser:   parser,
		health:   NewHealth(),
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   logger,
		location: cfg.Location,
		entries:  make(map[string]cron.EntryID),
	}
}

// Add registers j to fire on spec, a five-field cron expression or a
// descriptor such as @hourly or @every 30m.
func (s *Scheduler) Add(j Runner, spec string) error {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("job %s: parse schedule %q: %w", j.Name(), spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.entries[j.Name()]; dup {
		return fmt.Errorf("job %s is already scheduled", j.Name())
	}
	s.entries[j.Name()] = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(j) }))
	s.health.SetHealthy(j.Name(), "scheduled "+spec)

	s.logger.Info("job scheduled", "job", j.Name(), "schedule", spec, "next", schedule.Next(time.Now().In(s.location)))
	return nil
}

// Remove unschedules a job. Removing an unknown job is a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
		s.health.Remove(name)
	}
}

// Entry describes one scheduled job.
type Entry struct {
	Job  string
	Next time.Time
	Prev time.Time
}

// Entries lists the scheduled jobs sorted by name. Before Run starts, Next
// is computed from the schedule.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().In(s.location)
	out := make([]Entry, 0, len(s.entries))
	for name, id := range s.entries {
		e := s.cron.Entry(id)
		next := e.Next
		if next.IsZero() && e.Schedule != nil {
			next = e.Schedule.Next(now)
		}
		out = append(out, Entry{Job: name, Next: next, Prev: e.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// Run starts firing jobs and blocks until ctx is done. Shutdown stops new
// firings and waits for cycles already in progress.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	jobs := len(s.entries)
	s.mu.Unlock()

	s.logger.Info("starting scheduler", "jobs", jobs)
	s.health.SetHealthy("scheduler", "running")
	s.cron.Start()

	<-ctx.Done()

	s.logger.Info("scheduler shutting down, waiting for running jobs")
	<-s.cron.Stop().Done()
	s.health.SetUnhealthy("scheduler", errors.New("stopped"))
	s.logger.Info("scheduler stopped")
	return nil
}

// fire runs one scheduled cycle. Cycles are never cancelled by shutdown.
func (s *Scheduler) fire(j Runner) {
	name := j.Name()
	start := time.Now()
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			s.health.SetUnhealthy(name, err)
			s.metrics.ObserveCycle(name, metrics.ResultPanic, time.Since(start))
			s.logger.Error("job panicked", "job", name, "panic", r, "stack", string(debug.Stack()))
			s.notifyFailure(ctx, name, "", err)
		}
	}()

	sum, err := j.Run(ctx, job.Options{Trigger: job.TriggerSchedule})
	switch {
	case errors.Is(err, job.ErrBusy):
		s.metrics.ObserveCycle(name, metrics.ResultSkipped, time.Since(start))
		s.logger.Info("job still running, skipping firing", "job", name)
	case err != nil:
		s.health.SetUnhealthy(name, err)
		s.notifyFailure(ctx, name, sum.RunID, err)
	default:
		s.health.SetHealthy(name, fmt.Sprintf("%s: posted %d of %d", sum.Status, sum.Posted, sum.Requested))
	}
}

func (s *Scheduler) notifyFailure(ctx context.Context, name, runID string, err error) {
	nerr := s.notifier.Send(ctx, notify.JobFailed(name, runID, err))
	if nerr != nil {
		s.logger.Warn("failed to send failure notification", "job", name, "error", nerr)
	}
}

// Health returns the health tracker.
func (s *Scheduler) Health() *Health {
	return s.health
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
