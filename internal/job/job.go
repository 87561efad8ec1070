// Package job runs one selection, delivery and disposal cycle.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/abdulachik/autoposter/internal/content"
	"github.com/abdulachik/autoposter/internal/metrics"
	"github.com/abdulachik/autoposter/internal/poster"
	"github.com/abdulachik/autoposter/internal/selector"
)

// ErrBusy is returned when a cycle is requested while one is in flight.
var ErrBusy = errors.New("job cycle already running")

// Triggers recorded with each run.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// State is the position of a job in its cycle.
type State int32

const (
	Idle State = iota
	Selecting
	Delivering
	Disposing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Delivering:
		return "delivering"
	case Disposing:
		return "disposing"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Job ties a selector to a poster.
type Job struct {
	name     string
	selector selector.Selector
	poster   poster.Poster
	count    int
	metrics  *metrics.Metrics
	recorder Recorder
	logger   *slog.Logger

	running sync.Mutex
	state   atomic.Int32
}

// Config holds job configuration.
type Config struct {
	Name     string
	Selector selector.Selector
	Poster   poster.Poster

	// Count is the number of posts per cycle. Defaults to 1.
	Count int

	Metrics  *metrics.Metrics
	Recorder Recorder
	Logger   *slog.Logger
}

// New creates a job.
func New(cfg Config) (*Job, error) {
	if cfg.Name == "" {
		return nil, errors.New("job name is required")
	}
	if cfg.Selector == nil {
		return nil, fmt.Errorf("job %s: selector is required", cfg.Name)
	}
	if cfg.Poster == nil {
		return nil, fmt.Errorf("job %s: poster is required", cfg.Name)
	}
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = NopRecorder{}
	}

	return &Job{
		name:     cfg.Name,
		selector: cfg.Selector,
		poster:   cfg.Poster,
		count:    cfg.Count,
		metrics:  cfg.Metrics,
		recorder: cfg.Recorder,
		logger:   cfg.Logger.With("job", cfg.Name),
	}, nil
}

func (j *Job) Name() string { return j.name }

// Count is the default number of posts per cycle.
func (j *Job) Count() int { return j.count }

// State reports where the current cycle is.
func (j *Job) State() State { return State(j.state.Load()) }

// Options adjusts a single cycle.
type Options struct {
	// Count overrides the job's post count when positive.
	Count   int
	Trigger string
}

// Do runs one manual cycle with the job's defaults.
func (j *Job) Do(ctx context.Context) error {
	_, err := j.Run(ctx, Options{})
	return err
}

// Run executes one cycle and reports what it did. The returned error is
// non-nil when any post failed. Cancelling ctx stops new posts from
// starting but never interrupts one that is being delivered.
func (j *Job) Run(ctx context.Context, opts Options) (Summary, error) {
	if !j.running.TryLock() {
		return Summary{Job: j.name, Status: StatusFailed}, ErrBusy
	}
	defer j.running.Unlock()

	c := &cycle{
		job: j,
		summary: Summary{
			RunID:     uuid.NewString(),
			Job:       j.name,
			Trigger:   opts.Trigger,
			Requested: opts.Count,
			StartedAt: time.Now(),
		},
	}
	if c.summary.Requested <= 0 {
		c.summary.Requested = j.count
	}
	if c.summary.Trigger == "" {
		c.summary.Trigger = TriggerManual
	}
	c.logger = j.logger.With("run_id", c.summary.RunID)

	if err := j.recorder.StartRun(ctx, c.summary); err != nil {
		c.logger.Warn("failed to record run start", "error", err)
	}

	err := c.run(ctx)

	c.summary.FinishedAt = time.Now()
	c.summary.Err = err
	c.summary.Status = c.status(err)

	// History survives a cancelled caller.
	if rerr := j.recorder.FinishRun(context.WithoutCancel(ctx), c.summary); rerr != nil {
		c.logger.Warn("failed to record run result", "error", rerr)
	}
	j.metrics.ObserveCycle(j.name, c.summary.Status.metricResult(), c.summary.FinishedAt.Sub(c.summary.StartedAt))

	if err != nil {
		j.setState(Failed)
		c.logger.Error("cycle failed",
			"status", c.summary.Status,
			"posted", c.summary.Posted,
			"error", err,
		)
	} else {
		j.setState(Idle)
		c.logger.Info("cycle complete",
			"status", c.summary.Status,
			"posted", c.summary.Posted,
			"disposed", c.summary.Disposed,
			"duration", c.summary.FinishedAt.Sub(c.summary.StartedAt).Round(time.Millisecond),
		)
	}
	return c.summary, err
}

func (j *Job) setState(s State) {
	j.state.Store(int32(s))
}

// cycle is the state of one Run call.
type cycle struct {
	job     *Job
	summary Summary
	logger  *slog.Logger

	// aborted is set when a failure stopped the remaining posts.
	aborted bool
	invalid int
}

func (c *cycle) run(ctx context.Context) error {
	j := c.job

	j.setState(Selecting)
	var errs []error
	posts, err := j.selector.Choose(ctx, c.summary.Requested)
	switch {
	case errors.Is(err, content.ErrInvalidPost):
		// Malformed candidates were skipped; the rest still go out.
		c.logger.Warn("selection skipped candidates", "selected", len(posts), "error", err)
		errs = append(errs, fmt.Errorf("select posts: %w", err))
		c.invalid++
	case err != nil:
		c.aborted = true
		return fmt.Errorf("select posts: %w", err)
	}
	c.summary.Selected = len(posts)
	c.logger.Debug("selected posts", "requested", c.summary.Requested, "selected", len(posts))

	plog := c.logger.With("poster", j.poster.Name())
	defer func() {
		if cerr := j.poster.Close(); cerr != nil {
			plog.Warn("failed to close poster", "error", cerr)
		}
	}()
	if err := j.poster.Open(ctx); err != nil {
		c.aborted = true
		return fmt.Errorf("open poster %s: %w", j.poster.Name(), err)
	}

	for i, post := range posts {
		if err := ctx.Err(); err != nil {
			c.aborted = true
			errs = append(errs, fmt.Errorf("cycle stopped before post %d of %d: %w", i+1, len(posts), err))
			break
		}

		err := c.deliver(context.WithoutCancel(ctx), plog, post)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if !errors.Is(err, content.ErrInvalidPost) {
			c.aborted = true
			break
		}
		c.invalid++
	}

	if !c.aborted && len(posts) < c.summary.Requested {
		j.metrics.Depleted(j.name)
		if err := j.poster.OnNoCandidates(ctx); err != nil {
			errs = append(errs, fmt.Errorf("no candidates hook: %w", err))
		}
	}

	return errors.Join(errs...)
}

// deliver posts one selection and disposes of it when every destination
// accepted it.
func (c *cycle) deliver(ctx context.Context, plog *slog.Logger, post content.Post) error {
	j := c.job
	j.setState(Delivering)

	res, err := j.poster.Post(ctx, post)
	c.record(ctx, post, res)
	if err != nil {
		j.metrics.DeliveryFailed(j.name, j.poster.Name())
		if errors.Is(err, content.ErrInvalidPost) {
			plog.Warn("skipping invalid post", "post", post.String(), "error", err)
		} else {
			plog.Error("delivery failed", "post", post.String(), "delivered_to", len(res.Deliveries), "error", err)
		}
		return fmt.Errorf("post %s: %w", post.String(), err)
	}
	c.summary.Posted++

	j.setState(Disposing)
	derr := j.selector.Dispose(ctx, post)
	j.metrics.Disposed(j.name, derr)
	if derr != nil {
		// The post went out, so it counts as posted and is not retried.
		c.logger.Error("failed to dispose posted content", "origin", post.Origin, "error", derr)
		return nil
	}
	if post.HasOrigin() {
		c.summary.Disposed++
	}
	return nil
}

func (c *cycle) record(ctx context.Context, post content.Post, res poster.Result) {
	j := c.job
	for _, d := range res.Deliveries {
		j.metrics.Delivered(j.name, d.Poster, d.Messages())
		if err := j.recorder.RecordDelivery(ctx, c.summary.RunID, j.name, post.Origin, d); err != nil {
			c.logger.Warn("failed to record delivery", "poster", d.Poster, "chat_id", d.ChatID, "error", err)
		}
	}
}

func (c *cycle) status(err error) Status {
	switch {
	case c.aborted:
		return StatusFailed
	case err != nil && c.summary.Posted == 0 && c.invalid == 0:
		return StatusFailed
	case err != nil:
		return StatusPartial
	case c.summary.Selected == 0:
		return StatusEmpty
	default:
		return StatusSuccess
	}
}
