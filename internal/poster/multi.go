package poster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/content"
)

// MultiPoster fans a post out to several posters. Every sub-poster runs to
// completion before the first failure is returned.
type MultiPoster struct {
	name    string
	posters []Poster
	logger  *slog.Logger
}

type multiSpec struct {
	Name string `json:"name"`
}

func multiFromSpec(spec config.Spec, deps Deps) (Poster, error) {
	var settings multiSpec
	if err := spec.Decode(&settings); err != nil {
		return nil, fmt.Errorf("multi poster: %w", err)
	}

	children, err := spec.Specs("posters")
	if err != nil {
		return nil, fmt.Errorf("multi poster: %w", err)
	}

	posters := make([]Poster, 0, len(children))
	for i, child := range children {
		p, err := FromSpec(child, deps)
		if err != nil {
			return nil, fmt.Errorf("multi poster %s: posters[%d]: %w", settings.Name, i, err)
		}
		posters = append(posters, p)
	}

	return NewMultiPoster(settings.Name, posters, deps.logger())
}

// NewMultiPoster creates a fan-out poster.
func NewMultiPoster(name string, posters []Poster, logger *slog.Logger) (*MultiPoster, error) {
	if name == "" {
		return nil, fmt.Errorf("multi poster: %w: name", config.ErrMissingField)
	}
	if len(posters) == 0 {
		return nil, fmt.Errorf("multi poster %s: %w: posters", name, config.ErrMissingField)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiPoster{
		name:    name,
		posters: posters,
		logger:  logger.With("poster", name),
	}, nil
}

// Name returns the poster name.
func (m *MultiPoster) Name() string {
	return m.name
}

// Posters returns the wrapped posters.
func (m *MultiPoster) Posters() []Poster {
	return m.posters
}

// Open opens every sub-poster.
func (m *MultiPoster) Open(ctx context.Context) error {
	return m.each(func(p Poster) error {
		return p.Open(ctx)
	})
}

// Close closes every sub-poster and joins their errors.
func (m *MultiPoster) Close() error {
	errs := make([]error, len(m.posters))

	var g errgroup.Group
	for i, p := range m.posters {
		g.Go(func() error {
			errs[i] = p.Close()
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}

// Post delivers to every sub-poster concurrently.
func (m *MultiPoster) Post(ctx context.Context, post content.Post) (Result, error) {
	if err := post.Validate(); err != nil {
		return Result{}, err
	}

	results := make([]Result, len(m.posters))

	var g errgroup.Group
	for i, p := range m.posters {
		g.Go(func() error {
			res, err := p.Post(ctx, post)
			results[i] = res
			if err != nil {
				m.logger.Error("sub-poster failed", "sub_poster", p.Name(), "error", err)
				return fmt.Errorf("%s: %w", p.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	var combined Result
	for _, res := range results {
		combined.Deliveries = append(combined.Deliveries, res.Deliveries...)
	}
	return combined, err
}

// OnNoCandidates notifies every sub-poster.
func (m *MultiPoster) OnNoCandidates(ctx context.Context) error {
	return m.each(func(p Poster) error {
		return p.OnNoCandidates(ctx)
	})
}

func (m *MultiPoster) each(fn func(Poster) error) error {
	var g errgroup.Group
	for _, p := range m.posters {
		g.Go(func() error {
			if err := fn(p); err != nil {
				return fmt.Errorf("%s: %w", p.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
