package job

import (
	"fmt"
	"log/slog"

	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/metrics"
	"github.com/abdulachik/autoposter/internal/poster"
	"github.com/abdulachik/autoposter/internal/selector"
)

// Deps are the shared collaborators every job built from a definition uses.
type Deps struct {
	Selector selector.Deps
	Poster   poster.Deps
	Metrics  *metrics.Metrics
	Recorder Recorder
	Logger   *slog.Logger
}

// FromDefinition resolves a definition's selector and poster and builds the job.
func FromDefinition(def config.Definition, deps Deps) (*Job, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	sel, err := selector.FromSpec(def.Selector, deps.Selector)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", def.Name, err)
	}

	p, err := poster.FromSpec(def.Poster, deps.Poster)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", def.Name, err)
	}

	return New(Config{
		Name:     def.Name,
		Selector: sel,
		Poster:   p,
		Count:    def.PostCount(),
		Metrics:  deps.Metrics,
		Recorder: deps.Recorder,
		Logger:   deps.Logger,
	})
}
