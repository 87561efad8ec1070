package selector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/content"
)

// FileSelector picks candidates from a local directory.
type FileSelector struct {
	source       string
	order        content.SortOrder
	postOrder    content.SortOrder
	deletePosted bool
	rng          *lockedRand
	logger       *slog.Logger
}

// FileConfig holds configuration for the file selector.
type FileConfig struct {
	Source       string
	Order        content.SortOrder
	PostOrder    *content.SortOrder
	DeletePosted bool

	// Rand drives Random ordering. Nil seeds a generator from the process source.
	Rand   *rand.Rand
	Logger *slog.Logger
}

// fileSpec is the job-definition shape of a file selector.
type fileSpec struct {
	orderSettings
	Source       string `json:"source"`
	DeletePosted bool   `json:"delete_posted"`
}

func fileFromSpec(spec config.Spec, deps Deps) (Selector, error) {
	var settings fileSpec
	if err := spec.Decode(&settings); err != nil {
		return nil, fmt.Errorf("file selector: %w", err)
	}

	order, postOrder, err := settings.resolve()
	if err != nil {
		return nil, fmt.Errorf("file selector: %w", err)
	}

	return NewFileSelector(FileConfig{
		Source:       settings.Source,
		Order:        order,
		PostOrder:    postOrder,
		DeletePosted: settings.DeletePosted,
		Rand:         deps.Rand,
		Logger:       deps.Logger,
	})
}

// NewFileSelector creates a file selector.
func NewFileSelector(cfg FileConfig) (*FileSelector, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("file selector: %w: source", config.ErrMissingField)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &FileSelector{
		source:       cfg.Source,
		order:        cfg.Order,
		postOrder:    content.PostOrder(cfg.Order, cfg.PostOrder),
		deletePosted: cfg.DeletePosted,
		rng:          newLockedRand(cfg.Rand),
		logger:       logger.With("source", cfg.Source),
	}, nil
}

// Source returns the directory this selector reads from.
func (s *FileSelector) Source() string {
	return s.source
}

// Choose returns up to n posts built from the first n candidates.
func (s *FileSelector) Choose(ctx context.Context, n int) ([]content.Post, error) {
	if err := ensureDir(s.source); err != nil {
		return nil, err
	}

	candidates, err := listCandidates(s.source)
	if err != nil {
		return nil, err
	}
	sortCandidates(candidates, s.order, s.rng)

	posts, err := chooseFrom(candidates, n, s.logger, func(c candidate) (content.Post, error) {
		return buildPost(ctx, c, s.postOrder, s.rng)
	})
	if posts == nil && err != nil {
		return nil, err
	}

	s.logger.Debug("chose candidates",
		"requested", n,
		"chosen", len(posts),
		"order", s.order.String(),
	)

	return posts, err
}

// Dispose deletes or renames the post's origin.
func (s *FileSelector) Dispose(ctx context.Context, post content.Post) error {
	if !post.HasOrigin() {
		s.logger.Warn("refusing to dispose post without origin", "post", post.String())
		return nil
	}

	if s.deletePosted {
		if err := os.RemoveAll(post.Origin); err != nil {
			return fmt.Errorf("delete %s: %w", post.Origin, err)
		}
		s.logger.Info("deleted posted candidate", "origin", post.Origin)
		return nil
	}

	target, err := postedPath(post.Origin)
	if err != nil {
		return err
	}
	if err := os.Rename(post.Origin, target); err != nil {
		return fmt.Errorf("mark %s posted: %w", post.Origin, err)
	}

	s.logger.Info("marked candidate posted", "origin", post.Origin, "renamed_to", target)
	return nil
}

// ensureDir creates dir if it is missing and fails if it is something else.
func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create source: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("stat source: %w", err)
	case !info.IsDir():
		return fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}
	return nil
}

// postedPath returns the first free name for a posted candidate:
// posted_<name>, then posted_1_<name>, posted_2_<name> and so on.
func postedPath(origin string) (string, error) {
	dir, name := filepath.Split(origin)

	target := filepath.Join(dir, PostedPrefix+name)
	for i := 1; ; i++ {
		_, err := os.Lstat(target)
		if errors.Is(err, fs.ErrNotExist) {
			return target, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", target, err)
		}
		target = filepath.Join(dir, PostedPrefix+strconv.Itoa(i)+"_"+name)
	}
}
