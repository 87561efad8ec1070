// Package selector picks content from a source and disposes of it once posted.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/content"
)

// PostedPrefix marks candidates that were already posted.
const PostedPrefix = "posted_"

var (
	// ErrNotDirectory is returned when a source root exists but is not a directory.
	ErrNotDirectory = errors.New("source is not a directory")

	// ErrMalformedCandidate wraps every failure to build a post from one
	// candidate. It is a content.ErrInvalidPost, so the cycle goes on with
	// the other candidates.
	ErrMalformedCandidate = fmt.Errorf("%w: malformed candidate", content.ErrInvalidPost)

	// ErrNestedDirectory is returned when a directory candidate contains anything but plain files.
	ErrNestedDirectory = fmt.Errorf("%w: contains a non-file entry", ErrMalformedCandidate)
)

// Selector chooses posts from a source.
type Selector interface {
	// Choose returns up to n posts. Fewer than n means the source is depleted.
	// Malformed candidates are skipped: the posts built from the rest come
	// back together with an error wrapping ErrMalformedCandidate.
	Choose(ctx context.Context, n int) ([]content.Post, error)

	// Dispose marks the post's origin as consumed. Posts without an origin are ignored.
	Dispose(ctx context.Context, post content.Post) error
}

// Deps holds process-wide collaborators handed to selector constructors.
type Deps struct {
	Logger     *slog.Logger
	StagingDir string
	Rand       *rand.Rand

	// S3 overrides the client built from an s3 selector's own settings.
	S3 S3API
}

// Factory builds a Selector from its definition.
type Factory func(spec config.Spec, deps Deps) (Selector, error)

var registry = map[string]Factory{
	"file": fileFromSpec,
	"s3":   s3FromSpec,
}

// FromSpec resolves spec's type tag and builds the selector.
func FromSpec(spec config.Spec, deps Deps) (Selector, error) {
	tag, err := spec.Type()
	if err != nil {
		return nil, fmt.Errorf("selector: %w", err)
	}

	factory, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("selector: %w: %q", config.ErrUnknownType, tag)
	}

	return factory(spec, deps)
}

// Register adds or replaces the factory for a type tag. It must be called
// before any definitions are resolved, typically from an init function.
func Register(tag string, factory Factory) {
	registry[strings.ToLower(strings.TrimSpace(tag))] = factory
}

// Types lists the registered selector type tags, sorted.
func Types() []string {
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// orderSettings is the ordering part shared by every selector definition.
type orderSettings struct {
	Order     string `json:"order"`
	PostOrder string `json:"post_order"`

	// Random is the older boolean form of Order.
	Random *bool `json:"random"`
}

func (s orderSettings) resolve() (content.SortOrder, *content.SortOrder, error) {
	order := content.Random
	switch {
	case s.Order != "":
		parsed, err := content.ParseSortOrder(s.Order)
		if err != nil {
			return 0, nil, err
		}
		order = parsed
	case s.Random != nil && !*s.Random:
		order = content.ByName
	}

	if s.PostOrder == "" {
		return order, nil, nil
	}
	postOrder, err := content.ParseSortOrder(s.PostOrder)
	if err != nil {
		return 0, nil, fmt.Errorf("post_order: %w", err)
	}
	return order, &postOrder, nil
}

// lockedRand makes a *rand.Rand safe for concurrent cycles of the same job.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newLockedRand(rng *rand.Rand) *lockedRand {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &lockedRand{rng: rng}
}

func (r *lockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng.Shuffle(n, swap)
}

func isPosted(name string) bool {
	return strings.HasPrefix(name, PostedPrefix)
}
