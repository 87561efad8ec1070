package poster

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/autoposter/internal/content"
)

// stubPoster is a Poster with scripted results.
type stubPoster struct {
	name     string
	delay    time.Duration
	postErr  error
	openErr  error
	closeErr error

	posts      atomic.Int32
	opened     atomic.Int32
	closed     atomic.Int32
	noContents atomic.Int32
}

func (s *stubPoster) Name() string { return s.name }

func (s *stubPoster) Open(ctx context.Context) error {
	s.opened.Add(1)
	return s.openErr
}

func (s *stubPoster) Close() error {
	s.closed.Add(1)
	return s.closeErr
}

func (s *stubPoster) Post(ctx context.Context, post content.Post) (Result, error) {
	time.Sleep(s.delay)
	s.posts.Add(1)
	if s.postErr != nil {
		return Result{}, s.postErr
	}
	return Result{Deliveries: []Delivery{{Poster: s.name, ChatID: s.name}}}, nil
}

func (s *stubPoster) OnNoCandidates(ctx context.Context) error {
	s.noContents.Add(1)
	return nil
}

func TestMultiPoster_Post(t *testing.T) {
	t.Run("delivers to every poster", func(t *testing.T) {
		a := &stubPoster{name: "a"}
		b := &stubPoster{name: "b"}
		m, err := NewMultiPoster("m", []Poster{a, b}, nil)
		require.NoError(t, err)

		res, err := m.Post(context.Background(), content.Post{Caption: "x"})
		require.NoError(t, err)
		require.Len(t, res.Deliveries, 2)
		assert.Equal(t, "a", res.Deliveries[0].Poster)
		assert.Equal(t, "b", res.Deliveries[1].Poster)
	})

	t.Run("failure waits for the others", func(t *testing.T) {
		boom := errors.New("boom")
		fast := &stubPoster{name: "fast", postErr: boom}
		slow := &stubPoster{name: "slow", delay: 50 * time.Millisecond}
		m, err := NewMultiPoster("m", []Poster{fast, slow}, nil)
		require.NoError(t, err)

		res, err := m.Post(context.Background(), content.Post{Caption: "x"})
		assert.ErrorIs(t, err, boom)
		assert.ErrorContains(t, err, "fast")
		assert.Equal(t, int32(1), slow.posts.Load())
		require.Len(t, res.Deliveries, 1)
		assert.Equal(t, "slow", res.Deliveries[0].Poster)
	})

	t.Run("rejects empty posts", func(t *testing.T) {
		a := &stubPoster{name: "a"}
		m, err := NewMultiPoster("m", []Poster{a}, nil)
		require.NoError(t, err)

		_, err = m.Post(context.Background(), content.Post{})
		assert.ErrorIs(t, err, content.ErrEmptyPost)
		assert.Zero(t, a.posts.Load())
	})
}

func TestMultiPoster_Lifecycle(t *testing.T) {
	a := &stubPoster{name: "a"}
	b := &stubPoster{name: "b", openErr: errors.New("bad token"), closeErr: errors.New("close failed")}
	m, err := NewMultiPoster("m", []Poster{a, b}, nil)
	require.NoError(t, err)

	err = m.Open(context.Background())
	assert.ErrorContains(t, err, "bad token")
	assert.Equal(t, int32(1), a.opened.Load())

	err = m.Close()
	assert.ErrorContains(t, err, "close failed")
	assert.Equal(t, int32(1), a.closed.Load())
	assert.Equal(t, int32(1), b.closed.Load())

	require.NoError(t, m.OnNoCandidates(context.Background()))
	assert.Equal(t, int32(1), a.noContents.Load())
	assert.Equal(t, int32(1), b.noContents.Load())
}

func TestNewMultiPoster(t *testing.T) {
	_, err := NewMultiPoster("", []Poster{&stubPoster{name: "a"}}, nil)
	assert.Error(t, err)

	_, err = NewMultiPoster("m", nil, nil)
	assert.Error(t, err)
}
