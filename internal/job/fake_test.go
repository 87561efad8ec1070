package job

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/abdulachik/autoposter/internal/content"
	"github.com/abdulachik/autoposter/internal/poster"
	"github.com/abdulachik/autoposter/internal/telegram"
)

// fakeSelector hands out a fixed list of posts and records disposals.
type fakeSelector struct {
	posts      []content.Post
	chooseErr  error
	disposeErr error

	mu       sync.Mutex
	disposed []string
}

func (f *fakeSelector) Choose(ctx context.Context, n int) ([]content.Post, error) {
	if n > len(f.posts) {
		n = len(f.posts)
	}
	if f.chooseErr != nil && !errors.Is(f.chooseErr, content.ErrInvalidPost) {
		return nil, f.chooseErr
	}
	return f.posts[:n], f.chooseErr
}

func (f *fakeSelector) Dispose(ctx context.Context, post content.Post) error {
	if f.disposeErr != nil {
		return f.disposeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if post.HasOrigin() {
		f.disposed = append(f.disposed, post.Origin)
	}
	return nil
}

// fakePoster delivers everything unless fail picks the post.
type fakePoster struct {
	fail  func(post content.Post) error
	block chan struct{}

	mu           sync.Mutex
	posted       []string
	opened       int
	closed       int
	noCandidates int
}

func (f *fakePoster) Name() string { return "fake" }

func (f *fakePoster) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	return nil
}

func (f *fakePoster) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakePoster) Post(ctx context.Context, post content.Post) (poster.Result, error) {
	if f.block != nil {
		<-f.block
	}
	if err := post.Validate(); err != nil {
		return poster.Result{}, err
	}
	if f.fail != nil {
		if err := f.fail(post); err != nil {
			return poster.Result{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, post.Origin)
	return poster.Result{Deliveries: []poster.Delivery{{
		Poster: "fake",
		ChatID: "-1001",
		Chunks: [][]telegram.Message{{{MessageID: int64(len(f.posted))}}},
	}}}, nil
}

func (f *fakePoster) OnNoCandidates(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noCandidates++
	return nil
}

var errTransport = errors.New("telegram sendPhoto: 502 Bad Gateway")

func textPost(origin string) content.Post {
	return content.Post{Caption: "hello " + origin, Origin: origin}
}

// recordingTransport is a poster.Transport that writes a short line per send.
type recordingTransport struct {
	mu   sync.Mutex
	sent []string
	next int64
}

func (r *recordingTransport) add(line string, n int) []telegram.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, line)
	msgs := make([]telegram.Message, n)
	for i := range msgs {
		r.next++
		msgs[i] = telegram.Message{MessageID: r.next}
	}
	return msgs
}

func (r *recordingTransport) GetMe(ctx context.Context) (*telegram.User, error) {
	return &telegram.User{ID: 1, IsBot: true, Username: "test_bot"}, nil
}

func (r *recordingTransport) GetChat(ctx context.Context, chatID string) (*telegram.Chat, error) {
	return &telegram.Chat{Type: "channel"}, nil
}

func (r *recordingTransport) SendText(ctx context.Context, chatID, text string, opts telegram.SendOptions) (telegram.Message, error) {
	return r.add("text:"+text, 1)[0], nil
}

func (r *recordingTransport) SendPhoto(ctx context.Context, chatID, path, caption string, opts telegram.SendOptions) (telegram.Message, error) {
	return r.add("photo:"+filepath.Base(path), 1)[0], nil
}

func (r *recordingTransport) SendVideo(ctx context.Context, chatID, path, caption string, opts telegram.SendOptions) (telegram.Message, error) {
	return r.add("video:"+filepath.Base(path), 1)[0], nil
}

func (r *recordingTransport) SendDocument(ctx context.Context, chatID, path, caption string, opts telegram.SendOptions) (telegram.Message, error) {
	return r.add("document:"+filepath.Base(path), 1)[0], nil
}

func (r *recordingTransport) SendMediaGroup(ctx context.Context, chatID string, items []telegram.InputMedia, opts telegram.SendOptions) ([]telegram.Message, error) {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = filepath.Base(item.Path)
	}
	return r.add("group:"+strings.Join(names, ","), len(items)), nil
}
