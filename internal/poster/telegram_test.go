package poster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/autoposter/internal/chatlock"
	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/content"
	"github.com/abdulachik/autoposter/internal/telegram"
)

func newTelegramPoster(t *testing.T, transport *fakeTransport, cfg TelegramConfig) *TelegramPoster {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	if len(cfg.ChatIDs) == 0 {
		cfg.ChatIDs = []string{"-100"}
	}
	cfg.Transport = transport
	p, err := NewTelegramPoster(cfg)
	require.NoError(t, err)
	return p
}

func images(n int) []content.Media {
	media := make([]content.Media, n)
	for i := range media {
		media[i] = content.NewMedia(fmt.Sprintf("/src/%02d.jpg", i))
	}
	return media
}

func TestTelegramPoster_SplitWithReplyChain(t *testing.T) {
	transport := newFakeTransport()
	p := newTelegramPoster(t, transport, TelegramConfig{ReplyChain: true})

	post := content.Post{Media: images(23), Caption: "album", Origin: "/src"}
	res, err := p.Post(context.Background(), post)
	require.NoError(t, err)

	calls := transport.Calls()
	require.Len(t, calls, 3)

	for _, c := range calls {
		assert.Equal(t, "sendMediaGroup", c.Method)
	}
	assert.Len(t, calls[0].Paths, 10)
	assert.Len(t, calls[1].Paths, 10)
	assert.Len(t, calls[2].Paths, 3)

	// order is preserved across chunk boundaries
	var paths []string
	for _, c := range calls {
		paths = append(paths, c.Paths...)
	}
	for i, path := range paths {
		assert.Equal(t, fmt.Sprintf("/src/%02d.jpg", i), path)
	}

	assert.Equal(t, "album", calls[0].Caption[0])
	for i, c := range calls {
		for j, caption := range c.Caption {
			if i == 0 && j == 0 {
				continue
			}
			assert.Empty(t, caption)
		}
	}

	assert.Nil(t, calls[0].ReplyTo)
	require.NotNil(t, calls[1].ReplyTo)
	assert.Equal(t, int64(1), calls[1].ReplyTo.MessageID)
	require.NotNil(t, calls[2].ReplyTo)
	assert.Equal(t, int64(11), calls[2].ReplyTo.MessageID)

	require.Len(t, res.Deliveries, 1)
	assert.Equal(t, "-100", res.Deliveries[0].ChatID)
	assert.Len(t, res.Deliveries[0].Chunks, 3)
	assert.Equal(t, 23, res.Messages())
}

func TestTelegramPoster_SplitWithoutReplyChain(t *testing.T) {
	transport := newFakeTransport()
	p := newTelegramPoster(t, transport, TelegramConfig{})

	_, err := p.Post(context.Background(), content.Post{Media: images(12)})
	require.NoError(t, err)

	calls := transport.Calls()
	require.Len(t, calls, 2)
	assert.Nil(t, calls[0].ReplyTo)
	assert.Nil(t, calls[1].ReplyTo)
	assert.Equal(t, "sendMediaGroup", calls[0].Method)
	assert.Equal(t, "sendMediaGroup", calls[1].Method)
}

func TestTelegramPoster_PostNoSplit(t *testing.T) {
	tests := []struct {
		name   string
		post   content.Post
		method string
		types  []string
	}{
		{
			name:   "text only",
			post:   content.Post{Caption: "hello"},
			method: "sendMessage",
		},
		{
			name:   "single image",
			post:   content.Post{Media: []content.Media{content.NewMedia("a.png")}},
			method: "sendPhoto",
		},
		{
			name:   "single video",
			post:   content.Post{Media: []content.Media{content.NewMedia("a.mp4")}},
			method: "sendVideo",
		},
		{
			name:   "single gif goes through documents",
			post:   content.Post{Media: []content.Media{content.NewMedia("a.gif")}},
			method: "sendDocument",
		},
		{
			name:   "single document",
			post:   content.Post{Media: []content.Media{content.NewMedia("a.pdf")}},
			method: "sendDocument",
		},
		{
			name: "group maps element types",
			post: content.Post{Media: []content.Media{
				content.NewMedia("a.jpg"),
				content.NewMedia("b.mp4"),
				content.NewMedia("c.gif"),
			}},
			method: "sendMediaGroup",
			types:  []string{telegram.MediaPhoto, telegram.MediaVideo, telegram.MediaDocument},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newFakeTransport()
			p := newTelegramPoster(t, transport, TelegramConfig{Silent: true})

			_, err := p.Post(context.Background(), tt.post)
			require.NoError(t, err)

			calls := transport.Calls()
			require.Len(t, calls, 1)
			assert.Equal(t, tt.method, calls[0].Method)
			assert.True(t, calls[0].Silent)
			if tt.types != nil {
				assert.Equal(t, tt.types, calls[0].Types)
			}
		})
	}
}

func TestTelegramPoster_CaptionOnFirstGroupElement(t *testing.T) {
	transport := newFakeTransport()
	p := newTelegramPoster(t, transport, TelegramConfig{})

	_, err := p.Post(context.Background(), content.Post{Media: images(3), Caption: "hi"})
	require.NoError(t, err)

	calls := transport.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"hi", "", ""}, calls[0].Caption)
}

func TestTelegramPoster_LongCaptions(t *testing.T) {
	t.Run("media caption is truncated", func(t *testing.T) {
		transport := newFakeTransport()
		p := newTelegramPoster(t, transport, TelegramConfig{})

		caption := strings.Repeat("word ", 400)
		_, err := p.Post(context.Background(), content.Post{Media: images(1), Caption: caption})
		require.NoError(t, err)

		calls := transport.Calls()
		require.Len(t, calls, 1)
		assert.LessOrEqual(t, len([]rune(calls[0].Caption[0])), MaxCaptionLength)
	})

	t.Run("long text is split", func(t *testing.T) {
		transport := newFakeTransport()
		p := newTelegramPoster(t, transport, TelegramConfig{})

		text := strings.Repeat("line of text\n", 500)
		res, err := p.Post(context.Background(), content.Post{Caption: text})
		require.NoError(t, err)

		calls := transport.Calls()
		assert.Greater(t, len(calls), 1)
		for _, c := range calls {
			assert.Equal(t, "sendMessage", c.Method)
			assert.LessOrEqual(t, len([]rune(c.Text)), MaxTextLength)
		}
		require.Len(t, res.Deliveries[0].Chunks, 1)
		assert.Len(t, res.Deliveries[0].Chunks[0], len(calls))
	})
}

func TestTelegramPoster_Validation(t *testing.T) {
	transport := newFakeTransport()
	p := newTelegramPoster(t, transport, TelegramConfig{})

	_, err := p.Post(context.Background(), content.Post{Origin: "/src/empty"})
	assert.ErrorIs(t, err, content.ErrEmptyPost)
	assert.ErrorIs(t, err, content.ErrInvalidPost)
	assert.Empty(t, transport.Calls())
}

func TestTelegramPoster_MultipleChats(t *testing.T) {
	t.Run("each chat gets the full sequence", func(t *testing.T) {
		transport := newFakeTransport()
		p := newTelegramPoster(t, transport, TelegramConfig{
			ChatIDs:    []string{"-1", "-2", "-3"},
			ReplyChain: true,
		})

		res, err := p.Post(context.Background(), content.Post{Media: images(15)})
		require.NoError(t, err)
		require.Len(t, res.Deliveries, 3)

		for i, chatID := range []string{"-1", "-2", "-3"} {
			assert.Equal(t, chatID, res.Deliveries[i].ChatID)
			calls := transport.CallsTo(chatID)
			require.Len(t, calls, 2)
			require.NotNil(t, calls[1].ReplyTo)
			assert.Equal(t, int64(1), calls[1].ReplyTo.MessageID)
		}
	})

	t.Run("one failing chat does not stop the others", func(t *testing.T) {
		transport := newFakeTransport()
		transport.fail = func(c sendCall) error {
			if c.ChatID == "-2" {
				return &telegram.APIError{Method: c.Method, Code: 403, Description: "Forbidden: bot was kicked"}
			}
			return nil
		}
		p := newTelegramPoster(t, transport, TelegramConfig{ChatIDs: []string{"-1", "-2"}})

		res, err := p.Post(context.Background(), content.Post{Caption: "hello"})
		var apiErr *telegram.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 403, apiErr.Code)

		assert.Len(t, transport.CallsTo("-1"), 1)
		require.Len(t, res.Deliveries, 2)
		assert.Len(t, res.Deliveries[0].Chunks, 1)
		assert.Empty(t, res.Deliveries[1].Chunks)
	})
}

func TestTelegramPoster_TransportErrorStopsChunks(t *testing.T) {
	transport := newFakeTransport()
	calls := 0
	transport.fail = func(c sendCall) error {
		calls++
		if calls == 2 {
			return errors.New("connection reset")
		}
		return nil
	}
	p := newTelegramPoster(t, transport, TelegramConfig{})

	res, err := p.Post(context.Background(), content.Post{Media: images(25)})
	assert.ErrorContains(t, err, "chunk 2/3")
	assert.Len(t, transport.Calls(), 1)
	assert.Len(t, res.Deliveries[0].Chunks, 1)
}

func TestTelegramPoster_HoldsChatLock(t *testing.T) {
	arbitrator := chatlock.New()
	transport := newFakeTransport()

	var held bool
	transport.fail = func(c sendCall) error {
		lock := arbitrator.Table().Get(c.ChatID)
		held = !lock.TryLock()
		if !held {
			lock.Unlock()
		}
		return nil
	}
	p := newTelegramPoster(t, transport, TelegramConfig{Arbitrator: arbitrator})

	_, err := p.Post(context.Background(), content.Post{Caption: "x"})
	require.NoError(t, err)
	assert.True(t, held)

	lock := arbitrator.Table().Get("-100")
	require.True(t, lock.TryLock())
	lock.Unlock()
}

func TestTelegramPoster_OpenAndNoCandidates(t *testing.T) {
	transport := newFakeTransport()
	p := newTelegramPoster(t, transport, TelegramConfig{})

	assert.NoError(t, p.Open(context.Background()))
	assert.NoError(t, p.OnNoCandidates(context.Background()))
	assert.NoError(t, p.Close())

	transport.getMeErr = errors.New("unauthorized")
	assert.ErrorContains(t, p.Open(context.Background()), "unauthorized")
}

func TestFromSpec(t *testing.T) {
	transport := newFakeTransport()
	deps := Deps{Transport: transport, Arbitrator: chatlock.New()}

	t.Run("telegram with numeric chat id", func(t *testing.T) {
		p, err := FromSpec(config.Spec{
			"type":        "Telegram",
			"name":        "pics",
			"chat_id":     -1001234567890,
			"chat_ids":    []any{"@mirror"},
			"reply_chain": true,
		}, deps)
		require.NoError(t, err)

		tp, ok := p.(*TelegramPoster)
		require.True(t, ok)
		assert.Equal(t, "pics", tp.Name())
		assert.Equal(t, []string{"-1001234567890", "@mirror"}, tp.ChatIDs())
		assert.True(t, tp.replyChain)
	})

	t.Run("highres aliases", func(t *testing.T) {
		for _, tag := range []string{"telegram_highres", "telegram-highres", "highres"} {
			p, err := FromSpec(config.Spec{"type": tag, "name": "hr", "chat_id": "@c", "max_dimension": 2000}, deps)
			require.NoError(t, err, tag)
			hp, ok := p.(*HighresPoster)
			require.True(t, ok, tag)
			assert.Equal(t, 2000, hp.maxDimension)
		}
	})

	t.Run("multi", func(t *testing.T) {
		p, err := FromSpec(config.Spec{
			"type": "multi",
			"name": "everywhere",
			"posters": []any{
				map[string]any{"type": "telegram", "name": "a", "chat_id": "@a"},
				map[string]any{"type": "highres", "name": "b", "chat_id": "@b"},
			},
		}, deps)
		require.NoError(t, err)

		mp, ok := p.(*MultiPoster)
		require.True(t, ok)
		require.Len(t, mp.Posters(), 2)
		assert.Equal(t, "a", mp.Posters()[0].Name())
		assert.Equal(t, "b", mp.Posters()[1].Name())
	})

	t.Run("per-poster token", func(t *testing.T) {
		other := newFakeTransport()
		var gotToken string
		d := deps
		d.NewTransport = func(token string) (Transport, error) {
			gotToken = token
			return other, nil
		}

		p, err := FromSpec(config.Spec{"type": "telegram", "name": "a", "chat_id": "1", "token": "999:xyz"}, d)
		require.NoError(t, err)
		assert.Equal(t, "999:xyz", gotToken)
		assert.Same(t, other, p.(*TelegramPoster).transport)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := FromSpec(config.Spec{"type": "fax", "name": "x"}, deps)
		assert.ErrorIs(t, err, config.ErrUnknownType)
	})

	t.Run("unknown nested type", func(t *testing.T) {
		_, err := FromSpec(config.Spec{
			"type":    "multi",
			"name":    "m",
			"posters": []any{map[string]any{"type": "fax"}},
		}, deps)
		assert.ErrorIs(t, err, config.ErrUnknownType)
	})

	t.Run("missing chat", func(t *testing.T) {
		_, err := FromSpec(config.Spec{"type": "telegram", "name": "x"}, deps)
		assert.ErrorIs(t, err, config.ErrMissingField)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := FromSpec(config.Spec{"type": "telegram", "name": "x", "chat_id": "1"}, Deps{})
		assert.ErrorIs(t, err, config.ErrMissingField)
	})

	t.Run("fractional chat id", func(t *testing.T) {
		_, err := FromSpec(config.Spec{"type": "telegram", "name": "x", "chat_id": 1.5}, deps)
		assert.Error(t, err)
	})
}
