package poster

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/content"
	"github.com/abdulachik/autoposter/internal/telegram"
)

// DefaultMaxDimension is the largest side Telegram keeps when compressing photos.
const DefaultMaxDimension = 1280

// HighresPoster is a TelegramPoster that follows every chunk with the
// uncompressed originals of its large images. Originals go to the channel's
// discussion chat when there is one, otherwise they reply to the chunk.
type HighresPoster struct {
	*TelegramPoster

	maxDimension int
	discussion   string

	mu          sync.Mutex
	discussions map[string]string
}

// HighresConfig holds configuration for the highres poster.
type HighresConfig struct {
	TelegramConfig

	// DiscussionChatID overrides the linked chat reported by Telegram.
	DiscussionChatID string
	MaxDimension     int // default: DefaultMaxDimension
}

type highresSpec struct {
	telegramSpec
	DiscussionChatID ChatRef `json:"discussion_chat_id"`
	MaxDimension     int     `json:"max_dimension"`
}

func highresFromSpec(spec config.Spec, deps Deps) (Poster, error) {
	var settings highresSpec
	if err := spec.Decode(&settings); err != nil {
		return nil, fmt.Errorf("highres poster: %w", err)
	}

	cfg, err := settings.config(deps)
	if err != nil {
		return nil, fmt.Errorf("highres poster: %w", err)
	}

	return NewHighresPoster(HighresConfig{
		TelegramConfig:   cfg,
		DiscussionChatID: string(settings.DiscussionChatID),
		MaxDimension:     settings.MaxDimension,
	})
}

// NewHighresPoster creates a highres poster.
func NewHighresPoster(cfg HighresConfig) (*HighresPoster, error) {
	base, err := NewTelegramPoster(cfg.TelegramConfig)
	if err != nil {
		return nil, err
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = DefaultMaxDimension
	}

	p := &HighresPoster{
		TelegramPoster: base,
		maxDimension:   cfg.MaxDimension,
		discussion:     cfg.DiscussionChatID,
		discussions:    make(map[string]string),
	}
	// The discussion chat is locked with the channel so replies from other
	// jobs cannot interleave with the originals.
	base.companion = p.discussionFor
	base.afterChunk = p.sendOriginals
	return p, nil
}

// discussionFor returns the discussion chat of chatID, or "" if it has none.
// Lookups are cached, including misses.
func (p *HighresPoster) discussionFor(ctx context.Context, chatID string) string {
	if p.discussion != "" {
		return p.discussion
	}

	p.mu.Lock()
	cached, ok := p.discussions[chatID]
	p.mu.Unlock()
	if ok {
		return cached
	}

	var linked string
	chat, err := p.transport.GetChat(ctx, chatID)
	switch {
	case err != nil:
		p.logger.Warn("failed to look up discussion chat", "chat_id", chatID, "error", err)
		return ""
	case chat.LinkedChatID != 0:
		linked = strconv.FormatInt(chat.LinkedChatID, 10)
	}

	p.mu.Lock()
	p.discussions[chatID] = linked
	p.mu.Unlock()
	return linked
}

// sendOriginals re-sends the chunk's oversized images as documents to the
// discussion chat held for this delivery, or as a reply in chatID.
func (p *HighresPoster) sendOriginals(ctx context.Context, chatID, discussion string, chunk content.Post, sent []telegram.Message) ([]telegram.Message, error) {
	victims := p.compressionVictims(chunk.Media)
	if len(victims) == 0 {
		return nil, nil
	}

	main := sent[0]
	if discussion != "" {
		opts := telegram.SendOptions{
			ReplyTo: &telegram.ReplyParameters{
				MessageID:                main.MessageID,
				ChatID:                   chatID,
				AllowSendingWithoutReply: true,
			},
			Silent: p.silent,
		}
		msgs, err := p.sendDocuments(ctx, discussion, victims, opts)

		var apiErr *telegram.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
			return msgs, err
		}
		p.logger.Warn("discussion chat rejected originals, replying in channel",
			"chat_id", chatID,
			"discussion_chat_id", discussion,
			"error", err,
		)
	}

	opts := telegram.SendOptions{
		ReplyTo: &telegram.ReplyParameters{MessageID: main.MessageID},
		Silent:  p.silent,
	}
	return p.sendDocuments(ctx, chatID, victims, opts)
}

func (p *HighresPoster) sendDocuments(ctx context.Context, chatID string, paths []string, opts telegram.SendOptions) ([]telegram.Message, error) {
	if len(paths) == 1 {
		msg, err := p.transport.SendDocument(ctx, chatID, paths[0], "", opts)
		if err != nil {
			return nil, err
		}
		return []telegram.Message{msg}, nil
	}

	items := make([]telegram.InputMedia, len(paths))
	for i, path := range paths {
		items[i] = telegram.InputMedia{Type: telegram.MediaDocument, Path: path}
	}
	return p.transport.SendMediaGroup(ctx, chatID, items, opts)
}

// compressionVictims returns images with a side longer than maxDimension.
// Only the image header is read.
func (p *HighresPoster) compressionVictims(media []content.Media) []string {
	var victims []string
	for _, m := range media {
		if m.Kind != content.KindImage {
			continue
		}

		width, height, err := imageSize(m.Source)
		if err != nil {
			p.logger.Debug("skipping image with unreadable header", "path", m.Source, "error", err)
			continue
		}
		if width > p.maxDimension || height > p.maxDimension {
			victims = append(victims, m.Source)
		}
	}
	return victims
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
