package poster

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/abdulachik/autoposter/internal/chatlock"
	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/content"
	"github.com/abdulachik/autoposter/internal/telegram"
)

// TelegramPoster posts to one or more Telegram chats.
type TelegramPoster struct {
	name       string
	chatIDs    []string
	replyChain bool
	silent     bool
	transport  Transport
	arbitrator *chatlock.Arbitrator
	logger     *slog.Logger

	// companion names a second chat to hold with chatID for the whole
	// delivery, or "". It is resolved once per delivery.
	companion func(ctx context.Context, chatID string) string

	// afterChunk runs under the chat locks after each delivered chunk and
	// receives the companion chat resolved for the delivery.
	afterChunk func(ctx context.Context, chatID, companion string, chunk content.Post, sent []telegram.Message) ([]telegram.Message, error)
}

// TelegramConfig holds configuration for the Telegram poster.
type TelegramConfig struct {
	Name       string
	ChatIDs    []string
	ReplyChain bool
	Silent     bool

	Transport  Transport
	Arbitrator *chatlock.Arbitrator
	Logger     *slog.Logger
}

// telegramSpec is the job-definition shape of a telegram poster.
type telegramSpec struct {
	Name       string    `json:"name"`
	ChatID     ChatRef   `json:"chat_id"`
	ChatIDs    []ChatRef `json:"chat_ids"`
	ReplyChain bool      `json:"reply_chain"`
	Token      string    `json:"token"`
	Silent     bool      `json:"silent"`
}

func (s telegramSpec) config(deps Deps) (TelegramConfig, error) {
	var chats []string
	if s.ChatID != "" {
		chats = append(chats, string(s.ChatID))
	}
	for _, id := range s.ChatIDs {
		if id != "" {
			chats = append(chats, string(id))
		}
	}

	transport, err := deps.transport(s.Token)
	if err != nil {
		return TelegramConfig{}, err
	}

	return TelegramConfig{
		Name:       s.Name,
		ChatIDs:    chats,
		ReplyChain: s.ReplyChain,
		Silent:     s.Silent,
		Transport:  transport,
		Arbitrator: deps.Arbitrator,
		Logger:     deps.Logger,
	}, nil
}

func telegramFromSpec(spec config.Spec, deps Deps) (Poster, error) {
	var settings telegramSpec
	if err := spec.Decode(&settings); err != nil {
		return nil, fmt.Errorf("telegram poster: %w", err)
	}

	cfg, err := settings.config(deps)
	if err != nil {
		return nil, fmt.Errorf("telegram poster: %w", err)
	}
	return NewTelegramPoster(cfg)
}

// NewTelegramPoster creates a Telegram poster.
func NewTelegramPoster(cfg TelegramConfig) (*TelegramPoster, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("telegram poster: %w: name", config.ErrMissingField)
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, fmt.Errorf("telegram poster %s: %w: chat_id", cfg.Name, config.ErrMissingField)
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("telegram poster %s: %w: token", cfg.Name, config.ErrMissingField)
	}

	arbitrator := cfg.Arbitrator
	if arbitrator == nil {
		arbitrator = chatlock.New()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &TelegramPoster{
		name:       cfg.Name,
		chatIDs:    cfg.ChatIDs,
		replyChain: cfg.ReplyChain,
		silent:     cfg.Silent,
		transport:  cfg.Transport,
		arbitrator: arbitrator,
		logger:     logger.With("poster", cfg.Name),
	}
	return p, nil
}

// Name returns the poster name.
func (p *TelegramPoster) Name() string {
	return p.name
}

// ChatIDs returns the destination chats.
func (p *TelegramPoster) ChatIDs() []string {
	return p.chatIDs
}

// Open checks that the bot credentials work.
func (p *TelegramPoster) Open(ctx context.Context) error {
	me, err := p.transport.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram poster %s: validate credentials: %w", p.name, err)
	}
	p.logger.Debug("telegram session opened", "bot", me.Username)
	return nil
}

// Close releases nothing; the HTTP transport is stateless.
func (p *TelegramPoster) Close() error {
	return nil
}

// OnNoCandidates logs that the source is depleted.
func (p *TelegramPoster) OnNoCandidates(ctx context.Context) error {
	p.logger.Warn("no more posts")
	return nil
}

// Post splits post into groups and sends them to every chat concurrently.
func (p *TelegramPoster) Post(ctx context.Context, post content.Post) (Result, error) {
	if err := post.Validate(); err != nil {
		return Result{}, err
	}

	chunks := post.Split(content.MaxGroupSize)
	deliveries := make([]Delivery, len(p.chatIDs))

	var g errgroup.Group
	for i, chatID := range p.chatIDs {
		g.Go(func() error {
			d, err := p.deliver(ctx, chatID, chunks)
			deliveries[i] = d
			if err != nil {
				return fmt.Errorf("post to %s: %w", chatID, err)
			}
			return nil
		})
	}
	err := g.Wait()

	return Result{Deliveries: deliveries}, err
}

// deliver sends every chunk to one chat in order while holding its locks.
func (p *TelegramPoster) deliver(ctx context.Context, chatID string, chunks []content.Post) (Delivery, error) {
	d := Delivery{Poster: p.name, ChatID: chatID}

	locks := []string{chatID}
	var companion string
	if p.companion != nil {
		if companion = p.companion(ctx, chatID); companion != "" {
			locks = append(locks, companion)
		}
	}
	release := p.arbitrator.Acquire(locks...)
	defer release()

	var replyTo *telegram.ReplyParameters
	for i, chunk := range chunks {
		sent, err := p.postNoSplit(ctx, chatID, chunk, replyTo)
		if err != nil {
			return d, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if len(sent) == 0 {
			return d, fmt.Errorf("chunk %d/%d: no messages returned", i+1, len(chunks))
		}
		d.Chunks = append(d.Chunks, sent)

		p.logger.Info("chunk delivered",
			"chat_id", chatID,
			"chunk", i+1,
			"chunks", len(chunks),
			"messages", len(sent),
			"first_message_id", sent[0].MessageID,
		)

		if p.afterChunk != nil {
			extra, err := p.afterChunk(ctx, chatID, companion, chunk, sent)
			d.Originals = append(d.Originals, extra...)
			if err != nil {
				return d, fmt.Errorf("chunk %d/%d originals: %w", i+1, len(chunks), err)
			}
		}

		if p.replyChain {
			replyTo = &telegram.ReplyParameters{MessageID: sent[0].MessageID}
		}
	}

	return d, nil
}

// postNoSplit sends one chunk as a text message, a single media message or a
// media group.
func (p *TelegramPoster) postNoSplit(ctx context.Context, chatID string, chunk content.Post, replyTo *telegram.ReplyParameters) ([]telegram.Message, error) {
	opts := telegram.SendOptions{ReplyTo: replyTo, Silent: p.silent}

	switch len(chunk.Media) {
	case 0:
		return p.sendText(ctx, chatID, chunk.Caption, opts)
	case 1:
		msg, err := p.sendSingle(ctx, chatID, chunk.Media[0], p.fitCaption(chunk.Caption), opts)
		if err != nil {
			return nil, err
		}
		return []telegram.Message{msg}, nil
	}

	if len(chunk.Media) > content.MaxGroupSize {
		return nil, ErrGroupTooLarge
	}

	items := make([]telegram.InputMedia, 0, len(chunk.Media))
	var documents, visual int
	for _, m := range chunk.Media {
		mediaType := groupType(m)
		if mediaType == telegram.MediaDocument {
			documents++
		} else {
			visual++
		}
		items = append(items, telegram.InputMedia{Type: mediaType, Path: m.Source})
	}
	items[0].Caption = p.fitCaption(chunk.Caption)

	if documents > 0 && visual > 0 {
		p.logger.Warn("media group mixes documents with photos or videos, telegram will reject it",
			"chat_id", chatID,
			"documents", documents,
			"visual", visual,
		)
	}

	return p.transport.SendMediaGroup(ctx, chatID, items, opts)
}

// sendText sends text, splitting it across messages when it is too long.
func (p *TelegramPoster) sendText(ctx context.Context, chatID, text string, opts telegram.SendOptions) ([]telegram.Message, error) {
	parts := SplitText(text, MaxTextLength)
	sent := make([]telegram.Message, 0, len(parts))
	for _, part := range parts {
		msg, err := p.transport.SendText(ctx, chatID, part, opts)
		if err != nil {
			return sent, err
		}
		sent = append(sent, msg)
	}
	return sent, nil
}

func (p *TelegramPoster) sendSingle(ctx context.Context, chatID string, m content.Media, caption string, opts telegram.SendOptions) (telegram.Message, error) {
	switch m.DeliveryKind() {
	case content.KindImage:
		return p.transport.SendPhoto(ctx, chatID, m.Source, caption, opts)
	case content.KindVideo:
		return p.transport.SendVideo(ctx, chatID, m.Source, caption, opts)
	default:
		return p.transport.SendDocument(ctx, chatID, m.Source, caption, opts)
	}
}

func (p *TelegramPoster) fitCaption(caption string) string {
	fitted := FitCaption(caption, MaxCaptionLength)
	if fitted != caption {
		p.logger.Warn("caption truncated", "limit", MaxCaptionLength)
	}
	return fitted
}

// groupType maps a media kind to its media group element.
func groupType(m content.Media) string {
	switch m.DeliveryKind() {
	case content.KindImage:
		return telegram.MediaPhoto
	case content.KindVideo:
		return telegram.MediaVideo
	default:
		return telegram.MediaDocument
	}
}
