// Package poster delivers posts to their destinations.
package poster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/abdulachik/autoposter/internal/chatlock"
	"github.com/abdulachik/autoposter/internal/config"
	"github.com/abdulachik/autoposter/internal/content"
	"github.com/abdulachik/autoposter/internal/telegram"
)

// ErrGroupTooLarge is returned when a chunk holds more media than one group allows.
var ErrGroupTooLarge = fmt.Errorf("%w: more than %d media in one group", content.ErrInvalidPost, content.MaxGroupSize)

// Poster is the interface for delivering posts.
type Poster interface {
	// Name identifies the poster in logs and delivery records.
	Name() string

	// Open prepares the poster for a cycle. Close must be called afterwards
	// even when Open fails.
	Open(ctx context.Context) error
	Close() error

	// Post validates, splits and delivers a post to every destination.
	Post(ctx context.Context, post content.Post) (Result, error)

	// OnNoCandidates is called when the selector ran out of content.
	OnNoCandidates(ctx context.Context) error
}

// Result lists what a Post call delivered.
type Result struct {
	Deliveries []Delivery
}

// Delivery is the outcome for one destination chat.
type Delivery struct {
	Poster string
	ChatID string

	// Chunks holds the messages sent for each chunk, in order.
	Chunks [][]telegram.Message

	// Originals are uncompressed copies sent by the highres poster.
	Originals []telegram.Message
}

// Messages counts every message in the result.
func (r Result) Messages() int {
	n := 0
	for _, d := range r.Deliveries {
		n += d.Messages()
	}
	return n
}

// Messages counts the messages sent to this destination.
func (d Delivery) Messages() int {
	n := len(d.Originals)
	for _, chunk := range d.Chunks {
		n += len(chunk)
	}
	return n
}

// MessageIDs lists the ids of every message sent, chunks first.
func (d Delivery) MessageIDs() []int64 {
	ids := make([]int64, 0, d.Messages())
	for _, chunk := range d.Chunks {
		for _, m := range chunk {
			ids = append(ids, m.MessageID)
		}
	}
	for _, m := range d.Originals {
		ids = append(ids, m.MessageID)
	}
	return ids
}

// Transport is the messaging API the telegram posters send through.
type Transport interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	GetChat(ctx context.Context, chatID string) (*telegram.Chat, error)
	SendText(ctx context.Context, chatID, text string, opts telegram.SendOptions) (telegram.Message, error)
	SendPhoto(ctx context.Context, chatID, path, caption string, opts telegram.SendOptions) (telegram.Message, error)
	SendVideo(ctx context.Context, chatID, path, caption string, opts telegram.SendOptions) (telegram.Message, error)
	SendDocument(ctx context.Context, chatID, path, caption string, opts telegram.SendOptions) (telegram.Message, error)
	SendMediaGroup(ctx context.Context, chatID string, items []telegram.InputMedia, opts telegram.SendOptions) ([]telegram.Message, error)
}

// Deps holds process-wide collaborators handed to poster constructors.
type Deps struct {
	Logger     *slog.Logger
	Arbitrator *chatlock.Arbitrator

	// Transport is used unless a definition carries its own token.
	Transport Transport

	// NewTransport builds a transport for a per-poster token.
	NewTransport func(token string) (Transport, error)
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d Deps) transport(token string) (Transport, error) {
	if token != "" && d.NewTransport != nil {
		return d.NewTransport(token)
	}
	if d.Transport == nil {
		return nil, fmt.Errorf("%w: token", config.ErrMissingField)
	}
	return d.Transport, nil
}

// Factory builds a Poster from its definition.
type Factory func(spec config.Spec, deps Deps) (Poster, error)

var registry map[string]Factory

func init() {
	registry = map[string]Factory{
		"multi":            multiFromSpec,
		"telegram":         telegramFromSpec,
		"telegram_highres": highresFromSpec,
		"telegram-highres": highresFromSpec,
		"highres":          highresFromSpec,
	}
}

// FromSpec resolves spec's type tag and builds the poster.
func FromSpec(spec config.Spec, deps Deps) (Poster, error) {
	tag, err := spec.Type()
	if err != nil {
		return nil, fmt.Errorf("poster: %w", err)
	}

	factory, ok := registry[tag]
	if !ok {
		return nil, fmt.Errorf("poster: %w: %q", config.ErrUnknownType, tag)
	}

	return factory(spec, deps)
}

// Register adds or replaces the factory for a type tag. Call it from init.
func Register(tag string, factory Factory) {
	registry[strings.ToLower(strings.TrimSpace(tag))] = factory
}

// Types lists the registered poster type tags, sorted.
func Types() []string {
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ChatRef is a chat id or @handle. Definitions may write ids as numbers.
type ChatRef string

func (c *ChatRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ChatRef(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("chat id must be a string or a number: %s", data)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("chat id %s is not an integer", n)
	}
	*c = ChatRef(n.String())
	return nil
}
