package telegram

import (
	"fmt"
	"strconv"
	"time"
)

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat is a Telegram chat. LinkedChatID is only filled in by GetChat.
type Chat struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	Title        string `json:"title,omitempty"`
	Username     string `json:"username,omitempty"`
	LinkedChatID int64  `json:"linked_chat_id,omitempty"`
}

// Message is a sent message handle.
type Message struct {
	MessageID    int64  `json:"message_id"`
	Chat         Chat   `json:"chat"`
	Date         int64  `json:"date"`
	MediaGroupID string `json:"media_group_id,omitempty"`
}

// ChatID returns the numeric chat id as a string.
func (m Message) ChatID() string {
	return strconv.FormatInt(m.Chat.ID, 10)
}

// ReplyParameters points a new message at an existing one. ChatID is only
// needed when the target lives in another chat.
type ReplyParameters struct {
	MessageID                int64  `json:"message_id"`
	ChatID                   string `json:"chat_id,omitempty"`
	AllowSendingWithoutReply bool   `json:"allow_sending_without_reply,omitempty"`
}

// SendOptions are the optional parameters shared by every send method.
type SendOptions struct {
	ReplyTo *ReplyParameters
	Silent  bool
}

// Media types accepted by sendMediaGroup.
const (
	MediaPhoto    = "photo"
	MediaVideo    = "video"
	MediaDocument = "document"
)

// InputMedia is one element of a media group backed by a local file.
type InputMedia struct {
	Type    string
	Path    string
	Caption string
}

// APIError is a request the Bot API answered with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}

type responseParameters struct {
	RetryAfter      int   `json:"retry_after,omitempty"`
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
}
