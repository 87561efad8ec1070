package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abdulachik/autoposter/internal/telegram"
)

// maxMessageRunes is the Bot API limit for a text message.
const maxMessageRunes = 4096

// TextSender is the part of the Bot API client a TelegramNotifier needs.
type TextSender interface {
	SendText(ctx context.Context, chatID, text string, opts telegram.SendOptions) (telegram.Message, error)
}

// TelegramNotifier sends notifications to an admin chat.
type TelegramNotifier struct {
	sender TextSender
	chatID string
	silent bool
}

// TelegramConfig holds configuration for Telegram notifications.
type TelegramConfig struct {
	Sender TextSender
	ChatID string // chat that receives notifications
	Silent bool   // deliver without a notification sound
}

// NewTelegramNotifier creates a new Telegram notifier.
func NewTelegramNotifier(cfg TelegramConfig) (*TelegramNotifier, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("telegram notifier: sender is required")
	}
	if cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram notifier: chat id is required")
	}
	return &TelegramNotifier{
		sender: cfg.Sender,
		chatID: cfg.ChatID,
		silent: cfg.Silent,
	}, nil
}

// Send sends a notification as a plain text message.
func (t *TelegramNotifier) Send(ctx context.Context, notification Notification) error {
	text := notification.Subject
	if notification.Body != "" {
		text += "\n\n" + notification.Body
	}
	if runes := []rune(text); len(runes) > maxMessageRunes {
		text = string(runes[:maxMessageRunes-1]) + "…"
	}

	msg, err := t.sender.SendText(ctx, t.chatID, text, telegram.SendOptions{Silent: t.silent})
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}

	slog.Debug("notification sent", "chat_id", t.chatID, "message_id", msg.MessageID)
	return nil
}
