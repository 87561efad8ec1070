package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the log. It is used when no admin
// chat is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs at warn level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the notification.
func (l *LogNotifier) Send(ctx context.Context, notification Notification) error {
	l.logger.WarnContext(ctx, "notification",
		"subject", notification.Subject,
		"body", notification.Body,
	)
	return nil
}
