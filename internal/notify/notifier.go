// Package notify tells an operator about failed job cycles.
package notify

import (
	"context"
	"fmt"
)

// Notification is one message for the operator.
type Notification struct {
	Subject string
	Body    string
}

// JobFailed describes a failed cycle of job. runID may be empty when the
// cycle never started.
func JobFailed(job, runID string, err error) Notification {
	body := err.Error()
	if runID != "" {
		body = fmt.Sprintf("run %s\n%s", runID, body)
	}
	return Notification{
		Subject: fmt.Sprintf("autoposter: job %s failed", job),
		Body:    body,
	}
}

// Notifier delivers notifications. TelegramNotifier sends them to an admin
// chat and LogNotifier writes them to the log.
type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}
