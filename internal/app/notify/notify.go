//go:generate go run go.uber.org/mock/mockgen -source=notify.go -destination=../../mocks/mock_notifier.go -package=mocks

/*
Package notify delivers one-time codes out of band.

Delivery is best effort. The chat core hands codes to a Dispatcher, which queues them and
calls the configured Notifier from a single background worker, paced by a token bucket.
Failures are logged and never surface to the session that requested the code.
*/
package notify

import (
	"context"
	"fmt"

	"linechat/internal/pkg/logx"
)

// Notifier sends a one-time code to an email address.
type Notifier interface {
	SendCode(ctx context.Context, email, code string) error
}

// LogNotifier writes codes to the application log instead of sending them.
// It is meant for development servers.
type LogNotifier struct{}

func (LogNotifier) SendCode(ctx context.Context, email, code string) error {
	logx.Info("One-time code issued", "email", email, "code", code)
	return nil
}

// New builds the notifier selected by kind ("log" or "smtp").
func New(kind string, smtp SMTPConfig) (Notifier, error) {
	switch kind {
	case "", "log":
		return LogNotifier{}, nil
	case "smtp":
		return NewSMTPNotifier(smtp)
	default:
		return nil, fmt.Errorf("unknown notifier %q", kind)
	}
}
