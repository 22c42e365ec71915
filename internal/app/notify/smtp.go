package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

const codeSubject = "Your verification code"

// SMTPConfig holds the relay settings used to deliver codes by email.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier delivers codes through an authenticated SMTP relay.
type SMTPNotifier struct {
	client *mail.Client
	from   string
}

// NewSMTPNotifier prepares a client; no connection is made until the first send.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTPNotifier{client: client, from: cfg.From}, nil
}

func (n *SMTPNotifier) SendCode(ctx context.Context, email, code string) error {
	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(email); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	msg.Subject(codeSubject)
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf("Your verification code is: %s\n", code))

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send code: %w", err)
	}
	return nil
}
