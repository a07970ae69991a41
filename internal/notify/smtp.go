package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
)

type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		from:   fmt.Sprintf("%s <%s>", cfg.AppName, cfg.From),
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
	}
}

func (m *SMTPMailer) message(msg Message) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)
	return gm
}

// Send dials per message. gomail has no context support, so ctx only bounds
// how long the caller waits.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(m.message(msg))
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	}
}
