// Package notify delivers transactional email.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Beloved1310/Behavioural-learning-platformBE-sub001/internal/config"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends one message and returns once the provider has accepted it.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer picks the provider named in cfg. "log" writes messages to the
// logger instead of delivering them.
func NewMailer(cfg config.MailConfig, log zerolog.Logger) (Mailer, error) {
	var mailer Mailer
	switch strings.ToLower(cfg.Provider) {
	case "smtp":
		if cfg.SMTPHost == "" || cfg.From == "" {
			return nil, fmt.Errorf("smtp mailer requires host and from address")
		}
		mailer = NewSMTPMailer(cfg)
	case "sendgrid":
		if cfg.SendGridKey == "" || cfg.From == "" {
			return nil, fmt.Errorf("sendgrid mailer requires api key and from address")
		}
		mailer = NewSendGridMailer(cfg)
	case "log", "":
		mailer = NewLogMailer(log)
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
	return WithTimeout(mailer, cfg), nil
}

type timeoutMailer struct {
	next Mailer
	cfg  config.MailConfig
}

// WithTimeout bounds every send by cfg.Timeout.
func WithTimeout(next Mailer, cfg config.MailConfig) Mailer {
	if cfg.Timeout <= 0 {
		return next
	}
	return &timeoutMailer{next: next, cfg: cfg}
}

func (m *timeoutMailer) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	return m.next.Send(ctx, msg)
}

type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("html_bytes", len(msg.HTML)).
		Msg("email not delivered (log mailer)")
	return nil
}
