// Package events publishes account lifecycle events for downstream services.
package events

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"
)

type Type string

const (
	UserRegistered    Type = "user.registered"
	UserVerified      Type = "user.verified"
	UserLoggedIn      Type = "user.logged_in"
	UserPasswordReset Type = "user.password_reset"
)

type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	UserID     string    `json:"userId"`
	Email      string    `json:"email,omitempty"`
	Role       string    `json:"role,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func New(kind Type, userID, email, role string, now time.Time) Event {
	return Event{
		ID:         ksuid.New().String(),
		Type:       kind,
		UserID:     userID,
		Email:      email,
		Role:       role,
		OccurredAt: now.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops events. It is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
