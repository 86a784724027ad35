package port

import (
	"context"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/event"
)

// Notification is a message addressed to one recipient
type Notification struct {
	RecipientID string
	Title       string
	Body        string

	// DedupeKey lets the channel drop a message it already delivered
	DedupeKey string
}

// Notifier delivers notifications to people (chat, mail)
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// EventPublisher forwards domain events to an external broker
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
	Close() error
}
