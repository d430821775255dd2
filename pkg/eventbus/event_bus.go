// Package eventbus carries delivery requests and their outcomes between courier processes.
package eventbus

import (
	"context"

	"github.com/dukex/courier/pkg/events"
)

// Event is any message of pkg/events.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes events. key groups related events: events sharing
// a key are consumed in publication order by a single worker.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler receives a pointer to the decoded event. Returning an error
// asks the transport to redeliver the message.
type EventHandler func(ctx context.Context, event any) error

type EventSubscriber interface {
	// Handle registers the handler of one event type. Events without a
	// handler are acknowledged and dropped.
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
