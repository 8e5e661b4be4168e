// Package eventbus carries execution requests from the API to workers and lifecycle events
// from the engine to anyone listening.
package eventbus

import (
	"context"

	"github.com/autoflow-io/autoflow/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes events under a partition key. Execution events use the
// execution id, so one run's events stay ordered on partitioned brokers.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes decoded events to one handler per event type. A handler error
// asks the broker to redeliver the message.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the concrete event type, e.g. *events.ExecutionRequested.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
