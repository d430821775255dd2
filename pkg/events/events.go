// Package events defines the messages exchanged between the courier API and its workers.
package events

import (
	"time"

	"github.com/dukex/courier/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "courier.deliveries"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	DeliveryRequestedEvent     EventType = "delivery.requested"
	SubscriptionCompletedEvent EventType = "subscription.completed"
	DeliveryFailedEvent        EventType = "delivery.failed"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	Destination string         `json:"destination"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, destination string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		Destination: destination,
		Metadata:    make(map[string]any),
	}
}

// DeliveryRequested asks a worker to deliver one event to a destination
// instance. Requests sharing a BatchKey may be delivered together.
type DeliveryRequested struct {
	BaseEvent

	Settings models.Settings `json:"settings"`
	Event    models.Event    `json:"event"`
	BatchKey string          `json:"batch_key,omitempty"`
}

func (d DeliveryRequested) GetType() EventType {
	return DeliveryRequestedEvent
}

func NewDeliveryRequested(destination string, settings models.Settings, event models.Event, batchKey string) DeliveryRequested {
	return DeliveryRequested{
		BaseEvent: NewBaseEvent(DeliveryRequestedEvent, destination),
		Settings:  settings,
		Event:     event,
		BatchKey:  batchKey,
	}
}

// SubscriptionCompleted reports the outcome of one subscription invocation.
type SubscriptionCompleted struct {
	BaseEvent

	Action     string          `json:"action"`
	Subscribe  any             `json:"subscribe,omitempty"`
	EventCount int             `json:"event_count"`
	Results    []models.Result `json:"results"`
	DurationMs int64           `json:"duration_ms"`
	Failed     bool            `json:"failed"`
}

func (s SubscriptionCompleted) GetType() EventType {
	return SubscriptionCompletedEvent
}

func NewSubscriptionCompleted(stats models.SubscriptionStats) SubscriptionCompleted {
	failed := false

	for _, result := range stats.Output {
		if result.Failed() {
			failed = true

			break
		}
	}

	return SubscriptionCompleted{
		BaseEvent:  NewBaseEvent(SubscriptionCompletedEvent, stats.Destination),
		Action:     stats.Action,
		Subscribe:  stats.Subscribe,
		EventCount: len(stats.Input.Data),
		Results:    stats.Output,
		DurationMs: stats.Duration.Milliseconds(),
		Failed:     failed,
	}
}

// DeliveryFailed is published when a delivery fails as a whole.
type DeliveryFailed struct {
	BaseEvent

	RequestIDs []string `json:"request_ids"`
	Error      string   `json:"error"`
	Code       string   `json:"code"`
	Status     int      `json:"status"`
}

func (d DeliveryFailed) GetType() EventType {
	return DeliveryFailedEvent
}
