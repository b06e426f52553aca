package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// OutboxEvent is a lifting domain event waiting to be relayed.
type OutboxEvent struct {
	ID          uuid.UUID             `json:"id"`
	AggregateID string                `json:"aggregate_id"`
	EventType   string                `json:"event_type"`
	Payload     json.RawMessage       `json:"payload"`
	Metadata    pqtype.NullRawMessage `json:"metadata"`
	CreatedAt   time.Time             `json:"created_at"`
	SentAt      *time.Time            `json:"sent_at,omitempty"`
}

// EventPublisher delivers an event to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
