package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/events"
)

// OutboxRepository defines what the app layer needs from the repository
type OutboxRepository interface {
	InsertOutboxEvent(ctx context.Context, event OutboxEvent) error
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error)
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	CountUnsent(ctx context.Context) (int64, error)
}

// App handles outbox business logic
type App struct {
	repo   OutboxRepository
	source string
}

// NewApp creates a new outbox App. source tags every event with the
// platform that produced it.
func NewApp(repo OutboxRepository, source string) *App {
	return &App{
		repo:   repo,
		source: source,
	}
}

// Record inserts a lifting event into the outbox
func (a *App) Record(ctx context.Context, aggregateID string, eventType events.Type, payload []byte) error {
	if err := a.validateEventPayload(payload); err != nil {
		return fmt.Errorf("invalid %s payload: %w", eventType, err)
	}

	metadata := pqtype.NullRawMessage{}
	if a.source != "" {
		raw, err := json.Marshal(map[string]string{"source": a.source})
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		metadata = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	event := OutboxEvent{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		EventType:   string(eventType),
		Payload:     payload,
		Metadata:    metadata,
	}
	if err := a.repo.InsertOutboxEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to insert %s event: %w", eventType, err)
	}

	log.Info().
		Str("aggregate_id", aggregateID).
		Str("event_type", string(eventType)).
		Str("event_id", event.ID.String()).
		Msg("outbox event inserted")

	return nil
}

// FetchUnsentEvents fetches unsent outbox events
func (a *App) FetchUnsentEvents(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	events, err := a.repo.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent events: %w", err)
	}

	if len(events) > 0 {
		log.Debug().
			Int("count", len(events)).
			Msg("fetched unsent outbox events")
	}

	return events, nil
}

// GetEventByID fetches a specific outbox event by ID
func (a *App) GetEventByID(ctx context.Context, eventID uuid.UUID) (*OutboxEvent, error) {
	event, err := a.repo.FetchOutboxByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event by ID: %w", err)
	}
	return event, nil
}

// MarkEventSent marks an outbox event as sent
func (a *App) MarkEventSent(ctx context.Context, eventID uuid.UUID) error {
	if err := a.repo.MarkOutboxSent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}

	log.Debug().
		Str("event_id", eventID.String()).
		Msg("marked outbox event as sent")

	return nil
}

// Backlog returns the number of events not yet relayed
func (a *App) Backlog(ctx context.Context) (int64, error) {
	return a.repo.CountUnsent(ctx)
}

// validateEventPayload validates that the event payload is a JSON document
func (a *App) validateEventPayload(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("event payload cannot be empty")
	}
	if !json.Valid(payload) {
		return fmt.Errorf("event payload is not valid JSON")
	}
	return nil
}

// LogRecorder writes events to the log only, for meets run without Postgres.
type LogRecorder struct{}

func (LogRecorder) Record(_ context.Context, aggregateID string, eventType events.Type, payload []byte) error {
	log.Info().
		Str("aggregate_id", aggregateID).
		Str("event_type", string(eventType)).
		RawJSON("payload", payload).
		Msg("lifting event")
	return nil
}
