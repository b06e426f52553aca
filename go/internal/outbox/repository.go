package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

var ErrEventNotFound = errors.New("outbox event not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
	}
}

const outboxColumns = `id, aggregate_id, event_type, payload, metadata, created_at, sent_at`

func (r *Repository) InsertOutboxEvent(ctx context.Context, event OutboxEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lifting_outbox (id, aggregate_id, event_type, payload, metadata)
		VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.AggregateID, event.EventType, []byte(event.Payload), event.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", event.EventType, err)
	}
	return nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM lifting_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM lifting_outbox WHERE id = $1`, id)
	event, err := scanOutboxEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE lifting_outbox SET sent_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

// CountUnsent returns the relay backlog.
func (r *Repository) CountUnsent(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM lifting_outbox WHERE sent_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxEvent(row rowScanner) (OutboxEvent, error) {
	var (
		event    OutboxEvent
		payload  []byte
		metadata pqtype.NullRawMessage
		sentAt   sql.NullTime
	)
	if err := row.Scan(&event.ID, &event.AggregateID, &event.EventType, &payload, &metadata, &event.CreatedAt, &sentAt); err != nil {
		return OutboxEvent{}, err
	}
	event.Payload = payload
	event.Metadata = metadata
	if sentAt.Valid {
		event.SentAt = &sentAt.Time
	}
	return event, nil
}
