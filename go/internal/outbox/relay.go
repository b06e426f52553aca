package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// NotifyChannel is the channel the lifting_outbox insert trigger notifies on.
const NotifyChannel = "lifting_outbox_events"

type RelayConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int32 // Max events to fetch per batch
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		NotifyChannel:    NotifyChannel,
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// RelayStore is the part of App the relay drives.
type RelayStore interface {
	FetchUnsentEvents(ctx context.Context, limit int32) ([]OutboxEvent, error)
	GetEventByID(ctx context.Context, eventID uuid.UUID) (*OutboxEvent, error)
	MarkEventSent(ctx context.Context, eventID uuid.UUID) error
	Backlog(ctx context.Context) (int64, error)
}

// Relay forwards outbox rows to the message bus as soon as they are
// notified, and sweeps for anything missed on a fixed interval.
type Relay struct {
	store     RelayStore
	publisher EventPublisher
	metrics   MetricsCollector
	cfg       RelayConfig
}

func NewRelay(store RelayStore, publisher EventPublisher, metrics MetricsCollector, cfg RelayConfig) *Relay {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	defaults := DefaultRelayConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = defaults.FallbackInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.NotifyChannel == "" {
		cfg.NotifyChannel = defaults.NotifyChannel
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Start listens until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	l := pq.NewListener(
		r.cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("outbox listener event")
			}
		},
	)
	defer l.Close()
	if err := l.Listen(r.cfg.NotifyChannel); err != nil {
		return fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", r.cfg.NotifyChannel).
		Dur("ping_interval", r.cfg.PingInterval).
		Dur("fallback_interval", r.cfg.FallbackInterval).
		Msg("outbox relay started")

	// Catch up on whatever was written while the relay was down.
	if err := r.ProcessUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}

	pingTicker := time.NewTicker(r.cfg.PingInterval)
	fallbackTicker := time.NewTicker(r.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox relay shutting down")
			return nil
		case note := <-l.Notify:
			if note == nil {
				// connection was re-established; notifications may have been lost
				if err := r.ProcessUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent events")
				}
				continue
			}
			if err := r.HandleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.C:
			if err := r.ProcessUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		case <-pingTicker.C:
			if err := l.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping outbox listener")
			}
		}
	}
}

// HandleNotification publishes the event whose id is the notification payload.
func (r *Relay) HandleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := r.store.GetEventByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	if event.SentAt != nil {
		// already swept by the fallback poll
		return nil
	}

	if err := r.publishWithRetry(ctx, *event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	log.Debug().Str("event_id", id.String()).Msg("published and marked event as sent")
	return nil
}

// ProcessUnsent publishes one batch of unsent events in creation order.
func (r *Relay) ProcessUnsent(ctx context.Context) error {
	start := time.Now()
	unsent, err := r.store.FetchUnsentEvents(ctx, r.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	published := 0
	for _, event := range unsent {
		if err := r.publishWithRetry(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to publish event")
			// later events must not overtake this one
			break
		}
		published++
	}
	r.metrics.RecordBatchProcessed(published, time.Since(start))

	if backlog, err := r.store.Backlog(ctx); err == nil {
		r.metrics.RecordOutboxLag(int(backlog))
	}
	return nil
}

// publishWithRetry publishes with a linear backoff, then marks the event sent.
func (r *Relay) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			r.metrics.RecordPublishAttempt(event.EventType, attempt+1, false)
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}
		r.metrics.RecordPublishAttempt(event.EventType, attempt+1, true)

		if err := r.store.MarkEventSent(ctx, event.ID); err != nil {
			return err
		}
		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
