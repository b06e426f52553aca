package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/events"
)

// StreamConfig describes the durable stream the relay writes to.
type StreamConfig struct {
	Name            string
	MaxAge          time.Duration
	MaxMsgs         int64
	Replicas        int
	DuplicateWindow time.Duration
}

func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "MEET_EVENTS",
		MaxAge:          30 * 24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

func (c StreamConfig) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        c.Name,
		Description: "Live meet events relayed from the lifting outbox",
		Subjects:    []string{events.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      c.MaxAge,
		MaxMsgs:     c.MaxMsgs,
		Replicas:    c.Replicas,
		Duplicates:  c.DuplicateWindow,
	}
}

// ConnectNATS dials with unlimited reconnects and logs connection changes.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error().Err(err).Str("client", name).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("client", name).Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Envelope is what lands on the stream for every lifting event.
type Envelope struct {
	EventID     string          `json:"eventId"`
	EventType   string          `json:"eventType"`
	AggregateID string          `json:"aggregateId"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

func NewEnvelope(event OutboxEvent, now time.Time) Envelope {
	return Envelope{
		EventID:     event.ID.String(),
		EventType:   event.EventType,
		AggregateID: event.AggregateID,
		Timestamp:   now.UTC(),
		Payload:     event.Payload,
	}
}

// JetStreamPublisher publishes outbox rows with the row id as the message
// id, so a replay inside the duplicate window is dropped by the server.
type JetStreamPublisher struct {
	js     jetstream.JetStream
	stream string
	now    func() time.Time
}

// NewJetStreamPublisher creates or updates the stream on nc. The caller
// owns nc.
func NewJetStreamPublisher(ctx context.Context, nc *nats.Conn, cfg StreamConfig) (*JetStreamPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, cfg.streamConfig())
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
	}
	info := stream.CachedInfo()
	log.Info().
		Str("stream", cfg.Name).
		Uint64("messages", info.State.Msgs).
		Msg("JetStream stream ready")

	return &JetStreamPublisher{js: js, stream: cfg.Name, now: time.Now}, nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	subject := events.Subject(event.AggregateID, events.Type(event.EventType))

	data, err := json.Marshal(NewEnvelope(event, p.now()))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Event-Type", event.EventType)
	msg.Header.Set("Aggregate-ID", event.AggregateID)

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(p.stream),
	)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", event.ID, subject, err)
	}
	if ack.Duplicate {
		log.Debug().Str("event_id", event.ID.String()).Msg("event already on stream")
		return nil
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", event.ID.String()).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")
	return nil
}
