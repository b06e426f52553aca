package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ChangeChannel is the NOTIFY channel the entries trigger writes to.
const ChangeChannel = "entry_changes"

// EntryChange is the payload of an entry_changes notification.
type EntryChange struct {
	ID       uuid.UUID `json:"id"`
	Day      int       `json:"day"`
	Platform int       `json:"platform"`
	Flight   string    `json:"flight"`
}

// Matches reports whether the change touches the given flight.
func (c EntryChange) Matches(f FlightFilter) bool {
	return c.Day == f.Day && c.Platform == f.Platform && c.Flight == f.Flight
}

type ListenerConfig struct {
	DatabaseURL   string
	NotifyChannel string
	PingInterval  time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel: ChangeChannel,
		PingInterval:  90 * time.Second,
	}
}

// ChangeListener forwards entry notifications written by the roster editor.
type ChangeListener struct {
	listener *pq.Listener
	cfg      ListenerConfig
	onChange func(ctx context.Context, change EntryChange)
}

func NewChangeListener(cfg ListenerConfig, onChange func(ctx context.Context, change EntryChange)) (*ChangeListener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("entry listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().Str("channel", cfg.NotifyChannel).Msg("listening for entry changes")
	return &ChangeListener{listener: l, cfg: cfg, onChange: onChange}, nil
}

func (l *ChangeListener) Start(ctx context.Context) error {
	pingTicker := time.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("entry listener shutting down")
			return l.listener.Close()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established; changes may have been missed
				l.onChange(ctx, EntryChange{})
				continue
			}
			change, err := ParseEntryChange(note.Extra)
			if err != nil {
				log.Error().Err(err).Str("payload", note.Extra).Msg("invalid entry notification")
				continue
			}
			l.onChange(ctx, change)
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping entry listener")
			}
		}
	}
}

// ParseEntryChange decodes a notification payload.
func ParseEntryChange(extra string) (EntryChange, error) {
	var change EntryChange
	if err := json.Unmarshal([]byte(extra), &change); err != nil {
		return EntryChange{}, fmt.Errorf("failed to decode entry change: %w", err)
	}
	return change, nil
}
