// Package mirror replicates the control surface state to passive display views.
//
// One Primary publishes, any number of Replicas follow. They talk over a named
// broadcast Channel that delivers every message to every subscriber, including
// the sender, so each side drops envelopes carrying its own Source.
package mirror

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType is the kind of an envelope.
type MessageType string

const (
	TypeSyncState          MessageType = "SYNC_STATE"
	TypeConnectionCheck    MessageType = "CONNECTION_CHECK"
	TypeConnectionResponse MessageType = "CONNECTION_RESPONSE"
	TypeWindowClosed       MessageType = "WINDOW_CLOSED"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeSyncState, TypeConnectionCheck, TypeConnectionResponse, TypeWindowClosed:
		return true
	}
	return false
}

// Source tells which side authored an envelope.
type Source string

const (
	SourceMain   Source = "main"
	SourceMirror Source = "mirror"
)

// Envelope is the wire format of every mirror message.
type Envelope struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Source    Source          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope stamps a message with a fresh id.
func NewEnvelope(t MessageType, source Source, data json.RawMessage, now time.Time) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      t,
		Data:      data,
		Source:    source,
		Timestamp: now.UTC(),
	}
}
