package events

import (
	"strings"
	"time"
)

// Event payload types shared between the control surface, the outbox and the gateway

// Type names a lifting domain event.
type Type string

const (
	FlightSelected   Type = "FlightSelected"
	AttemptMarked    Type = "AttemptMarked"
	WeightAutoFilled Type = "WeightAutoFilled"
	LiftAdvanced     Type = "LiftAdvanced"
	FlightCompleted  Type = "FlightCompleted"
	RecordAttempt    Type = "RecordAttempt"
)

// SubjectPrefix is the JetStream subject root for relayed events.
const SubjectPrefix = "meet.events"

// Subject returns the subject an event of type t for aggregate is published on.
func Subject(aggregate string, t Type) string {
	return SubjectPrefix + "." + subjectToken.Replace(aggregate) + "." + string(t)
}

// subjectToken keeps an aggregate id inside a single subject token.
var subjectToken = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// FlightSelectedPayload is the payload for a FlightSelected event
type FlightSelectedPayload struct {
	Day        int       `json:"day"`
	Platform   int       `json:"platform"`
	Flight     string    `json:"flight"`
	EntryCount int       `json:"entry_count"`
	SelectedAt time.Time `json:"selected_at"`
}

// AttemptMarkedPayload is the payload for an AttemptMarked event
type AttemptMarkedPayload struct {
	EntryID     string    `json:"entry_id"`
	AthleteName string    `json:"athlete_name"`
	Lift        string    `json:"lift"`
	Attempt     int       `json:"attempt"`
	WeightKg    float64   `json:"weight_kg"`
	Outcome     string    `json:"outcome"`
	Previous    string    `json:"previous"`
	Correction  bool      `json:"correction"`
	MarkedAt    time.Time `json:"marked_at"`
}

// WeightAutoFilledPayload is the payload for a WeightAutoFilled event
type WeightAutoFilledPayload struct {
	EntryID     string    `json:"entry_id"`
	AthleteName string    `json:"athlete_name"`
	Lift        string    `json:"lift"`
	Attempt     int       `json:"attempt"`
	WeightKg    float64   `json:"weight_kg"`
	FilledAt    time.Time `json:"filled_at"`
}

// LiftAdvancedPayload is the payload for a LiftAdvanced event
type LiftAdvancedPayload struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	AdvancedAt time.Time `json:"advanced_at"`
}

// FlightCompletedPayload is the payload for a FlightCompleted event
type FlightCompletedPayload struct {
	Day         int       `json:"day"`
	Platform    int       `json:"platform"`
	Flight      string    `json:"flight"`
	CompletedAt time.Time `json:"completed_at"`
}

// RecordAttemptPayload is the payload for a RecordAttempt event
type RecordAttemptPayload struct {
	EntryID     string    `json:"entry_id"`
	AthleteName string    `json:"athlete_name"`
	Lift        string    `json:"lift"`
	Attempt     int       `json:"attempt"`
	WeightKg    float64   `json:"weight_kg"`
	Scopes      []string  `json:"scopes"`
	CheckedAt   time.Time `json:"checked_at"`
}
