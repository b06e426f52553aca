package models

import (
	"fmt"

	"github.com/google/uuid"
)

// FlightKey identifies a flight within a meet.
type FlightKey struct {
	Day      int    `json:"day"`
	Platform int    `json:"platform"`
	Flight   string `json:"flight"`
}

func (k FlightKey) String() string {
	return fmt.Sprintf("d%d-p%d-%s", k.Day, k.Platform, k.Flight)
}

// LiftingState is the operator-controlled state of the live flight.
type LiftingState struct {
	FlightKey
	Lift              Lift          `json:"lift"`
	AttemptOneIndexed int           `json:"attempt"`
	SelectedEntryID   uuid.NullUUID `json:"selected_entry_id"`
	SelectedAttempt   int           `json:"selected_attempt"`
	IsAttemptActive   bool          `json:"is_attempt_active"`
	OverrideEntryID   uuid.NullUUID `json:"override_entry_id"`
	OverrideAttempt   int           `json:"override_attempt,omitempty"`
}

// NewLiftingState returns the state of a freshly selected flight.
func NewLiftingState(key FlightKey) LiftingState {
	return LiftingState{
		FlightKey:         key,
		Lift:              LiftSquat,
		AttemptOneIndexed: 1,
		SelectedAttempt:   1,
	}
}

// LiftingOrder is the derived lifting order of the current roster.
type LiftingOrder struct {
	AttemptOneIndexed     int           `json:"attempt"`
	OrderedEntries        []Entry       `json:"entries"`
	CurrentEntryID        uuid.NullUUID `json:"current_entry_id"`
	NextEntryID           uuid.NullUUID `json:"next_entry_id"`
	NextAttemptOneIndexed int           `json:"next_attempt,omitempty"`
}

// Current returns the entry on the platform, if any.
func (o LiftingOrder) Current() (Entry, bool) {
	return o.find(o.CurrentEntryID)
}

// Next returns the entry that follows the current lifter, if any.
func (o LiftingOrder) Next() (Entry, bool) {
	return o.find(o.NextEntryID)
}

func (o LiftingOrder) find(id uuid.NullUUID) (Entry, bool) {
	if !id.Valid {
		return Entry{}, false
	}
	for _, e := range o.OrderedEntries {
		if e.ID == id.UUID {
			return e, true
		}
	}
	return Entry{}, false
}

// SomeID wraps an id as a set nullable id.
func SomeID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}
