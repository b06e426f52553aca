package models

import (
	"github.com/google/uuid"
)

// LiftAttempts holds the declared weights and judged statuses of one movement.
// A weight of zero means the attempt has not been declared yet.
type LiftAttempts struct {
	Weights  [AttemptsPerLift]float64       `json:"weights"`
	Statuses [AttemptsPerLift]AttemptStatus `json:"statuses"`
}

// Entry is one athlete's registration in a flight together with their attempts.
type Entry struct {
	ID           uuid.UUID               `json:"id"`
	Name         string                  `json:"name"`
	Day          int                     `json:"day"`
	Platform     int                     `json:"platform"`
	Flight       string                  `json:"flight"`
	LotNumber    int                     `json:"lot_number"`
	Sex          string                  `json:"sex"`
	Division     string                  `json:"division"`
	WeightClass  string                  `json:"weight_class"`
	BodyweightKg float64                 `json:"bodyweight_kg"`
	Lifts        [LiftCount]LiftAttempts `json:"lifts"`
}

// Attempts returns the attempt block for a movement.
func (e Entry) Attempts(l Lift) LiftAttempts {
	if !l.Valid() {
		return LiftAttempts{}
	}
	return e.Lifts[l]
}

// Weight returns the declared weight of a one-indexed attempt, or 0.
func (e Entry) Weight(l Lift, attempt int) float64 {
	if !l.Valid() || attempt < 1 || attempt > AttemptsPerLift {
		return 0
	}
	return e.Lifts[l].Weights[attempt-1]
}

// Status returns the status of a one-indexed attempt.
func (e Entry) Status(l Lift, attempt int) AttemptStatus {
	if !l.Valid() || attempt < 1 || attempt > AttemptsPerLift {
		return StatusPending
	}
	return e.Lifts[l].Statuses[attempt-1]
}

// Declared reports whether a one-indexed attempt has a weight.
func (e Entry) Declared(l Lift, attempt int) bool {
	return e.Weight(l, attempt) > 0
}
