package roster

import (
	"errors"
	"fmt"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

// FlightFilter selects the entries lifting in one flight.
type FlightFilter struct {
	Day      int
	Platform int
	Flight   string
}

// FilterFor builds the filter for a flight key.
func FilterFor(k models.FlightKey) FlightFilter {
	return FlightFilter{Day: k.Day, Platform: k.Platform, Flight: k.Flight}
}

func (f FlightFilter) Validate() error {
	if f.Day < 1 {
		return fmt.Errorf("day must be positive, got %d", f.Day)
	}
	if f.Platform < 1 {
		return fmt.Errorf("platform must be positive, got %d", f.Platform)
	}
	if f.Flight == "" {
		return errors.New("flight is required")
	}
	return nil
}

// EntryUpdate changes a single aspect of an entry: either the whole status
// array of one lift, or one declared weight.
type EntryUpdate struct {
	Lift     models.Lift
	Statuses *[models.AttemptsPerLift]models.AttemptStatus
	Attempt  int
	Weight   *float64
}

// StatusUpdate replaces the status array of a lift.
func StatusUpdate(lift models.Lift, statuses [models.AttemptsPerLift]models.AttemptStatus) EntryUpdate {
	return EntryUpdate{Lift: lift, Statuses: &statuses}
}

// WeightUpdate sets the declared weight of a one-indexed attempt.
func WeightUpdate(lift models.Lift, attempt int, weight float64) EntryUpdate {
	return EntryUpdate{Lift: lift, Attempt: attempt, Weight: &weight}
}

func (u EntryUpdate) Validate() error {
	if !u.Lift.Valid() {
		return fmt.Errorf("invalid lift %d", int(u.Lift))
	}
	if (u.Statuses == nil) == (u.Weight == nil) {
		return errors.New("update must carry either statuses or a weight")
	}
	if u.Weight != nil {
		if u.Attempt < 1 || u.Attempt > models.AttemptsPerLift {
			return fmt.Errorf("attempt must be between 1 and %d, got %d", models.AttemptsPerLift, u.Attempt)
		}
		if *u.Weight < 0 {
			return fmt.Errorf("weight cannot be negative, got %.1f", *u.Weight)
		}
	}
	if u.Statuses != nil {
		for i, s := range u.Statuses {
			if !s.Valid() {
				return fmt.Errorf("invalid status %d for attempt %d", int(s), i+1)
			}
		}
	}
	return nil
}

// Apply returns a copy of the entry with the update applied.
func (u EntryUpdate) Apply(e models.Entry) models.Entry {
	if u.Statuses != nil {
		e.Lifts[u.Lift].Statuses = *u.Statuses
	}
	if u.Weight != nil {
		e.Lifts[u.Lift].Weights[u.Attempt-1] = *u.Weight
	}
	return e
}
