// Package attempt implements the lifecycle of a single (athlete, lift, attempt) cell.
package attempt

import (
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

// DefaultIncrementKg is added to a good lift when the next weight is filled in automatically.
const DefaultIncrementKg = 2.5

// State is the lifecycle position of one attempt cell.
type State int

const (
	StateNotDeclared State = iota
	StatePending
	StateGood
	StateNoLift
	StateNoAttempt
)

func (s State) String() string {
	switch s {
	case StateNotDeclared:
		return "not_declared"
	case StatePending:
		return "pending"
	case StateGood:
		return "good"
	case StateNoLift:
		return "no_lift"
	case StateNoAttempt:
		return "no_attempt"
	default:
		return "unknown"
	}
}

// CellState reads the state of a one-indexed attempt from an entry.
func CellState(e models.Entry, lift models.Lift, attempt int) State {
	if !e.Declared(lift, attempt) {
		return StateNotDeclared
	}
	switch e.Status(lift, attempt) {
	case models.StatusGood:
		return StateGood
	case models.StatusNoLift:
		return StateNoLift
	case models.StatusNoAttempt:
		return StateNoAttempt
	default:
		return StatePending
	}
}

func stateFor(status models.AttemptStatus) State {
	switch status {
	case models.StatusGood:
		return StateGood
	case models.StatusNoLift:
		return StateNoLift
	case models.StatusNoAttempt:
		return StateNoAttempt
	default:
		return StatePending
	}
}

// CanTransition reports whether a cell may move from one state to another.
// Judged outcomes can be corrected between good and no lift, but nothing
// returns to pending and no-attempt is only ever set by the roster editor.
func CanTransition(from, to State) bool {
	switch from {
	case StateNotDeclared:
		return to == StatePending
	case StatePending:
		return to == StateGood || to == StateNoLift || to == StateNoAttempt
	case StateGood, StateNoLift:
		return to == StateGood || to == StateNoLift
	default:
		return false
	}
}

// ValidateProgression checks the weight of an attempt against the previous one.
// After a good lift the bar must go up; after a miss it may not go down.
func ValidateProgression(attempt int, prevWeight float64, prevStatus models.AttemptStatus, weight float64) error {
	if prevWeight <= 0 {
		return nil
	}
	switch prevStatus {
	case models.StatusGood:
		if weight <= prevWeight {
			return &ProgressionError{Attempt: attempt, Weight: weight, Previous: prevWeight, PreviousStatus: prevStatus}
		}
	case models.StatusNoLift:
		if weight < prevWeight {
			return &ProgressionError{Attempt: attempt, Weight: weight, Previous: prevWeight, PreviousStatus: prevStatus}
		}
	}
	return nil
}

// IsAccessible reports whether the operator may navigate to an attempt: it is
// declared, already judged, the opener, or the attempt the flight is on.
func IsAccessible(e models.Entry, lift models.Lift, attempt, liveAttempt int) bool {
	if attempt < 1 || attempt > models.AttemptsPerLift {
		return false
	}
	if attempt == 1 || attempt == liveAttempt {
		return true
	}
	return e.Declared(lift, attempt) || e.Status(lift, attempt) != models.StatusPending
}

// ProposeNextWeight computes the weight filled in for an attempt when its
// declaration window runs out. ok is false when no proposal applies.
func ProposeNextWeight(e models.Entry, lift models.Lift, attempt int, incrementKg float64) (float64, bool) {
	if attempt < 2 || attempt > models.AttemptsPerLift {
		return 0, false
	}
	prev := e.Weight(lift, attempt-1)
	if prev <= 0 {
		return 0, false
	}
	switch e.Status(lift, attempt-1) {
	case models.StatusGood:
		return prev + incrementKg, true
	case models.StatusNoLift:
		return prev, true
	default:
		return 0, false
	}
}
