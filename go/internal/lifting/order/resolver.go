// Package order derives the lifting order of a flight from its roster.
//
// Every function here is pure: the result depends only on the arguments and is
// recomputed from scratch on each call. Callers are expected to pass the roster
// already sorted for the attempt being contested (see SortForAttempt).
package order

import (
	"github.com/google/uuid"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

// NextAttemptNumberForEntry returns the attempt the athlete owes on the lift:
// the highest-indexed slot that is declared and still pending, scanning 3 down to 1.
// It returns 0 when nothing is owed.
func NextAttemptNumberForEntry(e models.Entry, lift models.Lift) int {
	a := e.Attempts(lift)
	for i := models.AttemptsPerLift - 1; i >= 0; i-- {
		if a.Weights[i] > 0 && a.Statuses[i] == models.StatusPending {
			return i + 1
		}
	}
	return 0
}

// MaxAttemptNumberForEntry returns the highest declared slot that has been resolved, or 0.
func MaxAttemptNumberForEntry(e models.Entry, lift models.Lift) int {
	a := e.Attempts(lift)
	for i := models.AttemptsPerLift - 1; i >= 0; i-- {
		if a.Weights[i] > 0 && a.Statuses[i] != models.StatusPending {
			return i + 1
		}
	}
	return 0
}

// ActiveAttemptNumber returns the attempt currently being contested in the flight.
//
// An operator override always wins. Otherwise it is the lowest attempt any
// athlete still owes. When nobody owes anything the flight moves on to the
// attempt after the highest resolved one, wrapping to 1 once attempt 3 is done.
func ActiveAttemptNumber(roster []models.Entry, st models.LiftingState) int {
	if st.OverrideAttempt > 0 {
		return st.OverrideAttempt
	}

	lowest := 0
	maxResolved := 0
	for _, e := range roster {
		if n := NextAttemptNumberForEntry(e, st.Lift); n > 0 && (lowest == 0 || n < lowest) {
			lowest = n
		}
		if m := MaxAttemptNumberForEntry(e, st.Lift); m > maxResolved {
			maxResolved = m
		}
	}

	if lowest > 0 {
		return lowest
	}
	if maxResolved >= models.AttemptsPerLift {
		return 1
	}
	return maxResolved + 1
}

// CurrentEntryID returns the athlete on the platform: the override if set,
// else the first entry in roster order whose owed attempt is the active one.
func CurrentEntryID(roster []models.Entry, st models.LiftingState) uuid.NullUUID {
	return currentEntryID(roster, st, ActiveAttemptNumber(roster, st))
}

func currentEntryID(roster []models.Entry, st models.LiftingState, active int) uuid.NullUUID {
	if st.OverrideEntryID.Valid {
		return st.OverrideEntryID
	}
	for _, e := range roster {
		if NextAttemptNumberForEntry(e, st.Lift) == active {
			return models.SomeID(e.ID)
		}
	}
	return uuid.NullUUID{}
}

// NextEntryID returns the athlete following the current one.
func NextEntryID(roster []models.Entry, st models.LiftingState) uuid.NullUUID {
	active := ActiveAttemptNumber(roster, st)
	next, _ := nextEntry(roster, st.Lift, currentEntryID(roster, st, active), active)
	return next
}

// nextEntry keeps the current athlete when they owe a later attempt than the
// active one; otherwise it picks the first other athlete owing anything.
func nextEntry(roster []models.Entry, lift models.Lift, current uuid.NullUUID, active int) (uuid.NullUUID, int) {
	if current.Valid {
		for _, e := range roster {
			if e.ID != current.UUID {
				continue
			}
			if n := NextAttemptNumberForEntry(e, lift); n > active {
				return current, n
			}
			break
		}
	}

	for _, e := range roster {
		if current.Valid && e.ID == current.UUID {
			continue
		}
		if n := NextAttemptNumberForEntry(e, lift); n > 0 {
			return models.SomeID(e.ID), n
		}
	}
	return uuid.NullUUID{}, 0
}

// Resolve bundles the order computations for one roster snapshot.
func Resolve(roster []models.Entry, st models.LiftingState) models.LiftingOrder {
	active := ActiveAttemptNumber(roster, st)
	current := currentEntryID(roster, st, active)
	next, nextAttempt := nextEntry(roster, st.Lift, current, active)

	entries := make([]models.Entry, len(roster))
	copy(entries, roster)

	return models.LiftingOrder{
		AttemptOneIndexed:     active,
		OrderedEntries:        entries,
		CurrentEntryID:        current,
		NextEntryID:           next,
		NextAttemptOneIndexed: nextAttempt,
	}
}

// LiftExhausted reports that every athlete has finished the lift: each
// third attempt has been judged or recorded as No-Attempt. An athlete still
// between attempts, with the third weight not yet declared, keeps the lift
// open. An empty roster is never exhausted.
func LiftExhausted(roster []models.Entry, lift models.Lift) bool {
	if len(roster) == 0 {
		return false
	}
	for _, e := range roster {
		if !e.Status(lift, models.AttemptsPerLift).Resolved() {
			return false
		}
	}
	return true
}
