package attempt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/roster"
)

// EntryWriter defines what marking needs from the record store
type EntryWriter interface {
	UpdateEntry(ctx context.Context, id uuid.UUID, update roster.EntryUpdate) error
}

// MarkRequest describes one judging decision.
type MarkRequest struct {
	Lift       models.Lift
	Attempt    int
	Outcome    models.AttemptStatus
	Correction bool
}

// MarkResult is what was written.
type MarkResult struct {
	EntryID  uuid.UUID
	Lift     models.Lift
	Attempt  int
	Weight   float64
	Outcome  models.AttemptStatus
	Previous State
	Entry    models.Entry
}

// Marker judges attempts and writes the outcome through the record store.
type Marker struct {
	store EntryWriter
}

// NewMarker creates a new Marker
func NewMarker(store EntryWriter) *Marker {
	return &Marker{store: store}
}

// Mark validates and records the outcome of an attempt. Nothing is written
// when validation fails. Corrections skip the progression check.
func (m *Marker) Mark(ctx context.Context, entry models.Entry, req MarkRequest) (*MarkResult, error) {
	if req.Outcome != models.StatusGood && req.Outcome != models.StatusNoLift {
		return nil, ErrInvalidOutcome
	}
	if req.Attempt < 1 || req.Attempt > models.AttemptsPerLift {
		return nil, ErrInvalidAttempt
	}

	weight := entry.Weight(req.Lift, req.Attempt)
	if weight <= 0 {
		return nil, ErrWeightNotDeclared
	}

	from := CellState(entry, req.Lift, req.Attempt)
	to := stateFor(req.Outcome)
	if !CanTransition(from, to) {
		return nil, &TransitionError{From: from, To: to}
	}

	if !req.Correction && req.Attempt > 1 {
		prevWeight := entry.Weight(req.Lift, req.Attempt-1)
		prevStatus := entry.Status(req.Lift, req.Attempt-1)
		if err := ValidateProgression(req.Attempt, prevWeight, prevStatus, weight); err != nil {
			return nil, err
		}
	}

	statuses := entry.Attempts(req.Lift).Statuses
	statuses[req.Attempt-1] = req.Outcome
	update := roster.StatusUpdate(req.Lift, statuses)

	if err := m.store.UpdateEntry(ctx, entry.ID, update); err != nil {
		return nil, fmt.Errorf("failed to record attempt outcome: %w", err)
	}

	log.Info().
		Str("entry_id", entry.ID.String()).
		Str("lift", req.Lift.String()).
		Int("attempt", req.Attempt).
		Float64("weight_kg", weight).
		Str("outcome", req.Outcome.String()).
		Bool("correction", req.Correction).
		Msg("attempt marked")

	return &MarkResult{
		EntryID:  entry.ID,
		Lift:     req.Lift,
		Attempt:  req.Attempt,
		Weight:   weight,
		Outcome:  req.Outcome,
		Previous: from,
		Entry:    update.Apply(entry),
	}, nil
}
