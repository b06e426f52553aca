package attempt

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

func entryWith(weights [3]float64, statuses [3]models.AttemptStatus) models.Entry {
	e := models.Entry{ID: uuid.New(), Name: "Lifter"}
	e.Lifts[models.LiftBench] = models.LiftAttempts{Weights: weights, Statuses: statuses}
	return e
}

func TestValidateProgression_ProgressiveWeightLaw(t *testing.T) {
	for _, prev := range []float64{60, 100, 142.5} {
		for _, delta := range []float64{-5, -2.5, 0, 0.5, 2.5, 10} {
			err := ValidateProgression(2, prev, models.StatusGood, prev+delta)
			if delta > 0 {
				assert.NoError(t, err, "prev=%.1f delta=%.1f", prev, delta)
			} else {
				assert.Error(t, err, "prev=%.1f delta=%.1f", prev, delta)
			}
		}
	}
}

func TestValidateProgression_RepeatLaw(t *testing.T) {
	for _, prev := range []float64{60, 100, 142.5} {
		for _, delta := range []float64{-5, -2.5, 0, 2.5} {
			err := ValidateProgression(3, prev, models.StatusNoLift, prev+delta)
			if delta >= 0 {
				assert.NoError(t, err, "prev=%.1f delta=%.1f", prev, delta)
			} else {
				assert.Error(t, err, "prev=%.1f delta=%.1f", prev, delta)
			}
		}
	}
}

func TestValidateProgression_NoConstraint(t *testing.T) {
	assert.NoError(t, ValidateProgression(2, 100, models.StatusPending, 50))
	assert.NoError(t, ValidateProgression(2, 0, models.StatusGood, 50))
	assert.NoError(t, ValidateProgression(2, 100, models.StatusNoAttempt, 50))
}

func TestProgressionError_Message(t *testing.T) {
	err := ValidateProgression(2, 100, models.StatusGood, 100)
	assert.EqualError(t, err, "attempt 2 weight (100.0 kg) must be greater than the previous good lift (100.0 kg)")

	err = ValidateProgression(3, 100, models.StatusNoLift, 97.5)
	assert.EqualError(t, err, "attempt 3 weight (97.5 kg) cannot be lower than the previous missed attempt (100.0 kg)")
	assert.True(t, IsValidation(err))
}

func TestCanTransition(t *testing.T) {
	allowed := map[[2]State]bool{
		{StateNotDeclared, StatePending}: true,
		{StatePending, StateGood}:        true,
		{StatePending, StateNoLift}:      true,
		{StatePending, StateNoAttempt}:   true,
		{StateGood, StateNoLift}:         true,
		{StateNoLift, StateGood}:         true,
		{StateGood, StateGood}:           true,
		{StateNoLift, StateNoLift}:       true,
	}

	states := []State{StateNotDeclared, StatePending, StateGood, StateNoLift, StateNoAttempt}
	for _, from := range states {
		for _, to := range states {
			assert.Equal(t, allowed[[2]State{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCellState(t *testing.T) {
	e := entryWith([3]float64{100, 105, 0}, [3]models.AttemptStatus{models.StatusGood, models.StatusPending, models.StatusPending})

	assert.Equal(t, StateGood, CellState(e, models.LiftBench, 1))
	assert.Equal(t, StatePending, CellState(e, models.LiftBench, 2))
	assert.Equal(t, StateNotDeclared, CellState(e, models.LiftBench, 3))
	assert.Equal(t, StateNotDeclared, CellState(e, models.LiftSquat, 1))
}

func TestIsAccessible(t *testing.T) {
	e := entryWith([3]float64{100, 0, 0}, [3]models.AttemptStatus{models.StatusGood})

	assert.True(t, IsAccessible(e, models.LiftBench, 1, 1), "opener is always reachable")
	assert.False(t, IsAccessible(e, models.LiftBench, 2, 1), "undeclared and not live")
	assert.True(t, IsAccessible(e, models.LiftBench, 2, 2), "live attempt")
	assert.False(t, IsAccessible(e, models.LiftBench, 3, 2))
	assert.False(t, IsAccessible(e, models.LiftBench, 4, 4))

	e.Lifts[models.LiftBench].Weights[2] = 110
	assert.True(t, IsAccessible(e, models.LiftBench, 3, 2), "declared")
}

func TestProposeNextWeight(t *testing.T) {
	tests := []struct {
		name    string
		entry   models.Entry
		attempt int
		want    float64
		ok      bool
	}{
		{
			name:    "good lift adds increment",
			entry:   entryWith([3]float64{100}, [3]models.AttemptStatus{models.StatusGood}),
			attempt: 2,
			want:    102.5,
			ok:      true,
		},
		{
			name:    "missed lift repeats",
			entry:   entryWith([3]float64{100, 105}, [3]models.AttemptStatus{models.StatusGood, models.StatusNoLift}),
			attempt: 3,
			want:    105,
			ok:      true,
		},
		{
			name:    "pending previous proposes nothing",
			entry:   entryWith([3]float64{100}, [3]models.AttemptStatus{}),
			attempt: 2,
		},
		{
			name:    "no attempt proposes nothing",
			entry:   entryWith([3]float64{100}, [3]models.AttemptStatus{models.StatusNoAttempt}),
			attempt: 2,
		},
		{
			name:    "first attempt has no predecessor",
			entry:   entryWith([3]float64{100}, [3]models.AttemptStatus{models.StatusGood}),
			attempt: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ProposeNextWeight(tt.entry, models.LiftBench, tt.attempt, DefaultIncrementKg)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}
