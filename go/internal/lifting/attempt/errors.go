package attempt

import (
	"errors"
	"fmt"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

var (
	// ErrWeightNotDeclared is returned when an attempt without a weight is judged.
	ErrWeightNotDeclared = errors.New("weight not defined")
	// ErrInvalidAttempt is returned for attempt numbers outside 1..3.
	ErrInvalidAttempt = errors.New("attempt must be between 1 and 3")
	// ErrInvalidOutcome is returned when marking with anything but good or no lift.
	ErrInvalidOutcome = errors.New("outcome must be good lift or no lift")
)

// ProgressionError reports an attempt weight that breaks the progression rules.
type ProgressionError struct {
	Attempt        int
	Weight         float64
	Previous       float64
	PreviousStatus models.AttemptStatus
}

func (e *ProgressionError) Error() string {
	if e.PreviousStatus == models.StatusGood {
		return fmt.Sprintf("attempt %d weight (%.1f kg) must be greater than the previous good lift (%.1f kg)",
			e.Attempt, e.Weight, e.Previous)
	}
	return fmt.Sprintf("attempt %d weight (%.1f kg) cannot be lower than the previous missed attempt (%.1f kg)",
		e.Attempt, e.Weight, e.Previous)
}

// TransitionError reports a state change the lifecycle does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change attempt from %s to %s", e.From, e.To)
}

// IsValidation reports whether err is a rule violation rather than a store failure.
func IsValidation(err error) bool {
	var progression *ProgressionError
	var transition *TransitionError
	return errors.Is(err, ErrWeightNotDeclared) ||
		errors.Is(err, ErrInvalidAttempt) ||
		errors.Is(err, ErrInvalidOutcome) ||
		errors.As(err, &progression) ||
		errors.As(err, &transition)
}
