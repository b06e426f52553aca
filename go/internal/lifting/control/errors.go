package control

import (
	"errors"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/attempt"
)

var (
	ErrNoFlightSelected     = errors.New("no flight selected")
	ErrNoAthleteSelected    = errors.New("no athlete selected")
	ErrEntryNotFound        = errors.New("athlete is not in the selected flight")
	ErrAttemptNotAccessible = errors.New("attempt is not accessible: it has no declared weight and is not the live attempt")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrClosed               = errors.New("control surface closed")
)

// IsInvalidArgument reports errors caused by operator input rather than state.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || attempt.IsValidation(err)
}

// IsFailedPrecondition reports errors caused by the current selection.
func IsFailedPrecondition(err error) bool {
	return errors.Is(err, ErrNoFlightSelected) ||
		errors.Is(err, ErrNoAthleteSelected) ||
		errors.Is(err, ErrAttemptNotAccessible)
}
