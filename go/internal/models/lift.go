package models

import (
	"fmt"
	"strings"
)

// Lift identifies one of the three competition movements.
type Lift int

const (
	LiftSquat Lift = iota
	LiftBench
	LiftDeadlift
)

// Lifts lists the movements in competition order.
var Lifts = [LiftCount]Lift{LiftSquat, LiftBench, LiftDeadlift}

// LiftCount is the number of movements in a full-power meet.
const LiftCount = 3

// AttemptsPerLift is the number of attempts every athlete gets per movement.
const AttemptsPerLift = 3

func (l Lift) String() string {
	switch l {
	case LiftSquat:
		return "squat"
	case LiftBench:
		return "bench"
	case LiftDeadlift:
		return "deadlift"
	default:
		return fmt.Sprintf("lift(%d)", int(l))
	}
}

// Valid reports whether l is one of the known movements.
func (l Lift) Valid() bool {
	return l >= LiftSquat && l <= LiftDeadlift
}

// Next returns the movement contested after l. ok is false after the deadlift.
func (l Lift) Next() (Lift, bool) {
	if !l.Valid() || l == LiftDeadlift {
		return l, false
	}
	return l + 1, true
}

// ParseLift accepts the lower-case movement names used on the wire.
func ParseLift(s string) (Lift, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "squat", "sq":
		return LiftSquat, nil
	case "bench", "bench_press", "bp":
		return LiftBench, nil
	case "deadlift", "dl":
		return LiftDeadlift, nil
	default:
		return 0, fmt.Errorf("unknown lift %q", s)
	}
}

func (l Lift) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid lift %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Lift) UnmarshalText(text []byte) error {
	parsed, err := ParseLift(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// AttemptStatus is the judged outcome of a single attempt.
type AttemptStatus int

const (
	StatusPending AttemptStatus = iota
	StatusGood
	StatusNoLift
	StatusNoAttempt
)

func (s AttemptStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusGood:
		return "good"
	case StatusNoLift:
		return "no_lift"
	case StatusNoAttempt:
		return "no_attempt"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Resolved reports whether the attempt no longer needs to be contested.
func (s AttemptStatus) Resolved() bool {
	return s == StatusGood || s == StatusNoLift || s == StatusNoAttempt
}

func (s AttemptStatus) Valid() bool {
	return s >= StatusPending && s <= StatusNoAttempt
}
