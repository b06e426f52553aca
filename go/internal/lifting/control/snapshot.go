package control

import (
	"time"

	"github.com/google/uuid"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/timer"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

// CorrectionMemo remembers where the operator was before editing an earlier attempt.
type CorrectionMemo struct {
	EntryID  uuid.NullUUID `json:"entry_id"`
	Attempt  int           `json:"attempt"`
	IsActive bool          `json:"is_active"`
}

// RecordFlag marks a good lift the records service reported as a record.
type RecordFlag struct {
	EntryID  uuid.UUID   `json:"entry_id"`
	Lift     models.Lift `json:"lift"`
	Attempt  int         `json:"attempt"`
	WeightKg float64     `json:"weight_kg"`
	Scopes   []string    `json:"scopes"`
}

// Snapshot is the full published state of a control surface. Version grows
// with every published change so replicas can drop stale copies.
type Snapshot struct {
	Version        uint64              `json:"version"`
	State          models.LiftingState `json:"state"`
	Order          models.LiftingOrder `json:"order"`
	Timers         []timer.Entry       `json:"timers"`
	Records        []RecordFlag        `json:"records"`
	Correction     *CorrectionMemo     `json:"correction,omitempty"`
	FlightComplete bool                `json:"flight_complete"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// AthleteCard is the single-athlete projection shown on the athlete panel.
type AthleteCard struct {
	EntryID     uuid.UUID           `json:"entry_id"`
	Name        string              `json:"name"`
	LotNumber   int                 `json:"lot_number"`
	Division    string              `json:"division"`
	WeightClass string              `json:"weight_class"`
	Attempt     int                 `json:"attempt"`
	WeightKg    float64             `json:"weight_kg"`
	Attempts    models.LiftAttempts `json:"attempts"`
	Record      bool                `json:"record"`
}

// AthletePanel is what the athlete-facing mirror renders.
type AthletePanel struct {
	Version        uint64        `json:"version"`
	Lift           models.Lift   `json:"lift"`
	Attempt        int           `json:"attempt"`
	Current        *AthleteCard  `json:"current,omitempty"`
	Next           *AthleteCard  `json:"next,omitempty"`
	Timers         []timer.Entry `json:"timers"`
	FlightComplete bool          `json:"flight_complete"`
}

// Panel projects a snapshot onto the athlete panel.
func (s Snapshot) Panel() AthletePanel {
	p := AthletePanel{
		Version:        s.Version,
		Lift:           s.State.Lift,
		Attempt:        s.Order.AttemptOneIndexed,
		Timers:         s.Timers,
		FlightComplete: s.FlightComplete,
	}
	if e, ok := s.Order.Current(); ok {
		p.Current = s.card(e, s.Order.AttemptOneIndexed)
	}
	if e, ok := s.Order.Next(); ok {
		p.Next = s.card(e, s.Order.NextAttemptOneIndexed)
	}
	return p
}

func (s Snapshot) card(e models.Entry, attemptNo int) *AthleteCard {
	c := &AthleteCard{
		EntryID:     e.ID,
		Name:        e.Name,
		LotNumber:   e.LotNumber,
		Division:    e.Division,
		WeightClass: e.WeightClass,
		Attempt:     attemptNo,
		WeightKg:    e.Weight(s.State.Lift, attemptNo),
		Attempts:    e.Attempts(s.State.Lift),
	}
	for _, r := range s.Records {
		if r.EntryID == e.ID && r.Lift == s.State.Lift {
			c.Record = true
			break
		}
	}
	return c
}
