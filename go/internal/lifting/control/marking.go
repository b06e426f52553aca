package control

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/clients/records_client"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/attempt"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/events"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/order"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/timer"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/roster"
)

// mark judges the selected cell. Live marks move focus to the next lifter;
// corrections keep the operator's place and restore it after RestoreDelay.
func (s *Surface) mark(ctx context.Context, outcome models.AttemptStatus) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return Snapshot{}, err
	}
	if !s.state.SelectedEntryID.Valid {
		return Snapshot{}, ErrNoAthleteSelected
	}
	entry, ok := s.entryLocked(s.state.SelectedEntryID.UUID)
	if !ok {
		return Snapshot{}, ErrEntryNotFound
	}

	lift := s.state.Lift
	attemptNo := s.state.SelectedAttempt
	correction := s.isCorrectionLocked(entry, attemptNo)
	if correction && s.memo == nil {
		s.memo = &CorrectionMemo{
			EntryID:  s.order.CurrentEntryID,
			Attempt:  s.order.AttemptOneIndexed,
			IsActive: s.order.CurrentEntryID.Valid,
		}
	}

	res, err := s.marker.Mark(ctx, entry, attempt.MarkRequest{
		Lift:       lift,
		Attempt:    attemptNo,
		Outcome:    outcome,
		Correction: correction,
	})
	if err != nil {
		return Snapshot{}, err
	}
	s.replaceLocked(res.Entry)
	s.settleTimersLocked()

	if attemptNo < models.AttemptsPerLift && !res.Entry.Declared(lift, attemptNo+1) {
		s.timers.Start(timer.Key{EntryID: entry.ID, Lift: lift, Attempt: attemptNo + 1}, entry.Name)
	}

	s.recordLocked(ctx, events.AttemptMarked, events.AttemptMarkedPayload{
		EntryID:     entry.ID.String(),
		AthleteName: entry.Name,
		Lift:        lift.String(),
		Attempt:     attemptNo,
		WeightKg:    res.Weight,
		Outcome:     outcome.String(),
		Previous:    res.Previous.String(),
		Correction:  correction,
		MarkedAt:    s.clock.Now(),
	})

	if outcome == models.StatusGood {
		s.checkRecordLocked(ctx, res)
	} else {
		delete(s.recordFlags, recordKey{EntryID: entry.ID, Lift: lift, Attempt: attemptNo})
	}

	if correction {
		s.resolveLocked()
		s.scheduleRestoreLocked()
		return s.publishLocked(ctx), nil
	}

	s.clearOverrideLocked()
	s.resolveLocked()
	s.advanceLocked(ctx)
	s.focusCurrentLocked()
	return s.publishLocked(ctx), nil
}

// advanceLocked moves to the next movement once every athlete is done with
// the current one, and marks the flight complete after the deadlift.
func (s *Surface) advanceLocked(ctx context.Context) {
	for order.LiftExhausted(s.roster, s.state.Lift) {
		next, ok := s.state.Lift.Next()
		if !ok {
			if !s.flightComplete {
				s.flightComplete = true
				log.Info().Str("flight", s.state.FlightKey.String()).Msg("flight completed")
				s.recordLocked(ctx, events.FlightCompleted, events.FlightCompletedPayload{
					Day:         s.state.Day,
					Platform:    s.state.Platform,
					Flight:      s.state.Flight,
					CompletedAt: s.clock.Now(),
				})
			}
			return
		}

		from := s.state.Lift
		s.state.Lift = next
		s.clearOverrideLocked()
		s.resolveLocked()

		log.Info().
			Str("flight", s.state.FlightKey.String()).
			Str("from", from.String()).
			Str("to", next.String()).
			Msg("lift advanced")
		s.recordLocked(ctx, events.LiftAdvanced, events.LiftAdvancedPayload{
			From:       from.String(),
			To:         next.String(),
			AdvancedAt: s.clock.Now(),
		})
	}
}

func (s *Surface) scheduleRestoreLocked() {
	s.cancelRestoreLocked()
	gen := s.restoreGen
	s.restore = s.clock.AfterFunc(s.cfg.RestoreDelay, func() { s.restoreSelection(gen) })
}

// cancelRestoreLocked stops a pending restore and invalidates one already firing.
func (s *Surface) cancelRestoreLocked() {
	if s.restore != nil {
		s.restore.Stop()
		s.restore = nil
	}
	s.restoreGen++
}

func (s *Surface) restoreSelection(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.restoreGen || s.memo == nil {
		return
	}

	memo := *s.memo
	s.memo = nil
	s.restore = nil

	if _, ok := s.entryLocked(memo.EntryID.UUID); memo.EntryID.Valid && ok {
		s.state.SelectedEntryID = memo.EntryID
		s.state.SelectedAttempt = memo.Attempt
		s.state.IsAttemptActive = memo.IsActive
	} else {
		s.focusCurrentLocked()
	}

	log.Debug().
		Str("flight", s.state.FlightKey.String()).
		Int("attempt", s.state.SelectedAttempt).
		Msg("selection restored after correction")
	s.publishLocked(context.Background())
}

// onTimerExpired fills in the next weight for an athlete who let the
// declaration window run out. Anything the operator wrote first wins.
func (s *Surface) onTimerExpired(ctx context.Context, te timer.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.selected {
		return
	}

	if err := s.reloadLocked(ctx); err != nil {
		log.Error().Err(err).Str("timer_key", te.Key).Msg("failed to reload flight on countdown expiry")
		return
	}
	s.settleTimersLocked()
	entry, ok := s.entryLocked(te.EntryID)
	if !ok {
		log.Warn().Str("timer_key", te.Key).Msg("countdown expired for athlete outside the flight")
		return
	}
	if entry.Declared(te.Lift, te.Attempt) || entry.Status(te.Lift, te.Attempt).Resolved() {
		log.Debug().Str("timer_key", te.Key).Msg("weight declared before countdown expired")
		return
	}

	weight, ok := attempt.ProposeNextWeight(entry, te.Lift, te.Attempt, s.cfg.IncrementKg)
	if !ok {
		return
	}
	update := roster.WeightUpdate(te.Lift, te.Attempt, weight)
	if err := s.store.UpdateEntry(ctx, entry.ID, update); err != nil {
		log.Error().Err(err).Str("timer_key", te.Key).Msg("failed to write automatic weight")
		return
	}
	s.replaceLocked(update.Apply(entry))

	log.Info().
		Str("entry_id", entry.ID.String()).
		Str("lift", te.Lift.String()).
		Int("attempt", te.Attempt).
		Float64("weight_kg", weight).
		Msg("weight filled in automatically")
	s.recordLocked(ctx, events.WeightAutoFilled, events.WeightAutoFilledPayload{
		EntryID:     entry.ID.String(),
		AthleteName: entry.Name,
		Lift:        te.Lift.String(),
		Attempt:     te.Attempt,
		WeightKg:    weight,
		FilledAt:    s.clock.Now(),
	})

	following := s.followingLocked()
	s.resolveLocked()
	if following {
		s.focusCurrentLocked()
	}
	s.publishLocked(ctx)
}

func (s *Surface) onTimerTick([]timer.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.selected {
		return
	}
	s.publishLocked(context.Background())
}

// checkRecordLocked looks the good lift up in the background. Lookup
// failures are logged and treated as no record.
func (s *Surface) checkRecordLocked(ctx context.Context, res *attempt.MarkResult) {
	if s.records == nil {
		return
	}

	flight := s.state.FlightKey
	key := recordKey{EntryID: res.EntryID, Lift: res.Lift, Attempt: res.Attempt}
	req := records_client.CheckRequest{
		WeightKg: res.Weight,
		Movement: movementFor(res.Lift),
		Athlete: records_client.Athlete{
			Sex:          res.Entry.Sex,
			Division:     res.Entry.Division,
			WeightClass:  res.Entry.WeightClass,
			BodyweightKg: res.Entry.BodyweightKg,
		},
		CompetitionType: s.cfg.CompetitionType,
	}
	name := res.Entry.Name

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RecordCheckTimeout)
		defer cancel()

		result, err := s.records.CheckRecordAttempt(checkCtx, req)
		if err != nil {
			log.Warn().
				Err(err).
				Str("entry_id", key.EntryID.String()).
				Float64("weight_kg", req.WeightKg).
				Msg("record lookup failed, treating as no record")
			return
		}
		if result == nil || !result.IsRecord {
			return
		}

		scopes := make([]string, 0, len(result.Records))
		for _, r := range result.Records {
			scopes = append(scopes, r.Scope)
		}
		s.flagRecord(flight, key, name, RecordFlag{
			EntryID:  key.EntryID,
			Lift:     key.Lift,
			Attempt:  key.Attempt,
			WeightKg: req.WeightKg,
			Scopes:   scopes,
		})
	}()
}

func (s *Surface) flagRecord(flight models.FlightKey, key recordKey, name string, flag RecordFlag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.selected || s.state.FlightKey != flight {
		return
	}
	entry, ok := s.entryLocked(key.EntryID)
	if !ok || entry.Status(key.Lift, key.Attempt) != models.StatusGood {
		return
	}

	s.recordFlags[key] = flag
	log.Info().
		Str("entry_id", key.EntryID.String()).
		Str("lift", key.Lift.String()).
		Float64("weight_kg", flag.WeightKg).
		Strs("scopes", flag.Scopes).
		Msg("record attempt")

	s.recordLocked(context.Background(), events.RecordAttempt, events.RecordAttemptPayload{
		EntryID:     key.EntryID.String(),
		AthleteName: name,
		Lift:        key.Lift.String(),
		Attempt:     key.Attempt,
		WeightKg:    flag.WeightKg,
		Scopes:      flag.Scopes,
		CheckedAt:   s.clock.Now(),
	})
	s.publishLocked(context.Background())
}

func movementFor(l models.Lift) records_client.Movement {
	switch l {
	case models.LiftBench:
		return records_client.MovementBench
	case models.LiftDeadlift:
		return records_client.MovementDeadlift
	default:
		return records_client.MovementSquat
	}
}
