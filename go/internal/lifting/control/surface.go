// Package control is the operator-facing control surface of a live flight.
//
// A Surface is the single writer of the lifting state. Operator actions, timer
// expiry, deferred correction restores and roster refresh notifications are
// all serialized behind one mutex, and every change is pushed to the mirror
// primaries as a versioned snapshot.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/clients/records_client"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/attempt"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/events"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/order"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/timer"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/roster"
)

// EntryStore defines what the surface needs from the record store
type EntryStore interface {
	ListEntries(ctx context.Context, filter roster.FlightFilter) ([]models.Entry, error)
	UpdateEntry(ctx context.Context, id uuid.UUID, update roster.EntryUpdate) error
}

// RecordChecker asks whether a good lift set a record
type RecordChecker interface {
	CheckRecordAttempt(ctx context.Context, req records_client.CheckRequest) (*records_client.CheckResult, error)
}

// EventRecorder stores domain events for relay
type EventRecorder interface {
	Record(ctx context.Context, aggregateID string, eventType events.Type, payload []byte) error
}

// StatePublisher pushes state to the mirrors of one view
type StatePublisher interface {
	View() mirror.ViewConfig
	SyncState(ctx context.Context, state any) error
}

// Deps are the collaborators of a Surface. Records and Events are optional.
type Deps struct {
	Store      EntryStore
	Records    RecordChecker
	Events     EventRecorder
	Publishers []StatePublisher
	Clock      clockwork.Clock
}

type recordKey struct {
	EntryID uuid.UUID
	Lift    models.Lift
	Attempt int
}

// Surface owns the authoritative lifting state of one platform.
type Surface struct {
	store      EntryStore
	records    RecordChecker
	events     EventRecorder
	publishers []StatePublisher
	clock      clockwork.Clock
	cfg        Config
	marker     *attempt.Marker
	timers     *timer.Subsystem

	mu             sync.Mutex
	selected       bool
	state          models.LiftingState
	roster         []models.Entry
	order          models.LiftingOrder
	memo           *CorrectionMemo
	restore        clockwork.Timer
	restoreGen     uint64
	recordFlags    map[recordKey]RecordFlag
	flightComplete bool
	version        uint64
	updatedAt      time.Time
	closed         bool

	wg sync.WaitGroup
}

// New creates a control surface. Call Run to drive its countdowns.
func New(deps Deps, cfg Config) *Surface {
	cfg = cfg.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Surface{
		store:       deps.Store,
		records:     deps.Records,
		events:      deps.Events,
		publishers:  deps.Publishers,
		clock:       clock,
		cfg:         cfg,
		marker:      attempt.NewMarker(deps.Store),
		recordFlags: make(map[recordKey]RecordFlag),
	}
	s.timers = timer.New(clock, s.onTimerExpired,
		timer.WithDuration(cfg.TimerDuration),
		timer.WithTickListener(s.onTimerTick),
	)
	return s
}

// Run drives the countdown ticker until ctx is done.
func (s *Surface) Run(ctx context.Context) error {
	return s.timers.Run(ctx)
}

// Close cancels every scheduled callback and waits for record lookups in flight.
func (s *Surface) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancelRestoreLocked()
	s.mu.Unlock()

	s.timers.Stop()
	s.wg.Wait()
}

// SelectFlight loads a flight and starts it from the first squat attempt.
// Countdowns and corrections of the previous flight are discarded.
func (s *Surface) SelectFlight(ctx context.Context, key models.FlightKey) (Snapshot, error) {
	filter := roster.FilterFor(key)
	if err := filter.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}

	entries, err := s.store.ListEntries(ctx, filter)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load flight %s: %w", key, err)
	}

	s.timers.CancelAll()
	s.cancelRestoreLocked()
	s.memo = nil
	clear(s.recordFlags)
	s.flightComplete = false
	s.selected = true
	s.state = models.NewLiftingState(key)
	s.roster = entries
	s.resolveLocked()
	s.advanceLocked(ctx)
	s.focusCurrentLocked()

	log.Info().
		Str("flight", key.String()).
		Int("entries", len(entries)).
		Msg("flight selected")

	s.recordLocked(ctx, events.FlightSelected, events.FlightSelectedPayload{
		Day:        key.Day,
		Platform:   key.Platform,
		Flight:     key.Flight,
		EntryCount: len(entries),
		SelectedAt: s.clock.Now(),
	})
	return s.publishLocked(ctx), nil
}

// SelectLift switches the movement being contested.
func (s *Surface) SelectLift(ctx context.Context, lift models.Lift) (Snapshot, error) {
	if !lift.Valid() {
		return Snapshot{}, fmt.Errorf("%w: unknown lift %d", ErrInvalidRequest, int(lift))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return Snapshot{}, err
	}

	s.state.Lift = lift
	s.clearOverrideLocked()
	s.cancelRestoreLocked()
	s.memo = nil
	s.flightComplete = false
	s.resolveLocked()
	s.focusCurrentLocked()

	log.Info().Str("flight", s.state.FlightKey.String()).Str("lift", lift.String()).Msg("lift selected")
	return s.publishLocked(ctx), nil
}

// SelectEntry focuses an athlete on the attempt they owe, or their last judged one.
func (s *Surface) SelectEntry(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return Snapshot{}, err
	}

	entry, ok := s.entryLocked(id)
	if !ok {
		return Snapshot{}, ErrEntryNotFound
	}

	attemptNo := order.NextAttemptNumberForEntry(entry, s.state.Lift)
	if attemptNo == 0 {
		attemptNo = order.MaxAttemptNumberForEntry(entry, s.state.Lift)
	}
	if attemptNo == 0 {
		attemptNo = 1
	}
	return s.navigateLocked(ctx, entry, attemptNo)
}

// SelectAttempt moves the selected athlete to another attempt.
func (s *Surface) SelectAttempt(ctx context.Context, attemptNo int) (Snapshot, error) {
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
	return s.navigateLocked(ctx, entry, attemptNo)
}

// NavigateToAttempt selects an attempt cell of any athlete in the flight.
func (s *Surface) NavigateToAttempt(ctx context.Context, id uuid.UUID, attemptNo int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return Snapshot{}, err
	}

	entry, ok := s.entryLocked(id)
	if !ok {
		return Snapshot{}, ErrEntryNotFound
	}
	return s.navigateLocked(ctx, entry, attemptNo)
}

// SetOverride forces the current athlete and/or the live attempt. A zero
// attempt or an invalid id leaves that part computed.
func (s *Surface) SetOverride(ctx context.Context, id uuid.NullUUID, attemptNo int) (Snapshot, error) {
	if attemptNo < 0 || attemptNo > models.AttemptsPerLift {
		return Snapshot{}, fmt.Errorf("%w: attempt must be between 1 and %d", ErrInvalidRequest, models.AttemptsPerLift)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return Snapshot{}, err
	}
	if id.Valid {
		if _, ok := s.entryLocked(id.UUID); !ok {
			return Snapshot{}, ErrEntryNotFound
		}
	}

	s.state.OverrideEntryID = id
	s.state.OverrideAttempt = attemptNo
	s.cancelRestoreLocked()
	s.memo = nil
	s.resolveLocked()
	s.focusCurrentLocked()

	log.Info().
		Str("flight", s.state.FlightKey.String()).
		Bool("entry_override", id.Valid).
		Int("attempt_override", attemptNo).
		Msg("lifting order overridden")
	return s.publishLocked(ctx), nil
}

// ClearOverride returns to the computed lifting order.
func (s *Surface) ClearOverride(ctx context.Context) (Snapshot, error) {
	return s.SetOverride(ctx, uuid.NullUUID{}, 0)
}

// MarkGoodLift judges the selected attempt good.
func (s *Surface) MarkGoodLift(ctx context.Context) (Snapshot, error) {
	return s.mark(ctx, models.StatusGood)
}

// MarkNoLift judges the selected attempt a miss.
func (s *Surface) MarkNoLift(ctx context.Context) (Snapshot, error) {
	return s.mark(ctx, models.StatusNoLift)
}

// Refresh reloads the flight from the store, typically after an external edit.
func (s *Surface) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readyLocked(); err != nil {
		return Snapshot{}, err
	}

	if err := s.reloadLocked(ctx); err != nil {
		return Snapshot{}, err
	}
	s.settleTimersLocked()
	following := s.followingLocked()
	s.resolveLocked()
	if following {
		s.focusCurrentLocked()
	}
	return s.publishLocked(ctx), nil
}

// Snapshot returns the current state without publishing it.
func (s *Surface) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Selected reports the flight loaded on the surface, if any.
func (s *Surface) Selected() (models.FlightKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FlightKey, s.selected
}

// navigateLocked selects a cell. Moving to an attempt before the live one, or
// to one already judged, starts a correction and remembers where the
// operator came from.
func (s *Surface) navigateLocked(ctx context.Context, entry models.Entry, attemptNo int) (Snapshot, error) {
	if attemptNo < 1 || attemptNo > models.AttemptsPerLift {
		return Snapshot{}, fmt.Errorf("%w: attempt must be between 1 and %d", ErrInvalidRequest, models.AttemptsPerLift)
	}
	live := s.state.AttemptOneIndexed
	if !attempt.IsAccessible(entry, s.state.Lift, attemptNo, live) {
		return Snapshot{}, ErrAttemptNotAccessible
	}

	s.cancelRestoreLocked()
	if s.isCorrectionLocked(entry, attemptNo) {
		if s.memo == nil {
			s.memo = &CorrectionMemo{
				EntryID:  s.state.SelectedEntryID,
				Attempt:  s.state.SelectedAttempt,
				IsActive: s.state.IsAttemptActive,
			}
		}
		s.state.IsAttemptActive = false
	} else {
		s.memo = nil
		current := s.order.CurrentEntryID
		s.state.IsAttemptActive = current.Valid && current.UUID == entry.ID && attemptNo == live
	}
	s.state.SelectedEntryID = models.SomeID(entry.ID)
	s.state.SelectedAttempt = attemptNo

	return s.publishLocked(ctx), nil
}

func (s *Surface) isCorrectionLocked(entry models.Entry, attemptNo int) bool {
	return attemptNo < s.state.AttemptOneIndexed || entry.Status(s.state.Lift, attemptNo).Resolved()
}

// followingLocked reports whether the selection tracks the live lifter.
func (s *Surface) followingLocked() bool {
	return s.memo == nil && (!s.state.SelectedEntryID.Valid || s.state.IsAttemptActive)
}

func (s *Surface) readyLocked() error {
	if s.closed {
		return ErrClosed
	}
	if !s.selected {
		return ErrNoFlightSelected
	}
	return nil
}

func (s *Surface) reloadLocked(ctx context.Context) error {
	entries, err := s.store.ListEntries(ctx, roster.FilterFor(s.state.FlightKey))
	if err != nil {
		return fmt.Errorf("failed to reload flight %s: %w", s.state.FlightKey, err)
	}
	s.roster = entries
	return nil
}

// settleTimersLocked drops countdowns whose slot no longer needs a weight:
// declared or judged since the countdown started, or the athlete left the flight.
func (s *Surface) settleTimersLocked() {
	for _, te := range s.timers.Snapshot() {
		entry, ok := s.entryLocked(te.EntryID)
		if ok && !entry.Declared(te.Lift, te.Attempt) && !entry.Status(te.Lift, te.Attempt).Resolved() {
			continue
		}
		s.timers.Cancel(timer.Key{EntryID: te.EntryID, Lift: te.Lift, Attempt: te.Attempt})
		log.Debug().
			Str("timer_key", te.Key).
			Str("lift", te.Lift.String()).
			Msg("countdown settled, weight already declared")
	}
}

// resolveLocked sorts the roster for the live attempt and recomputes the order.
func (s *Surface) resolveLocked() {
	active := order.ActiveAttemptNumber(s.roster, s.state)
	sorted := order.SortForAttempt(s.roster, s.state.Lift, active)
	s.order = order.Resolve(sorted, s.state)
	s.state.AttemptOneIndexed = s.order.AttemptOneIndexed
}

func (s *Surface) focusCurrentLocked() {
	s.state.SelectedEntryID = s.order.CurrentEntryID
	s.state.SelectedAttempt = s.order.AttemptOneIndexed
	s.state.IsAttemptActive = s.order.CurrentEntryID.Valid
}

func (s *Surface) clearOverrideLocked() {
	s.state.OverrideEntryID = uuid.NullUUID{}
	s.state.OverrideAttempt = 0
}

func (s *Surface) entryLocked(id uuid.UUID) (models.Entry, bool) {
	for _, e := range s.roster {
		if e.ID == id {
			return e, true
		}
	}
	return models.Entry{}, false
}

// replaceLocked swaps in a new copy of an entry without touching the old slice.
func (s *Surface) replaceLocked(e models.Entry) {
	next := slices.Clone(s.roster)
	for i := range next {
		if next[i].ID == e.ID {
			next[i] = e
		}
	}
	s.roster = next
}

func (s *Surface) snapshotLocked() Snapshot {
	flags := make([]RecordFlag, 0, len(s.recordFlags))
	for _, f := range s.recordFlags {
		flags = append(flags, f)
	}
	slices.SortFunc(flags, func(a, b RecordFlag) int {
		if a.Lift != b.Lift {
			return int(a.Lift) - int(b.Lift)
		}
		if a.Attempt != b.Attempt {
			return a.Attempt - b.Attempt
		}
		return slices.Compare(a.EntryID[:], b.EntryID[:])
	})

	snap := Snapshot{
		Version:        s.version,
		State:          s.state,
		Order:          s.order,
		Timers:         s.timers.Snapshot(),
		Records:        flags,
		FlightComplete: s.flightComplete,
		UpdatedAt:      s.updatedAt,
	}
	if s.memo != nil {
		memo := *s.memo
		snap.Correction = &memo
	}
	return snap
}

// publishLocked stamps a new version and pushes it to every mirror view.
func (s *Surface) publishLocked(ctx context.Context) Snapshot {
	s.version++
	s.updatedAt = s.clock.Now()
	snap := s.snapshotLocked()

	for _, p := range s.publishers {
		var payload any = snap
		if p.View().Type == mirror.ViewAthletePanel {
			payload = snap.Panel()
		}
		if err := p.SyncState(ctx, payload); err != nil {
			log.Warn().
				Err(err).
				Str("view", string(p.View().Type)).
				Uint64("version", snap.Version).
				Msg("failed to publish lifting state")
		}
	}
	return snap
}

func (s *Surface) recordLocked(ctx context.Context, t events.Type, payload any) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to marshal event payload")
		return
	}
	if err := s.events.Record(ctx, s.state.FlightKey.String(), t, data); err != nil {
		log.Error().Err(err).Str("event_type", string(t)).Msg("failed to record event")
	}
}
