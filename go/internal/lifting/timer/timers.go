// Package timer runs the per-athlete declaration countdowns of a flight.
package timer

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

// DefaultDuration is the declaration window after an attempt is judged.
const DefaultDuration = 60 * time.Second

// tickInterval drives every running countdown.
const tickInterval = time.Second

// Key identifies a countdown by athlete, movement and the attempt it is
// counting down to. The same athlete may run one countdown per movement.
type Key struct {
	EntryID uuid.UUID
	Lift    models.Lift
	Attempt int
}

// String is the display key. It omits the lift, which Entry carries separately.
func (k Key) String() string {
	return fmt.Sprintf("%s-%d", k.EntryID, k.Attempt)
}

// Entry is a running countdown.
type Entry struct {
	Key         string        `json:"key"`
	EntryID     uuid.UUID     `json:"entry_id"`
	Attempt     int           `json:"attempt"`
	Lift        models.Lift   `json:"lift"`
	AthleteName string        `json:"athlete_name"`
	StartTime   time.Time     `json:"start_time"`
	Duration    time.Duration `json:"duration"`
	TimeLeft    int           `json:"time_left"`
}

// ExpiryFunc is invoked exactly once for every countdown that reaches zero.
type ExpiryFunc func(ctx context.Context, e Entry)

// TickFunc receives the running countdowns after every tick that changed them.
type TickFunc func(running []Entry)

// Subsystem holds any number of concurrent countdowns sharing one ticker.
type Subsystem struct {
	clock    clockwork.Clock
	duration time.Duration
	onExpire ExpiryFunc
	onTick   TickFunc

	mu     sync.Mutex
	timers map[Key]*Entry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Subsystem.
type Option func(*Subsystem)

// WithDuration overrides the countdown length.
func WithDuration(d time.Duration) Option {
	return func(s *Subsystem) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithTickListener registers a callback for countdown updates.
func WithTickListener(fn TickFunc) Option {
	return func(s *Subsystem) { s.onTick = fn }
}

// New creates a timer subsystem. onExpire may be nil.
func New(clock clockwork.Clock, onExpire ExpiryFunc, opts ...Option) *Subsystem {
	s := &Subsystem{
		clock:    clock,
		duration: DefaultDuration,
		onExpire: onExpire,
		timers:   make(map[Key]*Entry),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the shared ticker until ctx is cancelled or Stop is called.
func (s *Subsystem) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	log.Info().Dur("duration", s.duration).Msg("timer subsystem started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("timer subsystem shutting down")
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.Chan():
			s.Tick(ctx)
		}
	}
}

// Stop tears down the ticker loop and drops every countdown.
func (s *Subsystem) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.CancelAll()
}

// Start begins a countdown, restarting it if the key is already running.
func (s *Subsystem) Start(key Key, athleteName string) Entry {
	now := s.clock.Now()
	e := &Entry{
		Key:         key.String(),
		EntryID:     key.EntryID,
		Attempt:     key.Attempt,
		Lift:        key.Lift,
		AthleteName: athleteName,
		StartTime:   now,
		Duration:    s.duration,
		TimeLeft:    int(s.duration / time.Second),
	}

	s.mu.Lock()
	_, restarted := s.timers[key]
	s.timers[key] = e
	s.mu.Unlock()

	log.Debug().
		Str("timer_key", e.Key).
		Str("lift", key.Lift.String()).
		Str("athlete", athleteName).
		Bool("restarted", restarted).
		Msg("countdown started")

	return *e
}

// Cancel stops a countdown. Cancelling an unknown key is a no-op.
func (s *Subsystem) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timers[key]; !ok {
		return false
	}
	delete(s.timers, key)
	log.Debug().Str("timer_key", key.String()).Msg("countdown cancelled")
	return true
}

// CancelAll drops every running countdown.
func (s *Subsystem) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.timers)
}

// Tick recomputes every countdown from wall-clock elapsed time and fires the
// expiry handler for those that reached zero. It returns the expired entries.
func (s *Subsystem) Tick(ctx context.Context) []Entry {
	now := s.clock.Now()

	s.mu.Lock()
	if len(s.timers) == 0 {
		s.mu.Unlock()
		return nil
	}

	var expired []Entry
	for key, e := range s.timers {
		left := e.Duration - now.Sub(e.StartTime)
		if left <= 0 {
			e.TimeLeft = 0
			expired = append(expired, *e)
			delete(s.timers, key)
			continue
		}
		e.TimeLeft = int((left + time.Second - 1) / time.Second)
	}
	running := s.snapshotLocked()
	s.mu.Unlock()

	for _, e := range expired {
		log.Info().
			Str("timer_key", e.Key).
			Str("athlete", e.AthleteName).
			Msg("countdown expired")
		if s.onExpire != nil {
			s.onExpire(ctx, e)
		}
	}
	if s.onTick != nil {
		s.onTick(running)
	}
	return expired
}

// Snapshot lists the running countdowns, oldest first.
func (s *Subsystem) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Get returns a running countdown.
func (s *Subsystem) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (s *Subsystem) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Subsystem) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(s.timers))
	for _, e := range s.timers {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})
	return out
}
