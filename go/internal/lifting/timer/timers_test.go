package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
)

type expiryRecorder struct {
	mu      sync.Mutex
	expired []Entry
}

func (r *expiryRecorder) handle(_ context.Context, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, e)
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expired)
}

func TestKeyString(t *testing.T) {
	id := uuid.MustParse("6f1c1f5e-3f2a-4b8e-9a44-0c1d2e3f4a5b")
	assert.Equal(t, "6f1c1f5e-3f2a-4b8e-9a44-0c1d2e3f4a5b-2", Key{EntryID: id, Attempt: 2}.String())
}

func TestTick_CountsDownFromWallClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, nil)
	key := Key{EntryID: uuid.New(), Attempt: 2}

	started := s.Start(key, "Ada")
	assert.Equal(t, 60, started.TimeLeft)

	clock.Advance(10 * time.Second)
	s.Tick(context.Background())

	got, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, 50, got.TimeLeft)
}

func TestTick_SelfCorrectsAfterMissedTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, nil)
	key := Key{EntryID: uuid.New(), Attempt: 2}
	s.Start(key, "Ada")

	clock.Advance(30*time.Second + 500*time.Millisecond)
	s.Tick(context.Background())

	got, _ := s.Get(key)
	assert.Equal(t, 30, got.TimeLeft)
}

func TestTick_ExpiresExactlyOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &expiryRecorder{}
	s := New(clock, rec.handle)
	key := Key{EntryID: uuid.New(), Lift: models.LiftBench, Attempt: 3}
	s.Start(key, "Ada")

	clock.Advance(60 * time.Second)
	expired := s.Tick(context.Background())
	s.Tick(context.Background())
	clock.Advance(time.Second)
	s.Tick(context.Background())

	require.Len(t, expired, 1)
	assert.Equal(t, 0, expired[0].TimeLeft)
	assert.Equal(t, models.LiftBench, expired[0].Lift)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, 0, s.Len())
}

func TestStart_RestartsExistingKey(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := New(clock, nil)
	key := Key{EntryID: uuid.New(), Attempt: 2}

	s.Start(key, "Ada")
	clock.Advance(45 * time.Second)
	s.Start(key, "Ada")
	s.Tick(context.Background())

	got, _ := s.Get(key)
	assert.Equal(t, 60, got.TimeLeft)
	assert.Equal(t, 1, s.Len())
}

func TestStart_SameAttemptOnAnotherLiftRunsSeparately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &expiryRecorder{}
	s := New(clock, rec.handle)
	id := uuid.New()
	squat := Key{EntryID: id, Lift: models.LiftSquat, Attempt: 3}
	bench := Key{EntryID: id, Lift: models.LiftBench, Attempt: 3}

	s.Start(squat, "Ada")
	clock.Advance(40 * time.Second)
	s.Start(bench, "Ada")
	assert.Equal(t, 2, s.Len())

	clock.Advance(20 * time.Second)
	expired := s.Tick(context.Background())

	require.Len(t, expired, 1)
	assert.Equal(t, models.LiftSquat, expired[0].Lift)
	got, ok := s.Get(bench)
	require.True(t, ok)
	assert.Equal(t, 40, got.TimeLeft)
}

func TestCancel_IsSilent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &expiryRecorder{}
	s := New(clock, rec.handle)
	key := Key{EntryID: uuid.New(), Attempt: 2}

	assert.False(t, s.Cancel(key))

	s.Start(key, "Ada")
	assert.True(t, s.Cancel(key))

	clock.Advance(2 * time.Minute)
	s.Tick(context.Background())
	assert.Equal(t, 0, rec.count())
}

func TestConcurrentCountdownsAreIndependent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &expiryRecorder{}
	s := New(clock, rec.handle, WithDuration(30*time.Second))

	first := Key{EntryID: uuid.New(), Attempt: 2}
	second := Key{EntryID: uuid.New(), Attempt: 2}

	s.Start(first, "Ada")
	clock.Advance(20 * time.Second)
	s.Start(second, "Bea")

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, first.String(), snap[0].Key)

	clock.Advance(10 * time.Second)
	expired := s.Tick(context.Background())

	require.Len(t, expired, 1)
	assert.Equal(t, first.EntryID, expired[0].EntryID)
	got, ok := s.Get(second)
	require.True(t, ok)
	assert.Equal(t, 20, got.TimeLeft)
}

func TestTickListenerReceivesRunningCountdowns(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var seen [][]Entry
	s := New(clock, nil, WithTickListener(func(running []Entry) { seen = append(seen, running) }))

	s.Tick(context.Background())
	assert.Empty(t, seen, "no listener call without countdowns")

	s.Start(Key{EntryID: uuid.New(), Attempt: 2}, "Ada")
	clock.Advance(time.Second)
	s.Tick(context.Background())

	require.Len(t, seen, 1)
	require.Len(t, seen[0], 1)
	assert.Equal(t, 59, seen[0][0].TimeLeft)
}

func TestRun_SharedTickerFiresExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	expired := make(chan Entry, 1)
	s := New(clock, func(_ context.Context, e Entry) { expired <- e }, WithDuration(3*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	key := Key{EntryID: uuid.New(), Lift: models.LiftDeadlift, Attempt: 2}
	s.Start(key, "Ada")
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
	}

	select {
	case e := <-expired:
		assert.Equal(t, key.String(), e.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("countdown did not expire")
	}

	s.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop")
	}
}
