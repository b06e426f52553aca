package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWindow struct {
	mu      sync.Mutex
	closed  bool
	focused int
}

func (w *fakeWindow) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *fakeWindow) Focus() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused++
	return nil
}

func (w *fakeWindow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type fakeOpener struct {
	mu     sync.Mutex
	specs  []WindowSpec
	window *fakeWindow
	err    error
}

func (o *fakeOpener) Open(_ context.Context, spec WindowSpec) (Window, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.specs = append(o.specs, spec)
	o.window = &fakeWindow{}
	return o.window, nil
}

func liftingTable() ViewConfig {
	return DefaultViews()[ViewLiftingTable]
}

func newTestPrimary(clock clockwork.Clock, opener WindowOpener) *Primary {
	return NewPrimary(liftingTable(),
		WithClock(clock),
		WithOpener(opener),
		WithWatcher(NewPollingWatcher(clock, time.Second)),
		WithBaseURL("http://meet.local:8080"),
	)
}

func TestPrimary_QueuesUntilChannelReady(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	opener := &fakeOpener{}
	primary := newTestPrimary(clock, opener)
	bus := NewBus()

	_, err := primary.OpenMirror(ctx, Geometry{})
	require.NoError(t, err)

	require.NoError(t, primary.SyncState(ctx, map[string]int{"version": 1}))
	require.NoError(t, primary.SyncState(ctx, map[string]int{"version": 2}))
	assert.Equal(t, 2, primary.Status().Pending)

	var mu sync.Mutex
	var states []string
	replica := NewReplica(liftingTable(), clock, func(data json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, string(data))
	})
	require.NoError(t, replica.Attach(bus.Open(LiftingTableChannel)))

	require.NoError(t, primary.Attach(ctx, bus.Open(LiftingTableChannel)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{`{"version":1}`, `{"version":2}`}, states)
	mu.Unlock()
	assert.Equal(t, 0, primary.Status().Pending)

	got, ok := replica.State()
	require.True(t, ok)
	assert.JSONEq(t, `{"version":2}`, string(got))
}

func TestPrimary_ConnectionProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockwork.NewFakeClock()
	bus := NewBus()

	primary := newTestPrimary(clock, &fakeOpener{})
	require.NoError(t, primary.Attach(ctx, bus.Open(LiftingTableChannel)))
	replica := NewReplica(liftingTable(), clock, nil)
	require.NoError(t, replica.Attach(bus.Open(LiftingTableChannel)))

	go func() { _ = primary.Run(ctx) }()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	assert.False(t, primary.Connected())
	clock.Advance(DefaultProbeInterval)

	assert.Eventually(t, primary.Connected, time.Second, 5*time.Millisecond)

	require.NoError(t, replica.Close(ctx))
	assert.Eventually(t, func() bool { return !primary.Connected() }, time.Second, 5*time.Millisecond)
}

func TestPrimary_IgnoresOwnEchoes(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	bus := NewBus()
	ch := bus.Open(LiftingTableChannel)

	primary := newTestPrimary(clock, &fakeOpener{})
	require.NoError(t, primary.Attach(ctx, ch))

	observer := &collector{}
	_, err := bus.Open(LiftingTableChannel).Subscribe(observer.handle)
	require.NoError(t, err)

	// A response authored by the primary itself must not count as a mirror.
	require.NoError(t, ch.Post(ctx, NewEnvelope(TypeConnectionResponse, SourceMain, nil, clock.Now())))
	require.Eventually(t, func() bool { return len(observer.all()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.False(t, primary.Connected())
}

func TestPrimary_WindowClosureBroadcasts(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	opener := &fakeOpener{}
	bus := NewBus()

	primary := newTestPrimary(clock, opener)
	require.NoError(t, primary.Attach(ctx, bus.Open(LiftingTableChannel)))

	observer := &collector{}
	_, err := bus.Open(LiftingTableChannel).Subscribe(observer.handle)
	require.NoError(t, err)

	// A mirror answers so the primary believes it is connected.
	require.NoError(t, bus.Open(LiftingTableChannel).Post(ctx, NewEnvelope(TypeConnectionResponse, SourceMirror, nil, clock.Now())))
	require.Eventually(t, primary.Connected, time.Second, 5*time.Millisecond)

	_, err = primary.OpenMirror(ctx, Geometry{})
	require.NoError(t, err)
	require.NoError(t, opener.window.Close())

	clock.Advance(time.Second)

	require.Eventually(t, func() bool {
		return len(observer.ofType(TypeWindowClosed)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, SourceMain, observer.ofType(TypeWindowClosed)[0].Source)
	assert.False(t, primary.Connected())
	assert.False(t, primary.Status().WindowOpen)
}

func TestPrimary_OpenMirrorFocusesExistingWindow(t *testing.T) {
	ctx := context.Background()
	opener := &fakeOpener{}
	primary := newTestPrimary(clockwork.NewFakeClock(), opener)

	first, err := primary.OpenMirror(ctx, Geometry{Width: 800, Height: 600, Left: 10, Top: 20})
	require.NoError(t, err)
	second, err := primary.OpenMirror(ctx, Geometry{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	require.Len(t, opener.specs, 1)
	assert.Equal(t, 1, opener.window.focused)

	spec := opener.specs[0]
	assert.Equal(t, LiftingTableWindow, spec.Name)
	assert.Equal(t, Geometry{Width: 800, Height: 600, Left: 10, Top: 20}, spec.Geometry)
	assert.Equal(t, "http://meet.local:8080/lifting/table?mirror=1&view=lifting-table", spec.URL)
}

func TestPrimary_OpenMirrorBlocked(t *testing.T) {
	primary := newTestPrimary(clockwork.NewFakeClock(), &fakeOpener{err: errors.New("exec: chromium not found")})

	_, err := primary.OpenMirror(context.Background(), Geometry{})

	assert.ErrorIs(t, err, ErrWindowBlocked)
	assert.Contains(t, err.Error(), "allow pop-ups")
}

func TestPrimary_CloseMirror(t *testing.T) {
	ctx := context.Background()
	opener := &fakeOpener{}
	primary := newTestPrimary(clockwork.NewFakeClock(), opener)

	_, err := primary.OpenMirror(ctx, Geometry{})
	require.NoError(t, err)
	require.NoError(t, primary.CloseMirror())

	assert.True(t, opener.window.Closed())
	assert.False(t, primary.Status().WindowOpen)
	// The closure notice is queued because no channel is attached.
	assert.Equal(t, 1, primary.Status().Pending)
}
