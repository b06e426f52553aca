package mirror

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *collector) handle(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *collector) all() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Envelope(nil), c.envs...)
}

func (c *collector) ofType(t MessageType) []Envelope {
	var out []Envelope
	for _, env := range c.all() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func TestBus_DeliversToEverySubscriberIncludingSender(t *testing.T) {
	bus := NewBus()
	a := bus.Open("lifting-table-sync")
	b := bus.Open("lifting-table-sync")
	other := bus.Open("athlete-panel-sync")

	ca, cb, co := &collector{}, &collector{}, &collector{}
	_, err := a.Subscribe(ca.handle)
	require.NoError(t, err)
	_, err = b.Subscribe(cb.handle)
	require.NoError(t, err)
	_, err = other.Subscribe(co.handle)
	require.NoError(t, err)

	env := NewEnvelope(TypeSyncState, SourceMain, json.RawMessage(`{"n":1}`), time.Now())
	require.NoError(t, a.Post(context.Background(), env))

	assert.Eventually(t, func() bool { return len(ca.all()) == 1 && len(cb.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, env.ID, ca.all()[0].ID)
	assert.Empty(t, co.all())
}

func TestBus_PreservesOrder(t *testing.T) {
	bus := NewBus()
	ch := bus.Open("lifting-table-sync")
	c := &collector{}
	_, err := ch.Subscribe(c.handle)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		data := json.RawMessage(strconv.Itoa(i))
		require.NoError(t, ch.Post(context.Background(), NewEnvelope(TypeSyncState, SourceMain, data, time.Now())))
	}

	require.Eventually(t, func() bool { return len(c.all()) == 100 }, time.Second, 5*time.Millisecond)
	for i, env := range c.all() {
		assert.Equal(t, strconv.Itoa(i), string(env.Data))
	}
}

func TestBus_UnsubscribeAndClose(t *testing.T) {
	bus := NewBus()
	ch := bus.Open("lifting-table-sync")
	c := &collector{}
	unsubscribe, err := ch.Subscribe(c.handle)
	require.NoError(t, err)

	unsubscribe()
	unsubscribe()
	require.NoError(t, ch.Post(context.Background(), NewEnvelope(TypeConnectionCheck, SourceMain, nil, time.Now())))

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.all())

	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Post(context.Background(), Envelope{}), ErrChannelClosed)
	_, err = ch.Subscribe(c.handle)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestEnvelope_WireFormat(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	env := Envelope{ID: "abc", Type: TypeConnectionCheck, Source: SourceMain, Timestamp: ts}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":"abc","type":"CONNECTION_CHECK","source":"main","timestamp":"2026-03-14T09:30:00Z"}`, string(data))
	assert.True(t, env.Type.Valid())
	assert.False(t, MessageType("PING").Valid())
}
