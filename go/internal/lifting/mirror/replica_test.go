package mirror

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplica_PlaceholderUntilState(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bus := NewBus()
	replica := NewReplica(liftingTable(), clock, nil)
	require.NoError(t, replica.Attach(bus.Open(LiftingTableChannel)))

	r := replica.Render()
	assert.True(t, r.Waiting)
	assert.Equal(t, PlaceholderMessage, r.Message)
	assert.Nil(t, r.State)

	primary := bus.Open(LiftingTableChannel)
	require.NoError(t, primary.Post(context.Background(),
		NewEnvelope(TypeSyncState, SourceMain, json.RawMessage(`{"attempt":1}`), clock.Now())))

	require.Eventually(t, func() bool { return !replica.Render().Waiting }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"attempt":1}`, string(replica.Render().State))
}

func TestReplica_AnswersConnectionChecks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bus := NewBus()
	replica := NewReplica(liftingTable(), clock, nil)
	require.NoError(t, replica.Attach(bus.Open(LiftingTableChannel)))

	observer := &collector{}
	ch := bus.Open(LiftingTableChannel)
	_, err := ch.Subscribe(observer.handle)
	require.NoError(t, err)

	require.NoError(t, ch.Post(context.Background(), NewEnvelope(TypeConnectionCheck, SourceMain, nil, clock.Now())))

	require.Eventually(t, func() bool {
		return len(observer.ofType(TypeConnectionResponse)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, SourceMirror, observer.ofType(TypeConnectionResponse)[0].Source)
}

func TestReplica_IgnoresMirrorAuthoredState(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bus := NewBus()
	replica := NewReplica(liftingTable(), clock, nil)
	require.NoError(t, replica.Attach(bus.Open(LiftingTableChannel)))

	ch := bus.Open(LiftingTableChannel)
	require.NoError(t, ch.Post(context.Background(),
		NewEnvelope(TypeSyncState, SourceMirror, json.RawMessage(`{"attempt":3}`), clock.Now())))
	require.NoError(t, ch.Post(context.Background(),
		NewEnvelope(TypeWindowClosed, SourceMain, nil, clock.Now())))

	require.Eventually(t, func() bool { return replica.Render().PrimaryGone }, time.Second, 5*time.Millisecond)
	_, ok := replica.State()
	assert.False(t, ok)
}

func TestViewConfig_MirrorURL(t *testing.T) {
	views := DefaultViews()

	got, err := views[ViewAthletePanel].MirrorURL("https://meet.example.org/app/")
	require.NoError(t, err)
	assert.Equal(t, "https://meet.example.org/app/lifting/athlete?mirror=1&view=athlete-panel", got)

	assert.NotEqual(t, views[ViewLiftingTable].ChannelName, views[ViewAthletePanel].ChannelName)
	assert.NotEqual(t, views[ViewLiftingTable].WindowName, views[ViewAthletePanel].WindowName)
}

func TestRoleFromRequest(t *testing.T) {
	assert.Equal(t, RoleMirror, RoleFromRequest(httptest.NewRequest("GET", "/lifting/table?mirror=1", nil)))
	assert.Equal(t, RoleMirror, RoleFromRequest(httptest.NewRequest("GET", "/lifting/table?mirror=true", nil)))
	assert.Equal(t, RolePrimary, RoleFromRequest(httptest.NewRequest("GET", "/lifting/table", nil)))
	assert.Equal(t, RolePrimary, RoleFromRequest(nil))
}

func TestParseViewType(t *testing.T) {
	v, err := ParseViewType("athlete-panel")
	require.NoError(t, err)
	assert.Equal(t, ViewAthletePanel, v)

	_, err = ParseViewType("scoreboard")
	assert.Error(t, err)
}
