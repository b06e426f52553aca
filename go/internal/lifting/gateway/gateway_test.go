package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/control"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/models"
	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/roster"
)

var flight = models.FlightKey{Day: 1, Platform: 1, Flight: "A"}

type harness struct {
	server  *httptest.Server
	surface *control.Surface
	svc     *Service
	table   *mirror.Primary
	panel   *mirror.Primary
	entries []models.Entry
	cancel  context.CancelFunc
}

func entry(name string, lot int, opener float64) models.Entry {
	e := models.Entry{
		ID:        uuid.New(),
		Name:      name,
		Day:       flight.Day,
		Platform:  flight.Platform,
		Flight:    flight.Flight,
		LotNumber: lot,
	}
	e.Lifts[models.LiftSquat].Weights[0] = opener
	return e
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	entries := []models.Entry{entry("Ana", 1, 100), entry("Bea", 2, 110)}
	clock := clockwork.NewFakeClock()
	views := mirror.DefaultViews()
	bus := mirror.NewBus()

	table := mirror.NewPrimary(views[mirror.ViewLiftingTable], mirror.WithClock(clock))
	panel := mirror.NewPrimary(views[mirror.ViewAthletePanel], mirror.WithClock(clock))
	tableCh := bus.Open(mirror.LiftingTableChannel)
	panelCh := bus.Open(mirror.AthletePanelChannel)
	require.NoError(t, table.Attach(context.Background(), tableCh))
	require.NoError(t, panel.Attach(context.Background(), panelCh))

	surface := control.New(control.Deps{
		Store:      roster.NewApp(roster.NewMemoryRepository(entries...)),
		Publishers: []control.StatePublisher{table, panel},
		Clock:      clock,
	}, control.DefaultConfig())

	svc, err := NewService(DefaultConfig(), surface,
		ViewBinding{Primary: table, Channel: bus.Open(mirror.LiftingTableChannel)},
		ViewBinding{Primary: panel, Channel: bus.Open(mirror.AthletePanelChannel)},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	h := &harness{
		server:  httptest.NewServer(mux),
		surface: surface,
		svc:     svc,
		table:   table,
		panel:   panel,
		entries: entries,
		cancel:  cancel,
	}
	t.Cleanup(func() {
		h.server.Close()
		cancel()
		surface.Close()
	})
	return h
}

func call[Req, Res any](t *testing.T, h *harness, procedure string, req *Req) (*Res, error) {
	t.Helper()
	client := connect.NewClient[Req, Res](h.server.Client(), h.server.URL+procedure, connect.WithCodec(JSONCodec{}))
	res, err := client.CallUnary(context.Background(), connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func dial(t *testing.T, h *harness, view mirror.ViewType) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/mirror?view=" + string(view)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool {
		return h.svc.connectionManager.ConnectionCounts()[view] > 0
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) mirror.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env mirror.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestLiftingService_SelectFlightAndMark(t *testing.T) {
	h := newHarness(t)

	snap, err := call[SelectFlightRequest, control.Snapshot](t, h, SelectFlightProcedure,
		&SelectFlightRequest{Day: 1, Platform: 1, Flight: "A"})
	require.NoError(t, err)
	assert.Equal(t, models.SomeID(h.entries[0].ID), snap.Order.CurrentEntryID)

	snap, err = call[Empty, control.Snapshot](t, h, MarkGoodLiftProcedure, &Empty{})
	require.NoError(t, err)
	assert.Equal(t, models.SomeID(h.entries[1].ID), snap.Order.CurrentEntryID)
	assert.Len(t, snap.Timers, 1)
}

func TestLiftingService_ErrorCodes(t *testing.T) {
	h := newHarness(t)

	_, err := call[Empty, control.Snapshot](t, h, MarkGoodLiftProcedure, &Empty{})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	_, err = call[SelectFlightRequest, control.Snapshot](t, h, SelectFlightProcedure, &SelectFlightRequest{Day: 1, Platform: 1, Flight: "A"})
	require.NoError(t, err)

	_, err = call[SelectEntryRequest, control.Snapshot](t, h, SelectEntryProcedure, &SelectEntryRequest{EntryID: uuid.New()})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = call[MirrorRequest, MirrorStatusResponse](t, h, OpenMirrorProcedure, &MirrorRequest{View: mirror.ViewLiftingTable})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err), "no window opener configured")

	_, err = call[MirrorRequest, MirrorStatusResponse](t, h, CloseMirrorProcedure, &MirrorRequest{View: "scoreboard"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestMirrorStatus(t *testing.T) {
	h := newHarness(t)

	res, err := call[Empty, MirrorStatusResponse](t, h, GetMirrorStatusProcedure, &Empty{})
	require.NoError(t, err)
	require.Len(t, res.Mirrors, 2)
	assert.Equal(t, mirror.ViewLiftingTable, res.Mirrors[0].View)
	assert.True(t, res.Mirrors[0].Attached)
	assert.False(t, res.Mirrors[0].Connected)
}

func TestWebSocketMirror_ReceivesStateAndAnswersProbe(t *testing.T) {
	h := newHarness(t)
	conn := dial(t, h, mirror.ViewLiftingTable)

	_, err := h.surface.SelectFlight(context.Background(), flight)
	require.NoError(t, err)

	var env mirror.Envelope
	for env.Type != mirror.TypeSyncState {
		env = readEnvelope(t, conn)
	}
	assert.Equal(t, mirror.SourceMain, env.Source)
	var snap control.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, flight.Flight, snap.State.Flight)

	reply := mirror.NewEnvelope(mirror.TypeConnectionResponse, mirror.SourceMain, nil, time.Now())
	data, err := json.Marshal(reply)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	// Browsers are always mirrors, so the primary accepts the reply.
	assert.Eventually(t, h.table.Connected, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketMirror_LateJoinerGetsLastState(t *testing.T) {
	h := newHarness(t)

	_, err := h.surface.SelectFlight(context.Background(), flight)
	require.NoError(t, err)

	resp := func() MirrorStateResponse {
		r, err := h.server.Client().Get(h.server.URL + "/api/lifting/mirrors/athlete-panel")
		require.NoError(t, err)
		defer r.Body.Close()
		var out MirrorStateResponse
		require.NoError(t, json.NewDecoder(r.Body).Decode(&out))
		return out
	}
	require.Eventually(t, func() bool { return !resp().Rendered.Waiting }, 2*time.Second, 10*time.Millisecond)

	conn := dial(t, h, mirror.ViewAthletePanel)
	env := readEnvelope(t, conn)
	assert.Equal(t, mirror.TypeSyncState, env.Type)

	var panel control.AthletePanel
	require.NoError(t, json.Unmarshal(env.Data, &panel))
	require.NotNil(t, panel.Current)
	assert.Equal(t, "Ana", panel.Current.Name)
}

func TestStateHandler_WaitingPlaceholder(t *testing.T) {
	h := newHarness(t)

	r, err := h.server.Client().Get(h.server.URL + "/api/lifting/mirrors/lifting-table")
	require.NoError(t, err)
	defer r.Body.Close()
	require.Equal(t, http.StatusOK, r.StatusCode)

	var out MirrorStateResponse
	require.NoError(t, json.NewDecoder(r.Body).Decode(&out))
	assert.True(t, out.Rendered.Waiting)
	assert.Equal(t, mirror.PlaceholderMessage, out.Rendered.Message)
	require.NotNil(t, out.Status)
	assert.Equal(t, mirror.LiftingTableChannel, out.Status.Channel)

	r2, err := h.server.Client().Get(h.server.URL + "/api/lifting/mirrors/scoreboard")
	require.NoError(t, err)
	r2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r2.StatusCode)
}

func TestBridge_RejectsStateFromBrowser(t *testing.T) {
	bus := mirror.NewBus()
	b := NewBridge(mirror.ViewLiftingTable, bus.Open(mirror.LiftingTableChannel), NewConnectionManager(DefaultConnectionConfig()))

	frame, err := json.Marshal(mirror.NewEnvelope(mirror.TypeSyncState, mirror.SourceMirror, json.RawMessage(`{}`), time.Now()))
	require.NoError(t, err)
	assert.Error(t, b.FromClient(context.Background(), frame))
	assert.Error(t, b.FromClient(context.Background(), []byte(`{"type":"HELLO"}`)))
	assert.Error(t, b.FromClient(context.Background(), []byte(`not json`)))
}

func TestConnectionManager_QueueKeepsNewestState(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	cm.BroadcastState(mirror.ViewLiftingTable, []byte("state-0"))
	cm.BroadcastToView(mirror.ViewLiftingTable, []byte("hello"))
	for i := 1; i <= 500; i++ {
		cm.BroadcastState(mirror.ViewLiftingTable, []byte(fmt.Sprintf("state-%d", i)))
	}
	cm.BroadcastState(mirror.ViewAthletePanel, []byte("panel"))

	pending := cm.drain()
	table := pending[mirror.ViewLiftingTable]
	require.Len(t, table, 2)
	assert.Equal(t, "hello", string(table[0].Data))
	assert.Equal(t, "state-500", string(table[1].Data))
	assert.True(t, table[1].State)
	require.Len(t, pending[mirror.ViewAthletePanel], 1)
	assert.Empty(t, cm.drain())
}

func TestConnectionManager_FullQueueDropsOldestFrameNotState(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())

	cm.BroadcastState(mirror.ViewLiftingTable, []byte("state"))
	for i := 0; i < maxPendingFrames+10; i++ {
		cm.BroadcastToView(mirror.ViewLiftingTable, []byte(fmt.Sprintf("frame-%d", i)))
	}

	table := cm.drain()[mirror.ViewLiftingTable]
	require.Len(t, table, maxPendingFrames+1)
	assert.Equal(t, "state", string(table[0].Data))
	assert.Equal(t, "frame-10", string(table[1].Data))
	assert.Equal(t, fmt.Sprintf("frame-%d", maxPendingFrames+9), string(table[len(table)-1].Data))
}
