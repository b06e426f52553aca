package mirror

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resource struct{ closed bool }

func (r *resource) Close() error {
	r.closed = true
	return nil
}

type panelState struct {
	Athlete  string            `json:"athlete"`
	Weight   float64           `json:"weight"`
	Started  time.Time         `json:"started"`
	EntryID  uuid.UUID         `json:"entry_id"`
	Selected uuid.NullUUID     `json:"selected"`
	Lights   [3]bool           `json:"lights"`
	Tags     map[string]string `json:"tags"`
	Note     string            `json:"note,omitempty"`
	Hidden   string            `json:"-"`
	internal int
}

func TestSanitize_PreservesSerializableState(t *testing.T) {
	state := panelState{
		Athlete:  "Ada",
		Weight:   142.5,
		Started:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		EntryID:  uuid.MustParse("0e9b6a8e-5f44-4c1c-9a0f-0d6f0a3c8b11"),
		Selected: uuid.NullUUID{},
		Lights:   [3]bool{true, false, true},
		Tags:     map[string]string{"division": "open"},
		Hidden:   "secret",
		internal: 7,
	}

	want, err := json.Marshal(state)
	require.NoError(t, err)
	got, err := MarshalSanitized(state)
	require.NoError(t, err)

	assert.JSONEq(t, string(want), string(got))
}

func TestSanitize_DropsUnserializableFields(t *testing.T) {
	state := map[string]any{
		"name":    "flight A",
		"onClick": func() {},
		"events":  make(chan int),
		"socket":  &resource{},
		"nested": map[string]any{
			"ratio":  math.NaN(),
			"weight": 100.0,
		},
	}

	got, err := MarshalSanitized(state)
	require.NoError(t, err)

	assert.JSONEq(t, `{"name":"flight A","nested":{"weight":100}}`, string(got))
}

func TestSanitize_ArraysKeepPositions(t *testing.T) {
	got, err := MarshalSanitized([]any{1, func() {}, "x", math.Inf(-1), &resource{}})
	require.NoError(t, err)

	assert.JSONEq(t, `[1,null,"x",null,null]`, string(got))
}

func TestSanitize_CutsCycles(t *testing.T) {
	type node struct {
		Name string `json:"name"`
		Next *node  `json:"next"`
	}
	n := &node{Name: "a"}
	n.Next = n

	got, err := MarshalSanitized(n)
	require.NoError(t, err)

	assert.JSONEq(t, `{"name":"a"}`, string(got))
}

func TestSanitize_StructFieldsWithHandlers(t *testing.T) {
	type view struct {
		Title    string       `json:"title"`
		OnChange func(string) `json:"on_change"`
		Conn     *resource    `json:"conn"`
		Rows     []int        `json:"rows"`
	}

	got, err := MarshalSanitized(view{Title: "table", OnChange: func(string) {}, Conn: &resource{}, Rows: []int{1, 2}})
	require.NoError(t, err)

	assert.JSONEq(t, `{"title":"table","rows":[1,2]}`, string(got))
}

func TestSanitize_Nil(t *testing.T) {
	got, err := MarshalSanitized(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(got))
}

func TestSanitize_Golden(t *testing.T) {
	type flightState struct {
		Flight  string         `json:"flight"`
		Attempt int            `json:"attempt"`
		Weights []float64      `json:"weights"`
		Render  func() string  `json:"render"`
		Updates chan int       `json:"updates"`
		Handles []any          `json:"handles"`
		Note    string         `json:"note,omitempty"`
		Meta    map[string]any `json:"meta"`
	}

	state := flightState{
		Flight:  "A",
		Attempt: 2,
		Weights: []float64{100, 102.5},
		Render:  func() string { return "" },
		Updates: make(chan int),
		Handles: []any{"bar", func() {}, 3},
		Meta: map[string]any{
			"lights": []any{true, false, true},
			"bad":    math.Inf(1),
		},
	}

	got, err := json.MarshalIndent(Sanitize(state), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "sanitized_flight_state", got)
}
