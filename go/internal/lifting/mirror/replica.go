package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// PlaceholderMessage is shown by a mirror that has not received state yet.
const PlaceholderMessage = "Waiting for primary…"

// Rendered is what a mirror shows: the last state, or a placeholder.
type Rendered struct {
	View        ViewType        `json:"view"`
	Waiting     bool            `json:"waiting"`
	Message     string          `json:"message,omitempty"`
	State       json.RawMessage `json:"state,omitempty"`
	ReceivedAt  time.Time       `json:"received_at,omitzero"`
	PrimaryGone bool            `json:"primary_gone"`
}

// Replica follows a primary and holds the last state it published.
type Replica struct {
	view  ViewConfig
	clock clockwork.Clock

	mu          sync.Mutex
	channel     Channel
	unsubscribe func()
	state       json.RawMessage
	receivedAt  time.Time
	primaryGone bool
	onState     func(json.RawMessage)
}

// NewReplica creates the following side of a view. onState, if set, is
// called with every new state.
func NewReplica(view ViewConfig, clock clockwork.Clock, onState func(json.RawMessage)) *Replica {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Replica{view: view, clock: clock, onState: onState}
}

// Attach joins the view's channel.
func (r *Replica) Attach(ch Channel) error {
	unsubscribe, err := ch.Subscribe(r.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", ch.Name(), err)
	}
	r.mu.Lock()
	r.channel = ch
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
	return nil
}

// Render returns the current view of the mirror.
func (r *Replica) Render() Rendered {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == nil {
		return Rendered{View: r.view.Type, Waiting: true, Message: PlaceholderMessage, PrimaryGone: r.primaryGone}
	}
	return Rendered{
		View:        r.view.Type,
		State:       append(json.RawMessage(nil), r.state...),
		ReceivedAt:  r.receivedAt,
		PrimaryGone: r.primaryGone,
	}
}

// State returns the last received state.
func (r *Replica) State() (json.RawMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		return nil, false
	}
	return append(json.RawMessage(nil), r.state...), true
}

// Close announces the mirror is going away and leaves the channel.
func (r *Replica) Close(ctx context.Context) error {
	r.mu.Lock()
	ch := r.channel
	unsubscribe := r.unsubscribe
	r.channel = nil
	r.unsubscribe = nil
	r.mu.Unlock()

	if ch == nil {
		return nil
	}
	err := ch.Post(ctx, NewEnvelope(TypeWindowClosed, SourceMirror, nil, r.clock.Now()))
	if unsubscribe != nil {
		unsubscribe()
	}
	if err != nil {
		return fmt.Errorf("announce mirror closure: %w", err)
	}
	return nil
}

func (r *Replica) handle(env Envelope) {
	if env.Source == SourceMirror {
		return
	}

	switch env.Type {
	case TypeSyncState:
		r.mu.Lock()
		r.state = append(json.RawMessage(nil), env.Data...)
		r.receivedAt = r.clock.Now()
		r.primaryGone = false
		onState := r.onState
		r.mu.Unlock()
		if onState != nil {
			onState(env.Data)
		}
	case TypeConnectionCheck:
		r.respond()
	case TypeWindowClosed:
		r.mu.Lock()
		r.primaryGone = true
		r.mu.Unlock()
		log.Info().Str("view", string(r.view.Type)).Msg("primary closed, keeping last state")
	}
}

func (r *Replica) respond() {
	r.mu.Lock()
	ch := r.channel
	r.mu.Unlock()
	if ch == nil {
		return
	}
	env := NewEnvelope(TypeConnectionResponse, SourceMirror, nil, r.clock.Now())
	if err := ch.Post(context.Background(), env); err != nil {
		log.Warn().Err(err).Str("view", string(r.view.Type)).Msg("failed to answer connection check")
	}
}
