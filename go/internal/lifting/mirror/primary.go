package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultProbeInterval is how often the primary checks for live mirrors.
const DefaultProbeInterval = 2 * time.Second

// Status describes a primary's view of its mirrors.
type Status struct {
	View       ViewType  `json:"view"`
	Channel    string    `json:"channel"`
	Attached   bool      `json:"attached"`
	Connected  bool      `json:"connected"`
	WindowOpen bool      `json:"window_open"`
	Pending    int       `json:"pending"`
	LastSync   time.Time `json:"last_sync,omitzero"`
}

// Primary publishes state for one view and tracks whether a mirror is live.
type Primary struct {
	view          ViewConfig
	clock         clockwork.Clock
	opener        WindowOpener
	watcher       LivenessWatcher
	baseURL       string
	probeInterval time.Duration

	mu          sync.Mutex
	channel     Channel
	unsubscribe func()
	pending     []Envelope
	connected   bool
	window      Window
	stopWatch   func()
	lastSync    time.Time
	onConnected func(bool)
}

// PrimaryOption configures a Primary.
type PrimaryOption func(*Primary)

func WithClock(c clockwork.Clock) PrimaryOption {
	return func(p *Primary) { p.clock = c }
}

func WithOpener(o WindowOpener) PrimaryOption {
	return func(p *Primary) { p.opener = o }
}

func WithWatcher(w LivenessWatcher) PrimaryOption {
	return func(p *Primary) { p.watcher = w }
}

func WithBaseURL(u string) PrimaryOption {
	return func(p *Primary) { p.baseURL = u }
}

func WithProbeInterval(d time.Duration) PrimaryOption {
	return func(p *Primary) {
		if d > 0 {
			p.probeInterval = d
		}
	}
}

// WithConnectionListener is told every time the connected flag changes.
func WithConnectionListener(fn func(connected bool)) PrimaryOption {
	return func(p *Primary) { p.onConnected = fn }
}

// NewPrimary creates the publishing side of a view. Messages sent before a
// channel is attached are queued.
func NewPrimary(view ViewConfig, opts ...PrimaryOption) *Primary {
	p := &Primary{
		view:          view,
		clock:         clockwork.NewRealClock(),
		baseURL:       "http://localhost:8080",
		probeInterval: DefaultProbeInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.watcher == nil {
		p.watcher = NewPollingWatcher(p.clock, DefaultWatchInterval)
	}
	return p
}

// View returns the configuration of the published view.
func (p *Primary) View() ViewConfig { return p.view }

// Attach makes ch the transport and flushes queued messages in order.
func (p *Primary) Attach(ctx context.Context, ch Channel) error {
	unsubscribe, err := ch.Subscribe(p.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", ch.Name(), err)
	}

	p.mu.Lock()
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.channel = ch
	p.unsubscribe = unsubscribe
	queued := p.pending
	p.pending = nil

	// Flushing under the lock keeps later sends behind the queue.
	for i, env := range queued {
		if err := ch.Post(ctx, env); err != nil {
			p.pending = append(p.pending, queued[i:]...)
			p.mu.Unlock()
			return fmt.Errorf("flush queued mirror messages: %w", err)
		}
	}
	p.mu.Unlock()

	log.Info().
		Str("view", string(p.view.Type)).
		Str("channel", ch.Name()).
		Int("flushed", len(queued)).
		Msg("mirror channel attached")
	return nil
}

// Run probes for live mirrors until ctx is done.
func (p *Primary) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if !p.attached() {
				continue
			}
			if err := p.send(ctx, TypeConnectionCheck, nil); err != nil {
				log.Warn().Err(err).Str("view", string(p.view.Type)).Msg("connection check failed")
			}
		}
	}
}

// SyncState publishes a sanitized copy of state.
func (p *Primary) SyncState(ctx context.Context, state any) error {
	data, err := MarshalSanitized(state)
	if err != nil {
		return err
	}
	if err := p.send(ctx, TypeSyncState, data); err != nil {
		return err
	}

	p.mu.Lock()
	p.lastSync = p.clock.Now()
	p.mu.Unlock()
	return nil
}

func (p *Primary) attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel != nil
}

// Connected reports whether a mirror answered since the last closure.
func (p *Primary) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Status summarizes the primary for status endpoints.
func (p *Primary) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		View:       p.view.Type,
		Channel:    p.view.ChannelName,
		Attached:   p.channel != nil,
		Connected:  p.connected,
		WindowOpen: p.window != nil && !p.window.Closed(),
		Pending:    len(p.pending),
		LastSync:   p.lastSync,
	}
}

// OpenMirror opens the mirror window for this view, or focuses it if it is
// already open. A zero geometry uses the view default.
func (p *Primary) OpenMirror(ctx context.Context, geometry Geometry) (Window, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.window != nil && !p.window.Closed() {
		if err := p.window.Focus(); err != nil {
			log.Warn().Err(err).Str("window", p.view.WindowName).Msg("failed to focus mirror window")
		}
		return p.window, nil
	}
	if p.opener == nil {
		return nil, ErrWindowBlocked
	}

	if geometry == (Geometry{}) {
		geometry = p.view.Geometry
	}
	target, err := p.view.MirrorURL(p.baseURL)
	if err != nil {
		return nil, err
	}

	w, err := p.opener.Open(ctx, WindowSpec{URL: target, Name: p.view.WindowName, Geometry: geometry})
	if err != nil || w == nil {
		log.Error().Err(err).Str("window", p.view.WindowName).Msg("mirror window blocked")
		if err == nil {
			return nil, ErrWindowBlocked
		}
		return nil, errors.Join(ErrWindowBlocked, err)
	}

	p.window = w
	p.stopWatch = p.watcher.Watch(w, func() { p.windowClosed(w) })
	return w, nil
}

// CloseMirror closes the mirror window if open.
func (p *Primary) CloseMirror() error {
	p.mu.Lock()
	w := p.window
	p.mu.Unlock()
	if w == nil {
		return nil
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close mirror window: %w", err)
	}
	p.windowClosed(w)
	return nil
}

// Close stops watching, tells mirrors the primary is gone and leaves the channel.
func (p *Primary) Close(ctx context.Context) error {
	if err := p.send(ctx, TypeWindowClosed, nil); err != nil {
		log.Warn().Err(err).Str("view", string(p.view.Type)).Msg("failed to announce primary shutdown")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopWatch != nil {
		p.stopWatch()
		p.stopWatch = nil
	}
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	p.channel = nil
	return nil
}

func (p *Primary) windowClosed(w Window) {
	p.mu.Lock()
	if p.window != w {
		p.mu.Unlock()
		return
	}
	p.window = nil
	if p.stopWatch != nil {
		p.stopWatch()
		p.stopWatch = nil
	}
	p.setConnectedLocked(false)
	p.mu.Unlock()

	log.Info().Str("window", p.view.WindowName).Msg("mirror window closed")

	if err := p.send(context.Background(), TypeWindowClosed, nil); err != nil {
		log.Warn().Err(err).Str("view", string(p.view.Type)).Msg("failed to broadcast window closure")
	}
}

func (p *Primary) handle(env Envelope) {
	if env.Source == SourceMain {
		return
	}

	switch env.Type {
	case TypeConnectionResponse:
		p.mu.Lock()
		p.setConnectedLocked(true)
		p.mu.Unlock()
	case TypeWindowClosed:
		p.mu.Lock()
		p.setConnectedLocked(false)
		p.mu.Unlock()
	default:
		log.Debug().Str("type", string(env.Type)).Msg("ignoring mirror message")
	}
}

func (p *Primary) setConnectedLocked(connected bool) {
	if p.connected == connected {
		return
	}
	p.connected = connected
	log.Info().Str("view", string(p.view.Type)).Bool("connected", connected).Msg("mirror connection changed")
	if p.onConnected != nil {
		go p.onConnected(connected)
	}
}

// send posts now when a channel is attached and queues otherwise.
func (p *Primary) send(ctx context.Context, t MessageType, data json.RawMessage) error {
	env := NewEnvelope(t, SourceMain, data, p.clock.Now())

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		p.pending = append(p.pending, env)
		return nil
	}
	if err := p.channel.Post(ctx, env); err != nil {
		return fmt.Errorf("post %s: %w", t, err)
	}
	return nil
}
