package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RJSeERMJ/feperjv3-sub001/go/internal/lifting/mirror"
)

// Bridge joins one view's mirror channel to the browsers displaying it.
// Primary messages go out to every socket; browser replies are posted back
// to the channel as mirror messages.
type Bridge struct {
	view    mirror.ViewType
	channel mirror.Channel
	manager *ConnectionManager

	mu          sync.RWMutex
	lastState   []byte
	unsubscribe func()
}

func NewBridge(view mirror.ViewType, channel mirror.Channel, manager *ConnectionManager) *Bridge {
	return &Bridge{
		view:    view,
		channel: channel,
		manager: manager,
	}
}

// Start subscribes to the channel.
func (b *Bridge) Start() error {
	unsubscribe, err := b.channel.Subscribe(b.handle)
	if err != nil {
		return fmt.Errorf("subscribe bridge to %s: %w", b.channel.Name(), err)
	}
	b.mu.Lock()
	b.unsubscribe = unsubscribe
	b.mu.Unlock()
	return nil
}

// Close leaves the channel.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

// LastState is the most recent SYNC_STATE frame, or nil before the first
// one and after the primary has gone away.
func (b *Bridge) LastState() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastState
}

func (b *Bridge) handle(env mirror.Envelope) {
	if env.Source != mirror.SourceMain {
		return
	}

	frame, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("view", string(b.view)).Msg("failed to marshal mirror frame")
		return
	}

	switch env.Type {
	case mirror.TypeSyncState:
		b.mu.Lock()
		b.lastState = frame
		b.mu.Unlock()
		b.manager.BroadcastState(b.view, frame)
		return
	case mirror.TypeWindowClosed:
		b.mu.Lock()
		b.lastState = nil
		b.mu.Unlock()
	}
	b.manager.BroadcastToView(b.view, frame)
}

// FromClient posts a browser frame to the channel. Browsers only speak as
// mirrors, whatever source they claim.
func (b *Bridge) FromClient(ctx context.Context, data []byte) error {
	var env mirror.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode mirror frame: %w", err)
	}
	if !env.Type.Valid() {
		return fmt.Errorf("unknown mirror message type %q", env.Type)
	}
	if env.Type == mirror.TypeSyncState {
		return fmt.Errorf("mirrors may not publish state")
	}
	env.Source = mirror.SourceMirror
	if env.ID == "" {
		env = mirror.NewEnvelope(env.Type, mirror.SourceMirror, env.Data, time.Now())
	}
	return b.channel.Post(ctx, env)
}
