package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// DefaultSubjectPrefix namespaces mirror channels on a NATS server.
const DefaultSubjectPrefix = "mirror"

// NATSChannel carries a mirror channel over a NATS core subject so views on
// other machines can follow the primary. The connection is owned by the caller.
type NATSChannel struct {
	nc      *nats.Conn
	name    string
	subject string

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

// NewNATSChannel binds a channel name to the subject "<prefix>.<name>".
func NewNATSChannel(nc *nats.Conn, prefix, name string) *NATSChannel {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSChannel{
		nc:      nc,
		name:    name,
		subject: fmt.Sprintf("%s.%s", prefix, name),
	}
}

func (c *NATSChannel) Name() string { return c.name }

// Subject returns the NATS subject carrying the channel.
func (c *NATSChannel) Subject() string { return c.subject }

func (c *NATSChannel) Post(_ context.Context, env Envelope) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := c.nc.Publish(c.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", c.subject, err)
	}
	return nil
}

func (c *NATSChannel) Subscribe(h Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}

	sub, err := c.nc.Subscribe(c.subject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed mirror message")
			return
		}
		h(env)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", c.subject, err)
	}
	c.subs = append(c.subs, sub)

	return func() {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
			log.Warn().Err(err).Str("subject", c.subject).Msg("failed to unsubscribe")
		}
	}, nil
}

func (c *NATSChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	return nil
}
