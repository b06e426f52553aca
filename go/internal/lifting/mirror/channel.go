package mirror

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelClosed is returned when posting to a closed channel.
var ErrChannelClosed = errors.New("mirror channel closed")

// Handler receives every envelope posted to a channel.
type Handler func(Envelope)

// Channel is a named many-to-many broadcast. Every posted envelope is
// delivered to every subscriber of the same name, the sender included.
type Channel interface {
	Name() string
	Post(ctx context.Context, env Envelope) error
	Subscribe(h Handler) (unsubscribe func(), err error)
	Close() error
}

// Bus connects channels opened by name within one process.
type Bus struct {
	mu     sync.RWMutex
	groups map[string]map[*subscriber]struct{}
}

// NewBus creates an empty in-process bus.
func NewBus() *Bus {
	return &Bus{groups: make(map[string]map[*subscriber]struct{})}
}

// Open returns a handle on the named channel.
func (b *Bus) Open(name string) Channel {
	return &busChannel{bus: b, name: name}
}

func (b *Bus) join(name string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groups[name] == nil {
		b.groups[name] = make(map[*subscriber]struct{})
	}
	b.groups[name][s] = struct{}{}
}

func (b *Bus) leave(name string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if group, ok := b.groups[name]; ok {
		delete(group, s)
		if len(group) == 0 {
			delete(b.groups, name)
		}
	}
}

func (b *Bus) deliver(name string, env Envelope) {
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.groups[name]))
	for s := range b.groups[name] {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(env)
	}
}

type busChannel struct {
	bus  *Bus
	name string

	mu     sync.Mutex
	subs   []*subscriber
	closed bool
}

func (c *busChannel) Name() string { return c.name }

func (c *busChannel) Post(_ context.Context, env Envelope) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	c.bus.deliver(c.name, env)
	return nil
}

func (c *busChannel) Subscribe(h Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}

	s := newSubscriber(h)
	c.subs = append(c.subs, s)
	c.bus.join(c.name, s)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.bus.leave(c.name, s)
			s.close()
		})
	}, nil
}

func (c *busChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, s := range c.subs {
		c.bus.leave(c.name, s)
		s.close()
	}
	c.subs = nil
	return nil
}

// subscriber delivers envelopes to its handler in post order on its own
// goroutine, so handlers may post back to the channel.
type subscriber struct {
	handler Handler

	mu     sync.Mutex
	queue  []Envelope
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func newSubscriber(h Handler) *subscriber {
	s := &subscriber{
		handler: h,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) enqueue(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, env)
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			env := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			s.handler(env)
		}
	}
}
