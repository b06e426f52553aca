package mirror

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultWatchInterval is how often a window handle is polled for closure.
const DefaultWatchInterval = time.Second

// LivenessWatcher reports when a mirror window goes away.
type LivenessWatcher interface {
	// Watch calls onClosed once when w closes. The returned func stops watching.
	Watch(w Window, onClosed func()) (stop func())
}

// closeNotifier is implemented by windows that can signal closure themselves.
type closeNotifier interface {
	Done() <-chan struct{}
}

// PollingWatcher checks Window.Closed on a fixed interval. Windows that
// expose a Done channel are watched without polling.
type PollingWatcher struct {
	clock    clockwork.Clock
	interval time.Duration
}

// NewPollingWatcher creates a watcher polling at interval.
func NewPollingWatcher(clock clockwork.Clock, interval time.Duration) *PollingWatcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &PollingWatcher{clock: clock, interval: interval}
}

func (p *PollingWatcher) Watch(w Window, onClosed func()) func() {
	stopCh := make(chan struct{})
	var stopOnce sync.Once
	stop := func() { stopOnce.Do(func() { close(stopCh) }) }

	if n, ok := w.(closeNotifier); ok {
		go func() {
			select {
			case <-n.Done():
				onClosed()
			case <-stopCh:
			}
		}()
		return stop
	}

	ticker := p.clock.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.Chan():
				if w.Closed() {
					onClosed()
					return
				}
			}
		}
	}()
	return stop
}
