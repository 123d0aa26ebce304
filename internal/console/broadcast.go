package console

import (
	"sync"

	"codeberg.org/mutker/packmon/internal/stats"
)

const subscriberBuffer = 8

// broadcaster fans freshly published windows out to live stream viewers.
// Sends never block: a viewer that cannot keep up loses windows instead
// of stalling the processing loop.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[chan stats.Window]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[chan stats.Window]struct{})}
}

// subscribe registers a new viewer channel. After close the returned
// channel is already closed, so late subscribers detach immediately.
func (b *broadcaster) subscribe() chan stats.Window {
	ch := make(chan stats.Window, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs[ch] = struct{}{}
	}
	b.mu.Unlock()

	return ch
}

func (b *broadcaster) unsubscribe(ch chan stats.Window) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *broadcaster) publish(w stats.Window) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- w:
		default:
		}
	}
	b.mu.Unlock()
}

// close detaches every viewer. Their write loops observe the closed
// channel and hang up.
func (b *broadcaster) close() {
	b.mu.Lock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
