package control

import "sync"

// broadcastBuffer bounds how many events a slow subscriber can lag behind
// before it silently starts missing the oldest ones rather than blocking
// the publisher.
const broadcastBuffer = 64

// Broadcaster fans a single stream of events out to any number of
// subscribers. Publishing never blocks: a subscriber channel that is full
// has its oldest pending event dropped to make room, trading completeness
// for a publisher that never stalls on a slow HTTP client.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Publish delivers ev to every current subscriber.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}

			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Subscribe registers a new listener and returns its channel along with an
// unsubscribe function the caller must invoke when done.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, broadcastBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}

	return ch, unsubscribe
}
