package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval is the sweep period and the minimum quiet time a path
// must see before its retained event is emitted. Editors and file copiers
// produce bursts of events for a single logical change; reacting to every
// intermediate state would generate spurious hash recomputations and
// metadata broadcasts.
const debounceInterval = time.Second

type bucket struct {
	event   fsnotify.Event
	updated time.Time
}

// debounceBuffer retains the most recent raw event per path and releases
// it once debounceInterval has passed without a further update.
type debounceBuffer struct {
	mu      sync.Mutex
	buckets map[string]bucket
}

func newDebounceBuffer() *debounceBuffer {
	return &debounceBuffer{buckets: make(map[string]bucket)}
}

// Record retains ev as the latest event for its path, resetting that
// path's quiet timer.
func (d *debounceBuffer) Record(ev fsnotify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.buckets[ev.Name] = bucket{event: ev, updated: time.Now()}
}

// Sweep returns every retained event whose quiet time has reached
// debounceInterval, clearing those buckets.
func (d *debounceBuffer) Sweep() []fsnotify.Event {
	cutoff := time.Now().Add(-debounceInterval)

	d.mu.Lock()
	defer d.mu.Unlock()

	var ready []fsnotify.Event

	for path, b := range d.buckets {
		if b.updated.Before(cutoff) || b.updated.Equal(cutoff) {
			ready = append(ready, b.event)
			delete(d.buckets, path)
		}
	}

	return ready
}
