package discovery

import (
	"context"
	"sync"
)

// FakeAdapter is an in-memory Adapter for tests: Advertise records self and
// blocks on ctx, Browse replays whatever is pushed via Push.
type FakeAdapter struct {
	mu         sync.Mutex
	advertised []Sighting
	sightings  chan Sighting
}

// NewFakeAdapter returns an empty FakeAdapter.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{sightings: make(chan Sighting, 64)}
}

// Advertise records self and blocks until ctx is cancelled.
func (f *FakeAdapter) Advertise(ctx context.Context, self Sighting) error {
	f.mu.Lock()
	f.advertised = append(f.advertised, self)
	f.mu.Unlock()

	<-ctx.Done()

	return nil
}

// Browse returns a channel fed by Push, closed when ctx is cancelled.
func (f *FakeAdapter) Browse(ctx context.Context) (<-chan Sighting, error) {
	out := make(chan Sighting, 64)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case s := <-f.sightings:
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Push injects a sighting as if it had been observed on the network.
func (f *FakeAdapter) Push(s Sighting) {
	f.sightings <- s
}

// Advertised returns every Sighting passed to Advertise so far.
func (f *FakeAdapter) Advertised() []Sighting {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Sighting, len(f.advertised))
	copy(out, f.advertised)

	return out
}
