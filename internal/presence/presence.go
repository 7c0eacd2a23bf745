// Package presence turns raw LAN sightings into peer registry updates and
// decides which side of a newly discovered pair initiates the handshake.
package presence

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lansync/lansyncd/internal/control"
	"github.com/lansync/lansyncd/internal/discovery"
	"github.com/lansync/lansyncd/internal/peerid"
	"github.com/lansync/lansyncd/internal/registry"
	"github.com/lansync/lansyncd/internal/transport"
)

// sightingTTL is how long a peer may go unseen before Service declares it
// disconnected. sweepInterval is how often that check runs.
const (
	sightingTTL   = 30 * time.Second
	sweepInterval = 10 * time.Second
)

// Service consumes sightings from a discovery.Adapter, keeps the peer
// registry in sync, and enqueues a handshake Syn toward any newly seen
// peer whose id compares greater than the local id — the lexicographically
// smaller side always initiates, so exactly one side ever sends the first
// Syn.
type Service struct {
	localID  peerid.ID
	hostname string
	adapter  discovery.Adapter
	sender   *transport.Sender
	registry *registry.Registry
	logger   *slog.Logger

	syncDirs func() []string
	events   *control.Broadcaster

	mu       sync.Mutex
	lastSeen map[uuid.UUID]time.Time
}

// New constructs a Service. syncDirs is called each time this instance
// advertises itself, so a live sync-directory set is reflected in mDNS
// without restarting the service. events may be nil, in which case
// connect/disconnect occurrences are simply not published anywhere.
func New(localID peerid.ID, hostname string, adapter discovery.Adapter, sender *transport.Sender, reg *registry.Registry, syncDirs func() []string, events *control.Broadcaster, logger *slog.Logger) *Service {
	return &Service{
		localID:  localID,
		hostname: hostname,
		adapter:  adapter,
		sender:   sender,
		registry: reg,
		syncDirs: syncDirs,
		events:   events,
		logger:   logger,
		lastSeen: make(map[uuid.UUID]time.Time),
	}
}

// Run advertises this instance and processes sightings until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context, advertiseAddr netip.AddrPort) error {
	go func() {
		self := discovery.Sighting{
			PeerID:   s.localID.UUID(),
			Hostname: s.hostname,
			Addr:     advertiseAddr,
			SyncDirs: s.syncDirs(),
		}

		if err := s.adapter.Advertise(ctx, self); err != nil {
			s.logger.Warn("presence: advertise stopped", slog.Any("error", err))
		}
	}()

	sightings, err := s.adapter.Browse(ctx)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sighting, ok := <-sightings:
			if !ok {
				return nil
			}

			s.handleSighting(ctx, sighting)
		case <-ticker.C:
			s.sweep()
		}
	}
}

// handleSighting ignores self-sightings, records the peer's last-seen
// time, inserts or refreshes the registry entry, and — if the local id
// sorts before the peer's — enqueues a handshake Syn. The higher-id side
// stays passive and waits for that Syn, so a freshly discovered pair never
// double-handshakes.
func (s *Service) handleSighting(ctx context.Context, sighting discovery.Sighting) {
	if sighting.PeerID == s.localID.UUID() {
		return
	}

	s.mu.Lock()
	_, known := s.lastSeen[sighting.PeerID]
	s.lastSeen[sighting.PeerID] = time.Now()
	s.mu.Unlock()

	s.registry.Insert(registry.Peer{
		ID:       sighting.PeerID,
		Addr:     sighting.Addr,
		Hostname: sighting.Hostname,
		LastSeen: time.Now(),
		SyncDirs: stringSetOf(sighting.SyncDirs),
	})

	if known {
		return
	}

	s.publish(control.EventPeerConnected, sighting.Hostname+" connected")

	peerID := peerid.FromUUID(sighting.PeerID)
	if s.localID.Less(peerID) {
		s.sender.EnqueueHandshake(sighting.Addr, true)
	}
}

func (s *Service) publish(kind control.EventKind, detail string) {
	if s.events == nil {
		return
	}

	s.events.Publish(control.Event{Kind: kind, Detail: detail, Timestamp: time.Now()})
}

// sweep declares any peer not seen within sightingTTL disconnected: it is
// dropped from the registry and its last-seen bookkeeping is forgotten, so
// a later re-sighting is treated as fresh again.
func (s *Service) sweep() {
	cutoff := time.Now().Add(-sightingTTL)

	var stale []uuid.UUID

	s.mu.Lock()
	for id, seen := range s.lastSeen {
		if seen.Before(cutoff) {
			stale = append(stale, id)
		}
	}

	for _, id := range stale {
		delete(s.lastSeen, id)
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.registry.RemoveByID(id)
		s.logger.Info("presence: peer disconnected", slog.String("peer_id", id.String()))
		s.publish(control.EventPeerDisconnected, id.String()+" disconnected")
	}
}

func stringSetOf(dirs []string) map[string]struct{} {
	out := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		out[d] = struct{}{}
	}

	return out
}
