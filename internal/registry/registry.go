// Package registry is the in-memory directory of known peers: a thread-safe
// map from peer identity to the peer's last-known address and advertised
// sync-directory set.
package registry

import (
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Peer is one entry in the registry.
type Peer struct {
	ID            uuid.UUID
	Addr          netip.AddrPort
	Hostname      string
	LastSeen      time.Time
	SyncDirs      map[string]struct{}
}

// HasSyncDir reports whether the peer advertises dirName among its sync
// directories.
func (p Peer) HasSyncDir(dirName string) bool {
	_, ok := p.SyncDirs[dirName]
	return ok
}

// Registry is the thread-safe peer directory. All mutations are short
// critical sections; no I/O is ever performed while the lock is held.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]Peer
	logger *slog.Logger
}

// New returns an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{byID: make(map[uuid.UUID]Peer), logger: logger}
}

// Insert upserts peer, logging on an absent-to-present transition.
func (r *Registry) Insert(peer Peer) {
	r.mu.Lock()
	_, existed := r.byID[peer.ID]
	r.byID[peer.ID] = peer
	r.mu.Unlock()

	if !existed {
		r.logger.Info("peer registered", slog.String("peer_id", peer.ID.String()), slog.String("addr", peer.Addr.String()))
	}
}

// RemoveByID removes the peer with the given id, logging if it was present.
func (r *Registry) RemoveByID(id uuid.UUID) {
	r.mu.Lock()
	_, existed := r.byID[id]
	delete(r.byID, id)
	r.mu.Unlock()

	if existed {
		r.logger.Info("peer removed", slog.String("peer_id", id.String()))
	}
}

// RemoveByAddr removes whichever peer (if any) is registered at addr.
func (r *Registry) RemoveByAddr(addr netip.AddrPort) {
	r.mu.Lock()

	var removed uuid.UUID

	found := false

	for id, peer := range r.byID {
		if peer.Addr == addr {
			delete(r.byID, id)
			removed = id
			found = true

			break
		}
	}

	r.mu.Unlock()

	if found {
		r.logger.Info("peer removed", slog.String("peer_id", removed.String()), slog.String("addr", addr.String()))
	}
}

// ExistsByAddr reports whether a peer is currently registered at addr. Used
// by the sender's retry logic to distinguish "peer disconnected" from
// "transient failure".
func (r *Registry) ExistsByAddr(addr netip.AddrPort) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, peer := range r.byID {
		if peer.Addr == addr {
			return true
		}
	}

	return false
}

// Get returns the peer with the given id.
func (r *Registry) Get(id uuid.UUID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.byID[id]

	return peer, ok
}

// PeersForMetadataOf returns the addresses of every peer whose sync-dir set
// includes dirName, the first path component of an entry whose metadata is
// about to be broadcast.
func (r *Registry) PeersForMetadataOf(dirName string) []netip.AddrPort {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []netip.AddrPort

	for _, peer := range r.byID {
		if peer.HasSyncDir(dirName) {
			out = append(out, peer.Addr)
		}
	}

	return out
}

// List returns a snapshot of all registered peers, for control-plane queries.
func (r *Registry) List() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.byID))
	for _, peer := range r.byID {
		out = append(out, peer)
	}

	return out
}
