package transport

import (
	"sync"

	"github.com/google/uuid"
)

// HandshakeState is a single peer's position in the handshake state
// machine: Idle -> SentSyn -> Synced on the active side, Idle -> Acked ->
// Synced on the passive side. A duplicate Syn resets Synced back to Acked
// so a peer that restarted mid-session re-establishes cleanly.
type HandshakeState int

const (
	// Idle means no handshake has been attempted with this peer yet.
	Idle HandshakeState = iota
	// SentSyn means the local side sent a Syn and is waiting for an Ack.
	SentSyn
	// Acked means the local side received a Syn and sent an Ack.
	Acked
	// Synced means the handshake completed; normal traffic may flow.
	Synced
)

func (s HandshakeState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SentSyn:
		return "SentSyn"
	case Acked:
		return "Acked"
	case Synced:
		return "Synced"
	default:
		return "Unknown"
	}
}

// handshakeTracker holds the handshake state of every peer the transport
// layer currently knows about.
type handshakeTracker struct {
	mu     sync.Mutex
	states map[uuid.UUID]HandshakeState
}

func newHandshakeTracker() *handshakeTracker {
	return &handshakeTracker{states: make(map[uuid.UUID]HandshakeState)}
}

// State returns peer's current handshake state, Idle if unknown.
func (t *handshakeTracker) State(peer uuid.UUID) HandshakeState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.states[peer]
}

// OnSentSyn records that the local side initiated a handshake with peer.
func (t *handshakeTracker) OnSentSyn(peer uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states[peer] = SentSyn
}

// OnReceivedAck advances peer from SentSyn to Synced.
func (t *handshakeTracker) OnReceivedAck(peer uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states[peer] = Synced
}

// OnReceivedSyn records that the local side must send an Ack to peer. It
// reports true when this is a state change worth acting on: a fresh
// handshake (from Idle) or a reset (from Synced, recovering from a peer
// restart). A repeated Syn while already Acked and not yet Synced is not
// reported as fresh, since the Ack is presumably already in flight.
func (t *handshakeTracker) OnReceivedSyn(peer uuid.UUID) (fresh bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.states[peer]
	t.states[peer] = Acked

	return prev == Idle || prev == Synced
}

// OnHandshakeComplete advances peer from Acked to Synced once the passive
// side has requested its missing entries.
func (t *handshakeTracker) OnHandshakeComplete(peer uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.states[peer] = Synced
}

// Forget removes peer's handshake state, used when the peer is evicted
// from the registry.
func (t *handshakeTracker) Forget(peer uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.states, peer)
}
