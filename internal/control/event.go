// Package control is the daemon's thin HTTP status plane: a JSON snapshot
// endpoint and a broadcast channel of peer/directory events that a future
// GUI (out of scope here) could poll. It never touches the entry store or
// the wire protocol directly; it only observes what the other components
// choose to publish.
package control

import "time"

// EventKind identifies what changed.
type EventKind string

const (
	EventPeerConnected      EventKind = "peer_connected"
	EventPeerDisconnected   EventKind = "peer_disconnected"
	EventDirectoryAdded     EventKind = "directory_added"
	EventDirectoryRemoved   EventKind = "directory_removed"
	EventSyncActivity       EventKind = "sync_activity"
)

// Event is one occurrence published to the broadcast channel. Detail is a
// short human-readable description; it is not meant to be parsed.
type Event struct {
	Kind      EventKind `json:"kind"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}
