// Package entrymgr is the single point of authority for entry state: it
// reconciles the filesystem against the entry store at startup, resolves
// conflicts deterministically, and produces the handshake payloads and
// transfer plans the transport layer acts on. Transport and the watcher
// pipeline only ever call into a *Manager; neither touches the entry store
// directly.
package entrymgr

import (
	"github.com/google/uuid"

	"github.com/lansync/lansyncd/internal/fsutil"
	"github.com/lansync/lansyncd/internal/version"
)

// Kind distinguishes a file entry from a directory entry.
type Kind uint8

const (
	// KindFile is a regular file entry.
	KindFile Kind = iota
	// KindDirectory is a directory entry.
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}

	return "file"
}

// Record is the replicated unit: one file or directory entry, identified by
// its sync-directory-relative name.
type Record struct {
	Name      string
	Kind      Kind
	Hash      fsutil.Hash
	Tombstone bool
	Version   version.Vector
}

// IsTombstone reports whether r represents a deletion, for either a file or
// a directory record. A fixed-width Hash has no value that unambiguously
// means "absent" as opposed to "zero content" — a live directory and a
// tombstoned one both carry the zero hash — so deletion is tracked by this
// explicit flag instead, the same way the original Rust implementation
// distinguishes `hash: None` from `hash: Some(REMOVED_HASH)`.
func (r Record) IsTombstone() bool {
	return r.Tombstone
}

// Clone returns a deep copy of r, safe to mutate independently.
func (r Record) Clone() Record {
	return Record{Name: r.Name, Kind: r.Kind, Hash: r.Hash, Tombstone: r.Tombstone, Version: version.Clone(r.Version)}
}

// SyncDirectory is a named root directly under the home directory.
type SyncDirectory struct {
	Name string
}

// HandshakePayload is the full inventory exchanged on Syn/Ack.
type HandshakePayload struct {
	Hostname      string          `json:"hostname"`
	InstanceID    uuid.UUID       `json:"instance_id"`
	SyncDirs      []SyncDirectory `json:"sync_directories"`
	Entries       map[string]Record `json:"entries"`
}
