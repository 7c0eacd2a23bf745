// Package store persists entry records in a keyed table, the "Entry Store"
// external collaborator: upsert, get, list-all, delete, nothing more. Callers
// above this package own all conflict and version-vector logic; store only
// knows how to save and retrieve rows.
package store

import "context"

// Row is the on-disk representation of one entry. Kind, Hash, and Tombstone
// mirror entrymgr.Record's fields; VersionJSON is the JSON-encoded version
// vector, kept opaque here so this package has no dependency on entrymgr.
type Row struct {
	Name        string
	Kind        int
	Hash        [32]byte
	Tombstone   bool
	VersionJSON []byte
}

// Store is the durable keyed table of entry rows.
type Store interface {
	// Upsert inserts or replaces the row for row.Name.
	Upsert(ctx context.Context, row Row) error
	// Get returns the row for name. found is false if no row exists.
	Get(ctx context.Context, name string) (row Row, found bool, err error)
	// ListAll returns every row currently stored.
	ListAll(ctx context.Context) ([]Row, error)
	// Delete removes the row for name, if present.
	Delete(ctx context.Context, name string) error
	// Close releases any resources held by the store.
	Close() error
}
