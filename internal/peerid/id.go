// Package peerid provides type-safe peer identity for the sync protocol.
// Every daemon instance has a single persisted ID, generated once on first
// run and reused across restarts, so that peers recognize the same device
// after a reboot instead of treating it as new.
package peerid

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ID is a peer's persistent identity, a 16-byte UUID. The zero value is
// not a valid peer ID; use New or Load to obtain one.
type ID struct {
	value uuid.UUID
}

// New generates a fresh random ID.
func New() ID {
	return ID{value: uuid.New()}
}

// Parse parses a canonical UUID string into an ID.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return ID{}, fmt.Errorf("parsing peer id %q: %w", s, err)
	}

	return ID{value: u}, nil
}

// FromUUID wraps an existing uuid.UUID as an ID.
func FromUUID(u uuid.UUID) ID {
	return ID{value: u}
}

// UUID returns the underlying uuid.UUID, for use as a version-vector key
// or wire-frame header.
func (id ID) UUID() uuid.UUID {
	return id.value
}

// FromBytes builds an ID from its 16-byte wire representation.
func FromBytes(b []byte) (ID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return ID{}, fmt.Errorf("parsing peer id bytes: %w", err)
	}

	return ID{value: u}, nil
}

// IsZero reports whether id is the unset zero value.
func (id ID) IsZero() bool {
	return id.value == uuid.Nil
}

// Bytes returns the 16-byte wire representation.
func (id ID) Bytes() []byte {
	b := id.value
	return b[:]
}

// String returns the canonical UUID string form.
func (id ID) String() string {
	return id.value.String()
}

// Less reports whether id sorts before other. Used for the local_id < peer_id
// tie-break that decides which side of a newly discovered pair initiates the
// handshake.
func (id ID) Less(other ID) bool {
	return strings.Compare(id.value.String(), other.value.String()) < 0
}

// Equal reports whether id and other are the same peer.
func (id ID) Equal(other ID) bool {
	return id.value == other.value
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*id = parsed

	return nil
}

// Scan implements sql.Scanner.
func (id *ID) Scan(src any) error {
	if src == nil {
		*id = ID{}
		return nil
	}

	switch v := src.(type) {
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}

		*id = parsed

		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}

		*id = parsed

		return nil
	default:
		return fmt.Errorf("peerid.ID.Scan: unsupported type %T", src)
	}
}

// Value implements driver.Valuer.
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value.String(), nil
}

// deviceIDFilePermissions matches the PID/config file convention.
const deviceIDFilePermissions = 0o644

// deviceIDDirPermissions matches the standard directory permissions.
const deviceIDDirPermissions = 0o755

// LoadOrCreate reads the persisted device ID from path, generating and
// saving a new one if the file does not exist. This is the daemon's stable
// identity across restarts.
func LoadOrCreate(path string) (ID, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return Parse(string(data))
	}

	if !os.IsNotExist(err) {
		return ID{}, fmt.Errorf("reading device id file %s: %w", path, err)
	}

	id := New()
	if err := save(path, id); err != nil {
		return ID{}, err
	}

	return id, nil
}

func save(path string, id ID) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, deviceIDDirPermissions); err != nil {
		return fmt.Errorf("creating device id directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(id.String()+"\n"), deviceIDFilePermissions); err != nil {
		return fmt.Errorf("writing device id file %s: %w", path, err)
	}

	return nil
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = ID{}
	_ encoding.TextUnmarshaler = (*ID)(nil)
	_ fmt.Stringer             = ID{}
	_ driver.Valuer            = ID{}
	_ sql.Scanner              = (*ID)(nil)
)
