// Package fsutil provides filesystem helpers shared by the watcher, entry
// manager, and transport packages: content hashing, the tombstone sentinel
// hash, and detection of editor/OS noise files that should never enter the
// sync set.
package fsutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// HashSize is the width of every content hash, including the tombstone
// sentinel. SHA-256 is mandated by the wire format regardless of what a
// future content-addressing scheme might otherwise prefer.
const HashSize = sha256.Size

// Hash identifies an entry's content. The all-zero value is reserved as the
// tombstone sentinel (see TombstoneHash) and is never a real file's digest.
type Hash [HashSize]byte

// TombstoneHash is the sentinel value marking a deleted entry. A record
// carrying this hash is a tombstone: it still participates in version-vector
// comparison but has no content.
var TombstoneHash Hash

// IsTombstone reports whether h is the deletion sentinel.
func (h Hash) IsTombstone() bool {
	return h == TombstoneHash
}

// String returns the hex encoding of h.
func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// MarshalText implements encoding.TextMarshaler, used by the JSON frame
// payloads so a hash travels the wire as a hex string instead of a raw
// byte array.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("decoding hash %q: %w", text, err)
	}

	if len(decoded) != HashSize {
		return fmt.Errorf("hash %q has length %d, want %d", text, len(decoded), HashSize)
	}

	copy(h[:], decoded)

	return nil
}

// HashFile computes the SHA-256 digest of the file at path.
func HashFile(path string) (Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return Hash{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Hash{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var out Hash
	copy(out[:], h.Sum(nil))

	return out, nil
}

// noisePrefixes and noiseNames list filesystem artifacts produced by editors
// and operating systems rather than by the user, which the watcher should
// never classify as a sync-worthy entry.
var (
	noisePrefixes = []string{".#", "~$"}
	noiseNames    = map[string]struct{}{
		".DS_Store":    {},
		"Thumbs.db":    {},
		".directory":   {},
		"desktop.ini":  {},
		".~lock.":      {},
		".Spotlight-V100": {},
		".Trashes":     {},
	}
	noiseSuffixes = []string{"~", ".swp", ".swx", ".tmp", ".part", ".crdownload"}
)

// IsNoise reports whether name (a base filename, not a full path) is a
// transient artifact that should be ignored rather than synchronized.
func IsNoise(name string) bool {
	base := filepath.Base(name)

	if _, ok := noiseNames[base]; ok {
		return true
	}

	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}

	for _, suffix := range noiseSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}

	return false
}
