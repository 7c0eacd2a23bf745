// Package pathmodel validates and normalizes the relative paths used to
// identify entries inside a sync directory. ValidateRelative is the
// traversal and separator check; nothing in the daemon calls it, so entry
// names received from peers are used without this check.
package pathmodel

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ValidateRelative checks that rel is safe to resolve against a sync
// directory's root: non-empty, forward-slash separated, free of ".."
// components, and not rooted. It rejects anything that could escape the
// sync directory root (spec's open question on path traversal, resolved
// in favor of strict rejection rather than silent clamping).
func ValidateRelative(rel string) error {
	if rel == "" {
		return fmt.Errorf("relative path is empty")
	}

	if strings.HasPrefix(rel, "/") {
		return fmt.Errorf("relative path %q must not be absolute", rel)
	}

	if strings.Contains(rel, "\\") {
		return fmt.Errorf("relative path %q must use forward slashes", rel)
	}

	clean := path.Clean(rel)
	if clean != rel {
		return fmt.Errorf("relative path %q is not in canonical form (expected %q)", rel, clean)
	}

	for _, part := range strings.Split(rel, "/") {
		switch part {
		case "":
			return fmt.Errorf("relative path %q contains an empty component", rel)
		case ".":
			return fmt.Errorf("relative path %q contains a \".\" component", rel)
		case "..":
			return fmt.Errorf("relative path %q escapes the sync directory root", rel)
		}
	}

	return nil
}

// Join joins a sync directory name with an entry-relative path to produce
// the canonical key used for lookups and wire payloads: "dirname/rel".
func Join(dirName, rel string) string {
	return dirName + "/" + rel
}

// Split separates a canonical "dirname/rel" key back into its sync
// directory name and entry-relative path.
func Split(key string) (dirName, rel string, ok bool) {
	idx := strings.IndexByte(key, '/')
	if idx < 0 {
		return "", "", false
	}

	return key[:idx], key[idx+1:], true
}

// Normalize returns the NFC form of a relative path. macOS stores filenames
// in NFD on most filesystems while Linux and Windows use NFC, so the same
// file's name can decompose differently depending on which peer saw it
// first; normalizing before it becomes a wire key or store key keeps both
// sides converging on the same entry instead of minting a duplicate.
// Filesystem I/O still uses the OS-reported name — only the key normalizes.
func Normalize(rel string) string {
	return norm.NFC.String(rel)
}

// Stem returns the filename without its trailing extension, and the
// extension (including the leading dot, or empty if there is none). No
// code in this module calls it; conflict-artifact names are built by
// entrymgr's own stemAndExt.
func Stem(name string) (stem, ext string) {
	base := path.Base(name)

	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 {
		return base, ""
	}

	return base[:idx], base[idx:]
}
