package ignore

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps a directory prefix (the sync-directory-relative path to the
// directory containing a .gitignore file) to the matcher parsed from it.
// IsIgnored walks from the root of the path toward the target's parent,
// consulting every matcher registered along the way and stopping at the
// first hit — mirroring how git itself layers nested .gitignore files.
type Registry struct {
	mu       sync.RWMutex
	matchers map[string]*Matcher
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{matchers: make(map[string]*Matcher)}
}

// Insert parses the .gitignore file at canonicalPath and registers it under
// dirPrefix (the sync-directory-relative directory containing the file),
// replacing whatever matcher was previously registered there.
func (r *Registry) Insert(dirPrefix, canonicalPath string) error {
	domain := splitPrefix(dirPrefix)

	m, err := NewFromFile(canonicalPath, domain)
	if err != nil {
		return fmt.Errorf("ignore: inserting %s: %w", canonicalPath, err)
	}

	r.mu.Lock()
	r.matchers[dirPrefix] = m
	r.mu.Unlock()

	return nil
}

// Remove deregisters the matcher at dirPrefix, if any.
func (r *Registry) Remove(dirPrefix string) {
	r.mu.Lock()
	delete(r.matchers, dirPrefix)
	r.mu.Unlock()
}

// IsIgnored reports whether relative (a sync-directory-relative path, e.g.
// "shared/docs/report.txt") is excluded by any registered .gitignore lying
// between the sync directory root and the entry's parent.
func (r *Registry) IsIgnored(relative string, isDir bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.matchers) == 0 {
		return false
	}

	parts := strings.Split(relative, "/")

	for prefixLen := 0; prefixLen < len(parts); prefixLen++ {
		prefix := strings.Join(parts[:prefixLen], "/")

		m, ok := r.matchers[prefix]
		if !ok {
			continue
		}

		if m.Match(parts, isDir) {
			return true
		}
	}

	return false
}

func splitPrefix(dirPrefix string) []string {
	if dirPrefix == "" {
		return nil
	}

	return strings.Split(dirPrefix, "/")
}
