package watcher

import (
	"path/filepath"
	"strings"

	"github.com/lansync/lansyncd/internal/fsutil"
	"github.com/lansync/lansyncd/internal/ignore"
	"github.com/lansync/lansyncd/internal/pathmodel"
)

// Classification is the outcome of matching an absolute filesystem path
// against the configured sync directories and the ignore registry.
type Classification int

const (
	// Ignored means the path should never be synced: outside every sync
	// directory, excluded by a .gitignore, or operating-system/editor noise.
	Ignored Classification = iota
	// SyncDirectoryRoot means the path is exactly a configured sync
	// directory's root.
	SyncDirectoryRoot
	// ValidEntry means the path is strictly inside a configured sync
	// directory and not excluded.
	ValidEntry
)

// classify determines what kind of path absPath is relative to homePath,
// given the current sync directory set and ignore registry. key is the
// sync-directory-relative entry name ("dirname/rel/path"), meaningful only
// when the classification is ValidEntry or SyncDirectoryRoot.
func classify(homePath, absPath string, syncDirs map[string]struct{}, ignores *ignore.Registry, isDir bool) (class Classification, key string) {
	rel, err := filepath.Rel(homePath, absPath)
	if err != nil {
		return Ignored, ""
	}

	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return Ignored, ""
	}

	parts := strings.SplitN(rel, "/", 2)
	dirName := parts[0]

	if _, ok := syncDirs[dirName]; !ok {
		return Ignored, ""
	}

	if len(parts) == 1 {
		return SyncDirectoryRoot, pathmodel.Normalize(rel)
	}

	if fsutil.IsNoise(filepath.Base(absPath)) {
		return Ignored, ""
	}

	if ignores.IsIgnored(rel, isDir) {
		return Ignored, ""
	}

	return ValidEntry, pathmodel.Normalize(rel)
}
