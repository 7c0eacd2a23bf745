package watcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lansync/lansyncd/internal/ignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_OutsideEverySyncDirectoryIsIgnored(t *testing.T) {
	home := t.TempDir()
	syncDirs := map[string]struct{}{"shared": {}}

	class, _ := classify(home, filepath.Join(home, "other", "file.txt"), syncDirs, ignore.NewRegistry(), false)
	assert.Equal(t, Ignored, class)
}

func TestClassify_SyncDirectoryRootItself(t *testing.T) {
	home := t.TempDir()
	syncDirs := map[string]struct{}{"shared": {}}

	class, key := classify(home, filepath.Join(home, "shared"), syncDirs, ignore.NewRegistry(), true)
	assert.Equal(t, SyncDirectoryRoot, class)
	assert.Equal(t, "shared", key)
}

func TestClassify_ValidEntryInsideSyncDirectory(t *testing.T) {
	home := t.TempDir()
	syncDirs := map[string]struct{}{"shared": {}}

	class, key := classify(home, filepath.Join(home, "shared", "doc.txt"), syncDirs, ignore.NewRegistry(), false)
	assert.Equal(t, ValidEntry, class)
	assert.Equal(t, "shared/doc.txt", key)
}

func TestClassify_NoiseFileIsIgnored(t *testing.T) {
	home := t.TempDir()
	syncDirs := map[string]struct{}{"shared": {}}

	class, _ := classify(home, filepath.Join(home, "shared", ".DS_Store"), syncDirs, ignore.NewRegistry(), false)
	assert.Equal(t, Ignored, class)
}

func TestClassify_GitignoredEntryIsIgnored(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "shared"), 0o755))

	gitignorePath := filepath.Join(home, "shared", ".gitignore")
	require.NoError(t, os.WriteFile(gitignorePath, []byte("*.log\n"), 0o644))

	reg := ignore.NewRegistry()
	require.NoError(t, reg.Insert("shared", gitignorePath))

	syncDirs := map[string]struct{}{"shared": {}}

	class, _ := classify(home, filepath.Join(home, "shared", "debug.log"), syncDirs, reg, false)
	assert.Equal(t, Ignored, class)
}

func TestClassify_ParentOfSyncDirectoryIsIgnored(t *testing.T) {
	home := t.TempDir()
	syncDirs := map[string]struct{}{"shared": {}}

	class, _ := classify(home, home, syncDirs, ignore.NewRegistry(), true)
	assert.Equal(t, Ignored, class)
}
