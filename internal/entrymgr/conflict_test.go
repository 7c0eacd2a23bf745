package entrymgr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lansync/lansyncd/internal/fsutil"
	"github.com/lansync/lansyncd/internal/version"
)

// lesserAndGreater returns two UUIDs where a.String() < b.String(), for
// tests that need to control which side wins the identity tie-break.
func lesserAndGreater(t *testing.T) (lesser, greater uuid.UUID) {
	t.Helper()

	for {
		a, b := uuid.New(), uuid.New()
		if a.String() < b.String() {
			return a, b
		}
		if b.String() < a.String() {
			return b, a
		}
	}
}

func TestConflictDecision_LocalTombstonedPeerLive(t *testing.T) {
	local := &Record{Kind: KindFile, Hash: fsutil.TombstoneHash, Tombstone: true}
	peer := &Record{Kind: KindFile, Hash: fsutil.Hash{1}}

	decision := conflictDecision(local, peer, uuid.New(), uuid.New())
	assert.Equal(t, version.KeepOther, decision)
}

func TestConflictDecision_LocalLivePeerTombstoned(t *testing.T) {
	local := &Record{Kind: KindFile, Hash: fsutil.Hash{1}}
	peer := &Record{Kind: KindFile, Hash: fsutil.TombstoneHash, Tombstone: true}

	decision := conflictDecision(local, peer, uuid.New(), uuid.New())
	assert.Equal(t, version.KeepSelf, decision)
}

func TestConflictDecision_BothTombstoned(t *testing.T) {
	local := &Record{Kind: KindFile, Hash: fsutil.TombstoneHash, Tombstone: true}
	peer := &Record{Kind: KindFile, Hash: fsutil.TombstoneHash, Tombstone: true}

	decision := conflictDecision(local, peer, uuid.New(), uuid.New())
	assert.Equal(t, version.Equal, decision)
}

// Directories tombstone the same way files do: the zero hash is shared by a
// live directory and a removed one, so only the explicit flag distinguishes
// them.
func TestConflictDecision_LocalTombstonedDirectoryPeerLiveDirectory(t *testing.T) {
	local := &Record{Kind: KindDirectory, Tombstone: true}
	peer := &Record{Kind: KindDirectory}

	decision := conflictDecision(local, peer, uuid.New(), uuid.New())
	assert.Equal(t, version.KeepOther, decision)
}

func TestConflictDecision_LocalLiveDirectoryPeerTombstonedDirectory(t *testing.T) {
	local := &Record{Kind: KindDirectory}
	peer := &Record{Kind: KindDirectory, Tombstone: true}

	decision := conflictDecision(local, peer, uuid.New(), uuid.New())
	assert.Equal(t, version.KeepSelf, decision)
}

func TestConflictDecision_BothTombstonedDirectories(t *testing.T) {
	local := &Record{Kind: KindDirectory, Tombstone: true}
	peer := &Record{Kind: KindDirectory, Tombstone: true}

	decision := conflictDecision(local, peer, uuid.New(), uuid.New())
	assert.Equal(t, version.Equal, decision)
}

func TestConflictDecision_BothLiveLocalWinsTieBreak(t *testing.T) {
	lesser, greater := lesserAndGreater(t)
	local := &Record{Kind: KindFile, Hash: fsutil.Hash{1}}
	peer := &Record{Kind: KindFile, Hash: fsutil.Hash{2}}

	decision := conflictDecision(local, peer, lesser, greater)
	assert.Equal(t, version.KeepSelf, decision)
}

func TestConflictDecision_BothLiveLocalDirectoryLoses(t *testing.T) {
	lesser, greater := lesserAndGreater(t)
	local := &Record{Kind: KindDirectory}
	peer := &Record{Kind: KindFile, Hash: fsutil.Hash{2}}

	decision := conflictDecision(local, peer, greater, lesser)
	assert.Equal(t, version.KeepOther, decision)
}

func TestConflictDecision_BothLiveLocalFileLoses(t *testing.T) {
	lesser, greater := lesserAndGreater(t)
	local := &Record{Kind: KindFile, Hash: fsutil.Hash{1}}
	peer := &Record{Kind: KindFile, Hash: fsutil.Hash{2}}

	decision := conflictDecision(local, peer, greater, lesser)
	assert.Equal(t, version.KeepOther, decision)
}

func TestResolveConflict_WritesArtifactWhenLocalFileLoses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("local content"), 0o644))

	lesser, greater := lesserAndGreater(t)
	local := &Record{Name: "shared/report.txt", Kind: KindFile, Hash: fsutil.Hash{1}}
	peer := &Record{Name: "shared/report.txt", Kind: KindFile, Hash: fsutil.Hash{2}}

	decision, err := resolveConflict(local, peer, greater, lesser, path)
	require.NoError(t, err)
	assert.Equal(t, version.KeepOther, decision)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var artifact string
	for _, e := range entries {
		if e.Name() != "report.txt" {
			artifact = e.Name()
		}
	}

	require.NotEmpty(t, artifact, "expected a conflict artifact to be written")
	assert.Contains(t, artifact, "report_CONFLICT_")
	assert.Contains(t, artifact, greater.String())

	content, err := os.ReadFile(filepath.Join(dir, artifact))
	require.NoError(t, err)
	assert.Equal(t, "local content", string(content))
}

func TestResolveConflict_NoArtifactWhenLocalWinsTieBreak(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("local content"), 0o644))

	lesser, greater := lesserAndGreater(t)
	local := &Record{Name: "shared/report.txt", Kind: KindFile, Hash: fsutil.Hash{1}}
	peer := &Record{Name: "shared/report.txt", Kind: KindFile, Hash: fsutil.Hash{2}}

	decision, err := resolveConflict(local, peer, lesser, greater, path)
	require.NoError(t, err)
	assert.Equal(t, version.KeepSelf, decision)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no conflict artifact expected")
}

func TestResolveConflict_NoArtifactWhenLocalIsDirectory(t *testing.T) {
	dir := t.TempDir()

	lesser, greater := lesserAndGreater(t)
	local := &Record{Name: "shared/sub", Kind: KindDirectory}
	peer := &Record{Name: "shared/sub", Kind: KindDirectory}

	decision, err := resolveConflict(local, peer, greater, lesser, filepath.Join(dir, "sub"))
	require.NoError(t, err)
	assert.Equal(t, version.KeepOther, decision)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
