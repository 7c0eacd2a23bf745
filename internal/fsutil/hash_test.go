package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTombstoneHash_IsZeroValue(t *testing.T) {
	var zero Hash
	assert.True(t, zero.IsTombstone())
	assert.True(t, TombstoneHash.IsTombstone())
}

func TestHashFile_DeterministicForSameContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	h1, err := HashFile(path)
	require.NoError(t, err)

	h2, err := HashFile(path)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.False(t, h1.IsTombstone())
}

func TestHashFile_DiffersForDifferentContent(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(pathA, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("world"), 0o644))

	hA, err := HashFile(pathA)
	require.NoError(t, err)

	hB, err := HashFile(pathB)
	require.NoError(t, err)

	assert.NotEqual(t, hA, hB)
}

func TestHashFile_MissingFile(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestHash_TextRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	h, err := HashFile(path)
	require.NoError(t, err)

	text, err := h.MarshalText()
	require.NoError(t, err)

	var roundTripped Hash
	require.NoError(t, roundTripped.UnmarshalText(text))
	assert.Equal(t, h, roundTripped)
}

func TestIsNoise(t *testing.T) {
	noisy := []string{".DS_Store", "Thumbs.db", "~$report.docx", ".#lockfile", "foo.swp", "bar.tmp", "baz~", "download.crdownload"}
	for _, name := range noisy {
		assert.Truef(t, IsNoise(name), "expected %q to be noise", name)
	}

	clean := []string{"report.docx", "notes.txt", "archive.tar.gz", "README"}
	for _, name := range clean {
		assert.Falsef(t, IsNoise(name), "expected %q to not be noise", name)
	}
}
