package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MatchesBasicPattern(t *testing.T) {
	m := New([]string{"*.log", "build/"})

	assert.True(t, m.Match([]string{"debug.log"}, false))
	assert.True(t, m.Match([]string{"build"}, true))
	assert.False(t, m.Match([]string{"build"}, false))
	assert.False(t, m.Match([]string{"main.go"}, false))
}

func TestNew_SkipsCommentsAndBlankLines(t *testing.T) {
	m := New([]string{"# comment", "", "*.tmp"})

	assert.True(t, m.Match([]string{"scratch.tmp"}, false))
	assert.False(t, m.Match([]string{"# comment"}, false))
}

func TestNew_NegationReincludes(t *testing.T) {
	m := New([]string{"*.log", "!important.log"})

	assert.True(t, m.Match([]string{"debug.log"}, false))
	assert.False(t, m.Match([]string{"important.log"}, false))
}

func TestNilMatcher_NeverExcludes(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Match([]string{"anything"}, false))
}

func TestNewFromFile_ReadsPatternsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("*.bak\nnode_modules/\n"), 0o644))

	m, err := NewFromFile(path, nil)
	require.NoError(t, err)

	assert.True(t, m.Match([]string{"data.bak"}, false))
	assert.True(t, m.Match([]string{"node_modules"}, true))
}

func TestNewFromFile_MissingFile(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)
}
