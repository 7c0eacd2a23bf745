package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
home_path = "/home/alice/Sync"

[[directory]]
name = "shared"

[[directory]]
name = "photos"
`)

	cfg, err := Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "/home/alice/Sync", cfg.HomePath)
	assert.Len(t, cfg.Directories, 2)
	assert.Equal(t, "shared", cfg.Directories[0].Name)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.LogLevel)
}

func TestLoad_RejectsUnknownKey(t *testing.T) {
	path := writeTempConfig(t, `
home_path = "/home/alice/Sync"
homepath_typo = "oops"

[[directory]]
name = "shared"
`)

	_, err := Load(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
}

func TestLoad_RejectsMissingHomePath(t *testing.T) {
	path := writeTempConfig(t, `
[[directory]]
name = "shared"
`)

	_, err := Load(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "home_path")
}

func TestLoad_RejectsNoDirectories(t *testing.T) {
	path := writeTempConfig(t, `home_path = "/home/alice/Sync"`)

	_, err := Load(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nope.toml")

	_, err := LoadOrDefault(path, discardLogger())
	require.ErrorIs(t, err, ErrNoConfig)
}

func TestWrite_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg := DefaultConfig()
	cfg.HomePath = "/home/bob/Sync"
	cfg.Directories = []Directory{{Name: "shared"}}

	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, cfg.HomePath, loaded.HomePath)
	assert.Equal(t, cfg.Directories, loaded.Directories)
}
