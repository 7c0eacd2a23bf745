package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// configFilePermissions matches the PID/device-id file convention: owner
// read-write, group/other read-only.
const configFilePermissions = 0o644

// configDirPermissions matches the standard directory permissions.
const configDirPermissions = 0o755

// Write serializes cfg as TOML and writes it to path, creating the parent
// directory if needed. Used by the "init" subcommand to seed a new config
// file from a Config built out of CLI flags.
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	var buf bytes.Buffer

	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), configFilePermissions); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}

	return nil
}
