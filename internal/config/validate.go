package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateHome(cfg)...)
	errs = append(errs, validateDirectories(cfg.Directories)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateSync(&cfg.Sync)...)

	return errors.Join(errs...)
}

func validateHome(cfg *Config) []error {
	if cfg.HomePath == "" {
		return []error{errors.New("home_path: must be set")}
	}

	if !filepath.IsAbs(cfg.HomePath) {
		return []error{fmt.Errorf("home_path: must be absolute, got %q", cfg.HomePath)}
	}

	return nil
}

func validateDirectories(dirs []Directory) []error {
	if len(dirs) == 0 {
		return []error{errors.New("directory: at least one [[directory]] section is required")}
	}

	var errs []error

	seen := make(map[string]bool, len(dirs))

	for _, d := range dirs {
		if d.Name == "" {
			errs = append(errs, errors.New("directory: name must not be empty"))
			continue
		}

		if strings.ContainsAny(d.Name, "/\\") {
			errs = append(errs, fmt.Errorf("directory %q: name must be a single path component", d.Name))
		}

		if d.Name == "." || d.Name == ".." {
			errs = append(errs, fmt.Errorf("directory %q: not a valid directory name", d.Name))
		}

		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("directory %q: listed more than once", d.Name))
		}

		seen[d.Name] = true
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch l.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.log_level: unsupported value %q", l.LogLevel))
	}

	switch l.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.log_format: unsupported value %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if n.ListenPort < 0 || n.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("network.listen_port: out of range: %d", n.ListenPort))
	}

	if n.AdvertiseTTL != "" {
		if _, err := time.ParseDuration(n.AdvertiseTTL); err != nil {
			errs = append(errs, fmt.Errorf("network.advertise_ttl: %w", err))
		}
	}

	if n.ControlAddr != "" {
		if _, _, err := net.SplitHostPort(n.ControlAddr); err != nil {
			errs = append(errs, fmt.Errorf("network.control_addr: %w", err))
		}
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if s.DebounceInterval != "" {
		if _, err := time.ParseDuration(s.DebounceInterval); err != nil {
			errs = append(errs, fmt.Errorf("sync.debounce_interval: %w", err))
		}
	}

	if s.SafetyScanEvery != "" {
		if _, err := time.ParseDuration(s.SafetyScanEvery); err != nil {
			errs = append(errs, fmt.Errorf("sync.safety_scan_every: %w", err))
		}
	}

	return errs
}
