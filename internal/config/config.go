// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for lansyncd.
package config

// Config is the top-level configuration structure, decoded from a single
// TOML file under the platform config directory. Only home_path and the
// sync-directory list are required; everything else has a usable default.
type Config struct {
	HomePath   string      `toml:"home_path"`
	Directories []Directory `toml:"directory"`
	Logging    LoggingConfig `toml:"logging"`
	Network    NetworkConfig `toml:"network"`
	Sync       SyncConfig    `toml:"sync"`
}

// Directory names a single sync directory: a top-level child of home_path
// that is replicated with peers who also list it.
type Directory struct {
	Name string `toml:"name"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls the transport listener and the local status/events
// HTTP endpoint. Nothing reads ServiceName, and AdvertiseTTL is only
// checked as a duration on load: discovery always uses
// discovery.ServiceType and presence uses its own fixed sighting TTL.
type NetworkConfig struct {
	ListenPort   int    `toml:"listen_port"`
	ServiceName  string `toml:"service_name"`
	AdvertiseTTL string `toml:"advertise_ttl"`
	ControlAddr  string `toml:"control_addr"`
}

// SyncConfig holds the [sync] section. Its values are validated on load but
// nothing else reads them; the watcher uses a fixed one-second debounce.
type SyncConfig struct {
	DebounceInterval string `toml:"debounce_interval"`
	SafetyScanEvery  string `toml:"safety_scan_every"`
}
