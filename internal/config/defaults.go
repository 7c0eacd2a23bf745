package config

// Default values applied when a config file omits a key, or when no config
// file exists at all (LoadOrDefault). home_path and directory have no
// sane default — a zero-config daemon has nothing to sync — so Validate
// rejects an empty HomePath/Directories.
const (
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultServiceName      = "_lansync._tcp"
	DefaultAdvertiseTTL     = "30s"
	DefaultControlAddr      = "127.0.0.1:7763"
	DefaultDebounceInterval = "1s"
	DefaultSafetyScanEvery  = "5m"
)

// DefaultConfig returns a Config populated with every default value and an
// empty home path / directory list. Used by LoadOrDefault for the
// zero-config case and as the starting point for Load's TOML decode.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			LogLevel:  DefaultLogLevel,
			LogFormat: DefaultLogFormat,
		},
		Network: NetworkConfig{
			ListenPort:   0,
			ServiceName:  DefaultServiceName,
			AdvertiseTTL: DefaultAdvertiseTTL,
			ControlAddr:  DefaultControlAddr,
		},
		Sync: SyncConfig{
			DebounceInterval: DefaultDebounceInterval,
			SafetyScanEvery:  DefaultSafetyScanEvery,
		},
	}
}
