package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "LANSYNC_CONFIG"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // LANSYNC_CONFIG: override config file path
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
	}
}
