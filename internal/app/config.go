package app

import (
	"io"
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	// Configuration sources
	ConfigPath string // single config file instead of the layered lookup
	EnvFile    string // credential file override

	// Run settings
	NoTunnel    bool
	MetricsAddr string

	// Debug settings
	Debug     bool
	LogFormat string

	// Stop settings
	RemoveImages bool
	Yes          bool

	// Output receives tables and summaries. Defaults to stdout.
	Output io.Writer
}

// NewConfig creates a new application configuration, filling unset fields
// from STACKCTL_CONFIG and STACKCTL_DEBUG.
func NewConfig(configPath string, debug bool) *Config {
	if configPath == "" {
		configPath = os.Getenv("STACKCTL_CONFIG")
	}
	if !debug {
		debug, _ = strconv.ParseBool(os.Getenv("STACKCTL_DEBUG"))
	}
	return &Config{
		ConfigPath: configPath,
		Debug:      debug,
		Output:     os.Stdout,
	}
}
