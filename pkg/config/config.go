package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for a ledgerd or randomd process.
type Config struct {
	// DataDir is the environment directory holding the bbolt database
	// file and any per-environment state. Required by ledgerd; unused by
	// randomd.
	DataDir string `yaml:"dataDir"`

	// DataSocketPath is the unix domain socket path ledgerd listens on
	// when it is not started with inherited file descriptors (see
	// pkg/supervisor).
	DataSocketPath string `yaml:"dataSocketPath"`

	// RandomSocketPath names a socket path for randomd. It is parsed but
	// not used: cmd/randomd does not load this file and listens on its
	// --socket flag.
	RandomSocketPath string `yaml:"randomSocketPath,omitempty"`

	// LogSocketPath names a log sink socket path. It is parsed but not
	// read by cmd/ledgerd, which logs to stdout.
	LogSocketPath string `yaml:"logSocketPath,omitempty"`

	// MetricsAddr, if set, serves Prometheus metrics on this address.
	// ledgerd's --metrics-addr flag overrides it.
	MetricsAddr string `yaml:"metricsAddr,omitempty"`

	LogLevel string `yaml:"logLevel"`
	LogJSON  bool   `yaml:"logJSON"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:        "./ledgerd-data",
		DataSocketPath: "./ledgerd-data/data.sock",
		LogLevel:       "info",
		LogJSON:        false,
	}
}

// Load reads and parses the YAML configuration at path, filling in
// Default's values for any field the file leaves zero.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}
	return cfg, nil
}
