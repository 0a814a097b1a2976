// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the CLF
// orchestrator.
//
// Configuration is loaded from a single YAML file specified by:
//   - CLF_CONFIG environment variable, or
//   - --config flag passed to the daemon
//
// There is no discovery and no merging of multiple files. When neither
// is set, the daemon runs on Default(). The one environment override
// honored after loading is CLF_SOCKET for the socket path, so the CLI
// and daemon can agree on a non-default socket without a config file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable pointing at the config
// file.
const EnvConfig = "CLF_CONFIG"

// EnvSocket names the environment variable overriding the socket
// path, honored by both the daemon and the CLI.
const EnvSocket = "CLF_SOCKET"

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the orchestrator daemon configuration.
type Config struct {
	// SocketPath is the Unix socket the daemon listens on.
	// Default: /run/clf/orchestrator.sock
	SocketPath string `yaml:"socket_path"`

	// StorePath is the SQLite database file holding jobs and tokens.
	// Default: /var/lib/clf/queue.db
	StorePath string `yaml:"store_path"`

	// DriverBinary is the provisioning CLI the executors invoke.
	// Default: clawlets-driver (found in PATH)
	DriverBinary string `yaml:"driver_binary"`

	// PollInterval is how often the worker loop checks for leasable
	// jobs. Default: 1s
	PollInterval Duration `yaml:"poll_interval"`

	// PruneInterval is how often expired and used bootstrap tokens
	// are garbage collected. Default: 5m
	PruneInterval Duration `yaml:"prune_interval"`

	// BackoffBase and BackoffMax parameterize the retry delay curve.
	// Defaults: 1s and 1m.
	BackoffBase Duration `yaml:"backoff_base"`
	BackoffMax  Duration `yaml:"backoff_max"`

	// LogLevel is one of debug, info, warn, error. Default: info
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration the daemon runs on when no file
// is given.
func Default() *Config {
	return &Config{
		SocketPath:    "/run/clf/orchestrator.sock",
		StorePath:     "/var/lib/clf/queue.db",
		DriverBinary:  "clawlets-driver",
		PollInterval:  Duration(time.Second),
		PruneInterval: Duration(5 * time.Minute),
		BackoffBase:   Duration(time.Second),
		BackoffMax:    Duration(time.Minute),
		LogLevel:      "info",
	}
}

// Load loads configuration from the file named by CLF_CONFIG, or
// Default() when it is unset. CLF_SOCKET, when set, overrides the
// socket path either way.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		cfg := Default()
		cfg.applyEnvironment()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific path, merged over
// Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironment()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvironment applies the CLF_SOCKET override.
func (c *Config) applyEnvironment() {
	if socket := os.Getenv(EnvSocket); socket != "" {
		c.SocketPath = socket
	}
}

// Validate rejects configurations the daemon cannot run on.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket_path must not be empty")
	}
	if c.StorePath == "" {
		return fmt.Errorf("store_path must not be empty")
	}
	if c.DriverBinary == "" {
		return fmt.Errorf("driver_binary must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.PruneInterval <= 0 {
		return fmt.Errorf("prune_interval must be positive")
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff_base must be positive")
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("backoff_max must be >= backoff_base")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}
