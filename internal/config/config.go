// Package config provides TOML configuration file loading and parsing for the
// bridge. The configuration file lives at ~/.voxbridge/config.toml by default,
// but can be overridden with the --config flag. CLI flags always take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by Apply when a field is unset.
const (
	DefaultMinPort        = 7500
	DefaultMaxPort        = 7550
	DefaultIdleTimeoutSec = 60
	DefaultHandoffWaitSec = 30
)

// Config represents the bridge configuration file structure.
// Field names use Go camelCase internally but map to snake_case in TOML
// files via struct tags.
type Config struct {
	// MinPort is the low end of the worker listening port range.
	// Default: 7500
	MinPort int `toml:"min_port"`

	// MaxPort is the high end of the worker listening port range.
	// When every port in the range is taken the allocator keeps scanning
	// upward and the worker switches to tunnel mode. Default: 7550
	MaxPort int `toml:"max_port"`

	// IdleTimeoutSec bounds the wait for each continuation request.
	// When it expires the conversation is considered abandoned and the
	// worker exits. Default: 60
	IdleTimeoutSec int `toml:"idle_timeout_sec"`

	// HandoffWaitSec bounds the invoker's wait for the worker's endpoint
	// URL. The original platform waited forever here; a crashed worker
	// would then hang the front end, so we bound it. Default: 30
	HandoffWaitSec int `toml:"handoff_wait_sec"`

	// WorkerLog is the path for detached worker log output.
	// Default: ~/.voxbridge/worker.log
	WorkerLog string `toml:"worker_log"`

	// CallDB is the path to the SQLite database for call records.
	// Empty disables call recording. Default: ~/.voxbridge/calls.db
	CallDB string `toml:"call_db"`

	// RunDir holds per-conversation monitor sockets.
	// Default: ~/.voxbridge/run
	RunDir string `toml:"run_dir"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// Host overrides the hostname placed in direct-mode endpoint URLs.
	// If empty the CGI SERVER_NAME (or os.Hostname) is used.
	Host string `toml:"host"`
}

// DefaultConfigPath returns the default config file location:
// ~/.voxbridge/config.toml. Returns an error only if the user's home
// directory cannot be determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".voxbridge", "config.toml"), nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts to load from the default location
//     (~/.voxbridge/config.toml). Returns an empty Config without error if
//     the default file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		// No explicit path: try default location, but don't error if missing.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if file doesn't exist.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Apply fills unset fields with defaults. Path defaults that need the home
// directory are left empty when it cannot be determined; callers treat an
// empty CallDB as "recording disabled" and an empty WorkerLog as /dev/null.
func (c *Config) Apply() {
	if c.MinPort <= 0 {
		c.MinPort = DefaultMinPort
	}
	if c.MaxPort <= 0 {
		c.MaxPort = DefaultMaxPort
	}
	if c.IdleTimeoutSec <= 0 {
		c.IdleTimeoutSec = DefaultIdleTimeoutSec
	}
	if c.HandoffWaitSec <= 0 {
		c.HandoffWaitSec = DefaultHandoffWaitSec
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	if c.WorkerLog == "" {
		c.WorkerLog = filepath.Join(home, ".voxbridge", "worker.log")
	}
	if c.CallDB == "" {
		c.CallDB = filepath.Join(home, ".voxbridge", "calls.db")
	}
	if c.RunDir == "" {
		c.RunDir = filepath.Join(home, ".voxbridge", "run")
	}
}

// IdleTimeout returns IdleTimeoutSec as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}

// HandoffWait returns HandoffWaitSec as a duration.
func (c *Config) HandoffWait() time.Duration {
	return time.Duration(c.HandoffWaitSec) * time.Second
}
