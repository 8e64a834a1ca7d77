package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Config represents the server configuration
type Config struct {
	// Server settings
	ServerPort     int    `json:"server_port" yaml:"server_port"`
	BindAddr       string `json:"bind_addr" yaml:"bind_addr"`
	HTTPPort       int    `json:"http_port" yaml:"http_port"` // 0 disables the admin endpoint
	MaxConnections int    `json:"max_connections" yaml:"max_connections"`

	// Persistence settings
	SnapshotPath     string        `json:"snapshot_path" yaml:"snapshot_path"` // empty disables persistence
	SnapshotFormat   string        `json:"snapshot_format" yaml:"snapshot_format"`
	SnapshotInterval time.Duration `json:"snapshot_interval" yaml:"snapshot_interval"`

	// Expiry settings
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`

	// Logging settings
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFile   string `json:"log_file" yaml:"log_file"`
	LogFormat string `json:"log_format" yaml:"log_format"` // "json", "text"
}

var (
	validLevels     = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
	validSnapshots  = []string{"json", "binary", "bolt"}
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		ServerPort:     6379,
		BindAddr:       "0.0.0.0",
		HTTPPort:       0,
		MaxConnections: 0,

		SnapshotPath:     "",
		SnapshotFormat:   "json",
		SnapshotInterval: 60 * time.Second,

		SweepInterval: time.Second,

		LogLevel:  "info",
		LogFile:   "",
		LogFormat: "text",
	}
}

// LoadFromFile loads configuration from a JSON or YAML file on top of the
// defaults. An empty filename yields the defaults.
func LoadFromFile(filename string) (*Config, error) {
	config := DefaultConfig()

	if filename == "" {
		return config, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, config); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(content, config); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	}

	return config, nil
}

// LoadFromEnv overrides config with MINIKV_* environment variables.
// Malformed numbers and durations are reported, not ignored.
func LoadFromEnv(config *Config) error {
	ints := map[string]*int{
		"MINIKV_PORT":            &config.ServerPort,
		"MINIKV_HTTP_PORT":       &config.HTTPPort,
		"MINIKV_MAX_CONNECTIONS": &config.MaxConnections,
	}
	for name, target := range ints {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		*target = n
	}

	durations := map[string]*time.Duration{
		"MINIKV_SNAPSHOT_INTERVAL": &config.SnapshotInterval,
		"MINIKV_SWEEP_INTERVAL":    &config.SweepInterval,
	}
	for name, target := range durations {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		*target = d
	}

	strs := map[string]*string{
		"MINIKV_BIND_ADDR":       &config.BindAddr,
		"MINIKV_SNAPSHOT_PATH":   &config.SnapshotPath,
		"MINIKV_SNAPSHOT_FORMAT": &config.SnapshotFormat,
		"MINIKV_LOG_LEVEL":       &config.LogLevel,
		"MINIKV_LOG_FILE":        &config.LogFile,
		"MINIKV_LOG_FORMAT":      &config.LogFormat,
	}
	for name, target := range strs {
		if val := os.Getenv(name); val != "" {
			*target = val
		}
	}

	return nil
}

// SaveToFile saves the configuration, as YAML for .yaml/.yml names and
// JSON otherwise.
func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	var (
		content []byte
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		content, err = yaml.Marshal(c)
	default:
		content, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(filename, content, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.ServerPort)
	}

	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.HTTPPort != 0 && c.HTTPPort == c.ServerPort {
		return fmt.Errorf("HTTP port %d collides with server port", c.HTTPPort)
	}

	if c.BindAddr != "" && net.ParseIP(c.BindAddr) == nil && c.BindAddr != "localhost" {
		return fmt.Errorf("invalid bind address: %s", c.BindAddr)
	}

	if c.MaxConnections < 0 {
		return fmt.Errorf("max connections must not be negative")
	}

	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	if c.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot interval must not be negative")
	}

	if !lo.Contains(validSnapshots, c.SnapshotFormat) {
		return fmt.Errorf("invalid snapshot format: %s (valid: %v)", c.SnapshotFormat, validSnapshots)
	}

	if !lo.Contains(validLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.LogLevel, validLevels)
	}

	if !lo.Contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.LogFormat, validLogFormats)
	}

	return nil
}

// GetAddress returns the client listener address
func (c *Config) GetAddress() string {
	return net.JoinHostPort(c.BindAddr, strconv.Itoa(c.ServerPort))
}

// GetHTTPAddress returns the admin HTTP address, or "" when disabled
func (c *Config) GetHTTPAddress() string {
	if c.HTTPPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.BindAddr, strconv.Itoa(c.HTTPPort))
}

// PersistenceEnabled reports whether a snapshot path is configured
func (c *Config) PersistenceEnabled() bool {
	return c.SnapshotPath != ""
}

// String returns a string representation of the config
func (c *Config) String() string {
	content, _ := json.MarshalIndent(c, "", "  ")
	return string(content)
}
