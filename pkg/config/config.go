package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete gridinv configuration.
//
// This structure captures all configurable aspects of an inventory session:
//   - Logging configuration
//   - Session defaults (timeouts, agent and owner ids)
//   - Snapshot cache backend selection and configuration (backend-specific)
//   - Outbound message rate limiting
//   - Capability HTTP client settings
//   - Prometheus metrics endpoint
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (GRIDINV_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Cache Configuration Pattern:
// Each cache backend defines its own option set. The Config struct contains
// type-specific sections (e.g., cache.fs, cache.badger) and only the section
// matching the selected type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Session contains per-session defaults
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// Cache specifies the snapshot cache type and type-specific configuration
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Transport throttles outbound inventory messages
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`

	// Capabilities configures the HTTP client used for capability requests
	Capabilities CapabilitiesConfig `mapstructure:"capabilities" yaml:"capabilities"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// SessionConfig contains defaults for an inventory session.
type SessionConfig struct {
	// DefaultTimeout bounds blocking waits that are not given an explicit timeout
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout" validate:"required,gt=0"`

	// FetchTimeout bounds a single folder or item fetch issued by the CLI
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout" validate:"required,gt=0"`

	// AgentID identifies the logged-in agent (optional, may be given on the command line)
	AgentID string `mapstructure:"agent_id" yaml:"agent_id" validate:"omitempty,uuid"`

	// OwnerID overrides the inventory owner; defaults to AgentID
	OwnerID string `mapstructure:"owner_id" yaml:"owner_id" validate:"omitempty,uuid"`
}

// CacheConfig specifies snapshot cache configuration.
//
// The Type field determines which backend is used.
// Only the corresponding type-specific configuration section is used.
type CacheConfig struct {
	// Type specifies which cache backend to use
	// Valid values: fs, memory, badger, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=fs memory badger s3"`

	// FS contains filesystem-specific configuration
	// Only used when Type = "fs"
	FS map[string]any `mapstructure:"fs" yaml:"fs"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// TransportConfig throttles messages sent to the simulator.
type TransportConfig struct {
	// RequestsPerSecond caps outbound messages. 0 disables the limit.
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the number of messages that may be sent back to back
	Burst uint `mapstructure:"burst" yaml:"burst" validate:"required_with=RequestsPerSecond"`
}

// CapabilitiesConfig configures capability HTTP requests.
type CapabilitiesConfig struct {
	// Timeout bounds each HTTP attempt
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"required,gt=0"`

	// MaxRetries is the number of retries for transient failures
	MaxRetries uint64 `mapstructure:"max_retries" yaml:"max_retries" validate:"lte=20"`

	// Backoff is the base delay between retries
	Backoff time.Duration `mapstructure:"backoff" yaml:"backoff" validate:"gte=0"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port serving /metrics
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (GRIDINV_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use GRIDINV_ prefix and underscores
	// Example: GRIDINV_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("GRIDINV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/gridinv/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys lists the scalar keys that may be set from the environment alone.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"session.default_timeout",
	"session.fetch_timeout",
	"session.agent_id",
	"session.owner_id",
	"cache.type",
	"transport.requests_per_second",
	"transport.burst",
	"capabilities.timeout",
	"capabilities.max_retries",
	"capabilities.backoff",
	"metrics.enabled",
	"metrics.port",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		// An explicit path that does not exist is treated the same way
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gridinv")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "gridinv")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
