package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete DittoSMB client configuration.
//
// This structure captures all configurable aspects of the client including:
//   - Logging configuration
//   - Client-wide network timeouts
//   - Mount definition (server address, share, DFS behavior)
//   - Transport selection and transport-specific configuration
//   - Metrics exposure
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOSMB_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Transport Configuration Pattern:
// The Mount.Transport.Type field selects the transport implementation and
// only the matching type-specific section is used. Transport-specific
// sections are decoded by the factory in factories.go.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Client contains client-wide network settings
	Client ClientConfig `mapstructure:"client"`

	// Mount defines the share this client operates on
	Mount MountConfig `mapstructure:"mount" validate:"required"`

	// Metrics controls Prometheus metrics exposure
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ClientConfig contains client-wide network settings.
type ClientConfig struct {
	// DialTimeout bounds the initial TCP connection attempt
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"required,gt=0"`

	// ReadTimeout bounds each response read on the wire
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"required,gt=0"`

	// WriteTimeout bounds each request write on the wire
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required,gt=0"`
}

// MountConfig defines the share the client operates on.
type MountConfig struct {
	// Address is the server endpoint in host:port form (direct TCP, port 445)
	Address string `mapstructure:"address" validate:"required,hostname_port"`

	// Share is the UNC name of the share (e.g. "\\\\server\\data")
	Share string `mapstructure:"share" validate:"required"`

	// DFS records that the server advertised DFS capability for this share
	DFS bool `mapstructure:"dfs"`

	// NoDFS administratively disables DFS referral resolution even when
	// the server supports it
	NoDFS bool `mapstructure:"no_dfs"`

	// Transport selects the transport implementation and its configuration
	Transport TransportConfig `mapstructure:"transport"`
}

// TransportConfig specifies transport configuration.
//
// The Type field determines which transport implementation is used.
// Only the corresponding type-specific configuration section is used.
type TransportConfig struct {
	// Type specifies which transport implementation to use
	// Valid values: tcp
	Type string `mapstructure:"type" validate:"required,oneof=tcp"`

	// TCP contains direct-TCP-specific configuration
	// Only used when Type = "tcp"
	TCP map[string]any `mapstructure:"tcp"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	// Enabled turns the metrics HTTP endpoint on
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port the metrics endpoint listens on
	Port int `mapstructure:"port" validate:"omitempty,gte=1,lte=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOSMB_*)
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

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use DITTOSMB_ prefix and underscores
	// Example: DITTOSMB_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOSMB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/dittosmb/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml") // Primary format
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		// Other errors are problems
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittosmb")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "dittosmb")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
