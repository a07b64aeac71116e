package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Transport-specific defaults are handled by the transport factory
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyClientDefaults(&cfg.Client)
	applyMountDefaults(&cfg.Mount)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyClientDefaults sets client-wide network defaults.
func applyClientDefaults(cfg *ClientConfig) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
}

// applyMountDefaults sets mount and transport defaults.
func applyMountDefaults(cfg *MountConfig) {
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = "tcp"
	}

	// Initialize maps if nil
	if cfg.Transport.TCP == nil {
		cfg.Transport.TCP = make(map[string]any)
	}

	// DFS defaults to false (server capability unknown)
	// NoDFS defaults to false (referral resolution allowed when supported)
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false

	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		Client:  ClientConfig{},
		Mount: MountConfig{
			Address: "localhost:445",
			Share:   `\\localhost\share`,
			Transport: TransportConfig{
				TCP: make(map[string]any),
			},
		},
		Metrics: MetricsConfig{},
	}

	ApplyDefaults(cfg)
	return cfg
}
