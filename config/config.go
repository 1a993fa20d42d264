// Package config loads lockbox configuration from YAML files and assembles
// ready-to-use stores from it. The core store reads no files and no
// environment variables; this package is the opt-in layer that does both,
// for applications that wire their secret store from deployment config.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete lockbox configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Backend    BackendConfig    `yaml:"backend"`
	Middleware MiddlewareConfig `yaml:"middleware"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// StoreConfig contains facade-level settings.
type StoreConfig struct {
	Namespace string `yaml:"namespace"`
}

// BackendConfig selects and configures the storage adapter. Address, Path,
// Prefix and Settings are interpreted by the chosen adapter; see the
// adapter packages for the settings each one reads.
type BackendConfig struct {
	Type     string            `yaml:"type"` // memory, file, keyring, vault, redis, postgres, s3, secretservice, wincred
	Address  string            `yaml:"address"`
	Path     string            `yaml:"path"`
	Prefix   string            `yaml:"prefix"`
	Settings map[string]string `yaml:"settings"`
}

// MiddlewareConfig toggles the backend wrappers.
type MiddlewareConfig struct {
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// CacheConfig configures the read-through cache wrapper. Caching trades
// freshness against out-of-process writers for speed; it is off by default.
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// RateLimitConfig configures the token bucket wrapper protecting remote
// backends.
type RateLimitConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OpsPerSecond float64 `yaml:"ops_per_second"`
	Burst        int     `yaml:"burst"`
	Wait         bool    `yaml:"wait"` // block until a token is free instead of failing
}

// MetricsConfig toggles Prometheus instrumentation of backend calls and
// change events.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// TracingConfig contains OpenTelemetry tracing settings. When enabled,
// backend calls run inside client spans exported over OTLP.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	ServiceName string  `yaml:"service_name"` // Service name for traces
	SampleRate  float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool    `yaml:"insecure"`     // Use insecure connection (no TLS)
}

// DefaultConfig returns a configuration with sensible defaults: an
// in-memory backend, no middleware, info-level JSON logs.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Namespace: "lockbox",
		},
		Backend: BackendConfig{
			Type: "memory",
		},
		Middleware: MiddlewareConfig{
			Cache: CacheConfig{
				Enabled:         false,
				TTL:             5 * time.Minute,
				CleanupInterval: 10 * time.Minute,
			},
			RateLimit: RateLimitConfig{
				Enabled:      false,
				OpsPerSecond: 50,
				Burst:        10,
				Wait:         true,
			},
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "lockbox",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded, so
// credentials can stay out of the file itself.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Backend.Type == "" {
		return fmt.Errorf("backend.type is required")
	}

	switch c.Backend.Type {
	case "postgres":
		if c.Backend.Address == "" {
			return fmt.Errorf("backend %q: address (DSN) is required", c.Backend.Type)
		}
	case "s3":
		if c.Backend.Path == "" && c.Backend.Settings["bucket"] == "" {
			return fmt.Errorf("backend %q: path or settings.bucket is required", c.Backend.Type)
		}
	}

	if c.Middleware.Cache.TTL < 0 {
		return fmt.Errorf("middleware.cache.ttl cannot be negative")
	}
	if c.Middleware.Cache.CleanupInterval < 0 {
		return fmt.Errorf("middleware.cache.cleanup_interval cannot be negative")
	}
	if c.Middleware.RateLimit.OpsPerSecond < 0 {
		return fmt.Errorf("middleware.rate_limit.ops_per_second cannot be negative")
	}
	if c.Middleware.RateLimit.Burst < 0 {
		return fmt.Errorf("middleware.rate_limit.burst cannot be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %q", c.Logging.Format)
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", c.Tracing.SampleRate)
	}

	return nil
}
