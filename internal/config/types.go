// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// LogLevelDebug enables per-resolution and per-request logging.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default level.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn reports only degraded behavior.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError reports only failures.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidLogLevel is the sentinel error wrapped by InvalidLogLevelError.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// Config is the full tool configuration.
	Config struct {
		Cache   CacheConfig   `mapstructure:"cache"`
		Network NetworkConfig `mapstructure:"network"`
		Log     LogConfig     `mapstructure:"log"`
		Build   BuildConfig   `mapstructure:"build"`
	}

	// CacheConfig controls the artifact cache. An empty Dir means the
	// platform cache directory.
	CacheConfig struct {
		Dir     string `mapstructure:"dir"`
		Enabled bool   `mapstructure:"enabled"`
	}

	// NetworkConfig controls index access during dependency resolution.
	NetworkConfig struct {
		Indexes []string      `mapstructure:"indexes"`
		Timeout time.Duration `mapstructure:"timeout"`
		Retries int           `mapstructure:"retries"`
		Backoff time.Duration `mapstructure:"backoff"`
	}

	// LogConfig controls diagnostic output.
	LogConfig struct {
		Level LogLevel `mapstructure:"level"`
	}

	// BuildConfig controls build-time working directories. An empty
	// StagingDir means a per-build temporary directory.
	BuildConfig struct {
		StagingDir string `mapstructure:"staging_dir"`
	}

	// LogLevel is a diagnostic verbosity level.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not
	// recognized. It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConfigError is returned for constraints the CUE schema cannot
	// express. It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		Field  string
		Reason string
	}
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// Validate returns nil if the LogLevel is one of the recognized levels.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q: must be one of debug, info, warn, error", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// DefaultIndexURL is the package index used when none is configured.
const DefaultIndexURL = "https://pypi.org/simple/"

// DefaultConfig returns the compiled-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{Enabled: true},
		Network: NetworkConfig{
			Indexes: []string{DefaultIndexURL},
			Timeout: 30 * time.Second,
			Retries: 3,
			Backoff: 500 * time.Millisecond,
		},
		Log: LogConfig{Level: LogLevelInfo},
	}
}

// Validate checks the constraints the CUE schema cannot express (values
// arriving via environment variables bypass the schema entirely).
func (c *Config) Validate() error {
	if err := c.Log.Level.Validate(); err != nil {
		return err
	}
	if c.Network.Retries < 1 {
		return &InvalidConfigError{Field: "network.retries", Reason: "must be at least 1"}
	}
	if c.Network.Timeout <= 0 {
		return &InvalidConfigError{Field: "network.timeout", Reason: "must be positive"}
	}
	if c.Network.Backoff < 0 {
		return &InvalidConfigError{Field: "network.backoff", Reason: "must not be negative"}
	}
	if len(c.Network.Indexes) == 0 {
		return &InvalidConfigError{Field: "network.indexes", Reason: "must list at least one index"}
	}
	for i, idx := range c.Network.Indexes {
		if strings.TrimSpace(idx) == "" {
			return &InvalidConfigError{
				Field:  fmt.Sprintf("network.indexes[%d]", i),
				Reason: "must not be empty",
			}
		}
	}
	return nil
}
