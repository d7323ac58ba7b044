// SPDX-License-Identifier: MPL-2.0

package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	// AppName is the application name.
	AppName = "pybundle"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix is the prefix for environment-variable overrides.
	EnvPrefix = "PYBUNDLE"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the pybundle configuration directory using
// platform-specific conventions: Windows uses %APPDATA%, macOS uses
// ~/Library/Application Support, and Linux/others use $XDG_CONFIG_HOME
// (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfgDir, 0o755)
}

// CreateDefaultConfig creates a default config file if it doesn't exist.
func CreateDefaultConfig() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	if _, err := os.Stat(cfgPath); err == nil {
		return nil // File exists
	}

	defaults := DefaultConfig()
	cueContent := GenerateCUE(defaults)

	if err := os.WriteFile(cfgPath, []byte(cueContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Save writes the current configuration to file.
func Save(cfg *Config) error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)

	cueContent := GenerateCUE(cfg)

	if err := os.WriteFile(cfgPath, []byte(cueContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateCUE generates a CUE representation of the configuration.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// pybundle configuration file\n")
	sb.WriteString("// See https://github.com/pybundle/pybundle for documentation.\n\n")

	sb.WriteString("cache: {\n")
	if cfg.Cache.Dir != "" {
		sb.WriteString(fmt.Sprintf("\tdir: %q\n", cfg.Cache.Dir))
	}
	sb.WriteString(fmt.Sprintf("\tenabled: %v\n", cfg.Cache.Enabled))
	sb.WriteString("}\n")

	sb.WriteString("\nnetwork: {\n")
	if len(cfg.Network.Indexes) > 0 {
		sb.WriteString("\tindexes: [\n")
		for _, idx := range cfg.Network.Indexes {
			sb.WriteString(fmt.Sprintf("\t\t%q,\n", idx))
		}
		sb.WriteString("\t]\n")
	}
	sb.WriteString(fmt.Sprintf("\ttimeout: %q\n", cfg.Network.Timeout.String()))
	sb.WriteString(fmt.Sprintf("\tretries: %d\n", cfg.Network.Retries))
	sb.WriteString(fmt.Sprintf("\tbackoff: %q\n", cfg.Network.Backoff.String()))
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	sb.WriteString(fmt.Sprintf("\tlevel: %q\n", cfg.Log.Level))
	sb.WriteString("}\n")

	if cfg.Build.StagingDir != "" {
		sb.WriteString("\nbuild: {\n")
		sb.WriteString(fmt.Sprintf("\tstaging_dir: %q\n", cfg.Build.StagingDir))
		sb.WriteString("}\n")
	}

	return sb.String()
}
