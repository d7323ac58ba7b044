// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/pybundle/pybundle/internal/issue"
	"github.com/pybundle/pybundle/pkg/cueutil"
)

type (
	// LoadOptions selects where configuration comes from. The zero value
	// means the platform config directory.
	LoadOptions struct {
		// ConfigFilePath names an explicit config file, used exclusively
		// when set; a missing file is then an error.
		ConfigFilePath string
		// ConfigDirPath overrides the directory searched for config.cue.
		ConfigDirPath string
	}

	// Provider loads tool configuration.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	fileProvider struct{}
)

// NewProvider creates the file-backed configuration provider.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load reads configuration from the requested source.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := load(ctx, opts)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithPath reads configuration and reports which file supplied it, an
// empty path meaning defaults only.
func LoadWithPath(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return load(ctx, opts)
}

// load layers the config sources: defaults, then the resolved CUE file
// when one exists, then PYBUNDLE_* environment overrides.
func load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load config canceled: %w", err)
	}

	v := newViper()

	path, required, err := resolveConfigFile(opts)
	if err != nil {
		return nil, "", err
	}

	resolved := ""
	switch {
	case fileExists(path):
		if err := mergeCUEFile(v, path); err != nil {
			return nil, "", wrapConfigFileError(path, "Check that the file contains valid CUE syntax", err)
		}
		resolved = path
	case required:
		return nil, "", wrapConfigFileError(path, "Verify the file path is correct",
			fmt.Errorf("config file not found: %s", path))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	// Constraints CUE cannot check: env overrides bypass the schema.
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithSuggestion("Check PYBUNDLE_* environment variables for bad values").
			WithSuggestion("See 'pybundle config show' for the effective configuration").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, resolved, nil
}

// newViper seeds a viper instance with the defaults and the PYBUNDLE_
// environment binding (PYBUNDLE_NETWORK_TIMEOUT=10s and so on).
func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("cache.dir", defaults.Cache.Dir)
	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("network.indexes", defaults.Network.Indexes)
	v.SetDefault("network.timeout", defaults.Network.Timeout)
	v.SetDefault("network.retries", defaults.Network.Retries)
	v.SetDefault("network.backoff", defaults.Network.Backoff)
	v.SetDefault("log.level", string(defaults.Log.Level))
	v.SetDefault("build.staging_dir", defaults.Build.StagingDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// resolveConfigFile picks the config file the options designate. required
// reports whether its absence is an error (only for an explicit path).
func resolveConfigFile(opts LoadOptions) (path string, required bool, err error) {
	if opts.ConfigFilePath != "" {
		return opts.ConfigFilePath, true, nil
	}
	dir := opts.ConfigDirPath
	if dir == "" {
		dir, err = ConfigDir()
		if err != nil {
			return "", false, err
		}
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), false, nil
}

// mergeCUEFile parses a CUE file, validates it against the #Config schema,
// and merges its contents into viper. The config decodes to a map rather
// than a struct so viper keeps defaults for keys the file omits and env
// overrides still apply on top.
func mergeCUEFile(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}
	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// wrapConfigFileError attaches remediation context to a config file
// failure.
func wrapConfigFileError(path, hint string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion(hint).
		WithSuggestion("Use 'pybundle config show' to see the effective configuration").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(err).
		BuildError()
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
