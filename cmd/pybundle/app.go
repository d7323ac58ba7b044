// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pybundle/pybundle/internal/archive"
	"github.com/pybundle/pybundle/internal/config"
)

type (
	// App wires CLI services and shared dependencies. It is the composition root for
	// the CLI layer — all Cobra command handlers receive an App reference and delegate
	// business logic through its service interfaces (Builds, Config).
	App struct {
		Config config.Provider
		Builds BuildService
		stdout io.Writer
		stderr io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil fields are
	// replaced with production defaults by NewApp. Tests can supply mock implementations
	// to isolate specific service behavior.
	Dependencies struct {
		Config config.Provider
		Builds BuildService
		Stdout io.Writer
		Stderr io.Writer
	}

	// BuildRequest captures all CLI build inputs as an immutable value.
	// It is the request-scoped data contract between the CLI layer (Cobra handlers)
	// and the BuildService implementation. Pointer fields distinguish "flag not
	// given" from an explicit false so CLI flags only override what they state.
	BuildRequest struct {
		// BundlePath is an explicit bundlefile path. Empty means discover
		// the default bundlefile in Dir.
		BundlePath string
		// Dir is the working directory for bundlefile discovery.
		Dir string
		// Output overrides the archive output path.
		Output string
		// EntryModule is the --entry-module override (dotted module path).
		EntryModule string
		// MainFile is the --main override (source file designated as main).
		MainFile string
		// Script is the --script override (console-script name).
		Script string
		// Requirements are extra bare specifiers from repeated --requirement flags.
		Requirements []string
		// Repositories are extra local repository dirs from repeated --repo flags.
		Repositories []string
		// Interpreters are stub interpreter constraints from repeated --python flags.
		Interpreters []string
		// PlatformTags restrict wheel candidates, from repeated --platform flags.
		PlatformTags []string

		StripPrefix  *string
		ZipSafe      *bool
		UseWheels    *bool
		Reproducible *bool

		NoIndex       bool
		DisableCache  bool
		AllowOverride bool
		EmitManifest  bool

		// ConfigPath is the explicit --config flag value.
		ConfigPath string
		// Verbose enables verbose diagnostic output.
		Verbose bool
	}

	// BuildService runs the full build pipeline for one request and returns the
	// assembly result. Implementations must not write directly to stdout; user-facing
	// rendering is the CLI layer's job.
	BuildService interface {
		Build(ctx context.Context, req BuildRequest) (*archive.Result, error)
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Builds == nil {
		deps.Builds = newBuildService(deps.Config, deps.Stderr)
	}

	return &App{
		Config: deps.Config,
		Builds: deps.Builds,
		stdout: deps.Stdout,
		stderr: deps.Stderr,
	}
}

// loadConfigWithFallback loads configuration via the provider. On failure with
// the default search path it returns defaults so commands stay operational; an
// explicitly requested config file must load or the error is returned as-is.
func loadConfigWithFallback(ctx context.Context, provider config.Provider, configPath string, stderr io.Writer) (*config.Config, error) {
	cfg, err := provider.Load(ctx, config.LoadOptions{ConfigFilePath: configPath})
	if err == nil {
		return cfg, nil
	}

	if configPath != "" {
		return nil, err
	}

	// The config loader only fails for existing files; a fresh install with no
	// config file loads defaults without error. Surface the problem but keep going.
	if !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(stderr, WarningStyle.Render("warning: ")+fmt.Sprintf("failed to load config, using defaults: %v", err))
	}
	return config.DefaultConfig(), nil
}
