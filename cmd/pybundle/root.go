// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/internal/config"
	"github.com/pybundle/pybundle/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string
)

// newRootCommand builds the command tree around the App composition root.
func newRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pybundle",
		Short: "Build executable Python archives",
		Long: TitleStyle.Render("pybundle") + SubtitleStyle.Render(" - Build executable Python archives") + `

pybundle packs Python sources and their prebuilt dependencies into a
single self-contained file that runs anywhere a Python interpreter is
on PATH. Builds are declared in 'bundlefile.cue' files using CUE format
and are reproducible by default.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Run 'pybundle init' in your project directory
  2. Edit the bundlefile to list your modules and requirements
  3. Build with: pybundle build

` + SubtitleStyle.Render("Examples:") + `
  pybundle build                 Build from ./bundlefile.cue
  pybundle build -o dist/app     Build to an explicit output path
  pybundle inspect dist/app      Show the contents of an archive
  pybundle init --from-pyproject Import requirements from pyproject.toml
  pybundle config show           Show current configuration`,
	}

	cobra.OnInitialize(initRootConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pybundle/config.cue)")

	rootCmd.AddCommand(newBuildCommand(app))
	rootCmd.AddCommand(newInspectCommand(app))
	rootCmd.AddCommand(newInitCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))
	rootCmd.AddCommand(newCacheCommand(app))
	rootCmd.AddCommand(newIssuesCommand(app))

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once.
func Execute() {
	app := NewApp(Dependencies{})
	rootCmd := newRootCommand(app)

	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initRootConfig loads .env files and applies the configured log level.
func initRootConfig() {
	// Index credentials and proxy settings may live in a local .env file;
	// a missing file is the normal case.
	_ = godotenv.Load()

	cfg, err := config.NewProvider().Load(context.Background(), config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
		cfg = nil
	}
	applyLogLevel(cfg)
}

// applyLogLevel sets the default logger's level from the flag and config.
// The --verbose flag always wins.
func applyLogLevel(cfg *config.Config) {
	switch {
	case verbose:
		log.SetLevel(log.DebugLevel)
	case cfg != nil:
		switch cfg.Log.Level {
		case config.LogLevelDebug:
			log.SetLevel(log.DebugLevel)
		case config.LogLevelWarn:
			log.SetLevel(log.WarnLevel)
		case config.LogLevelError:
			log.SetLevel(log.ErrorLevel)
		default:
			log.SetLevel(log.InfoLevel)
		}
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
