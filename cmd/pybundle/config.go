// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/internal/config"
	"github.com/pybundle/pybundle/internal/issue"
)

// newConfigCommand creates the `pybundle config` command tree.
// Subcommands that read configuration use the App's config provider.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pybundle configuration",
		Long: `Manage pybundle configuration.

Configuration is stored in:
  - Linux: ~/.config/pybundle/config.cue
  - macOS: ~/Library/Application Support/pybundle/config.cue
  - Windows: %APPDATA%\pybundle\config.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath(app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output raw configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: cfgFile})
			if err != nil {
				return err
			}

			fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, path, err := config.LoadWithPath(ctx, config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		rendered, _ := issue.Get(issue.ConfigLoadFailedId).Render("dark")
		fmt.Fprint(app.stderr, rendered)
		return err
	}

	keyStyle := PathStyle
	valueStyle := SuccessStyle

	fmt.Fprintln(app.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(app.stdout)

	if path != "" {
		fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("Config file"), path)
	} else {
		fmt.Fprintf(app.stdout, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(app.stdout)

	fmt.Fprintf(app.stdout, "%s:\n", keyStyle.Render("cache"))
	cacheDir := cfg.Cache.Dir
	if cacheDir == "" {
		cacheDir = "(platform default)"
	}
	fmt.Fprintf(app.stdout, "  dir: %s\n", valueStyle.Render(cacheDir))
	fmt.Fprintf(app.stdout, "  enabled: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.Cache.Enabled)))

	fmt.Fprintln(app.stdout)
	fmt.Fprintf(app.stdout, "%s:\n", keyStyle.Render("network"))
	fmt.Fprintf(app.stdout, "  indexes: %s\n", valueStyle.Render(strings.Join(cfg.Network.Indexes, ", ")))
	fmt.Fprintf(app.stdout, "  timeout: %s\n", valueStyle.Render(cfg.Network.Timeout.String()))
	fmt.Fprintf(app.stdout, "  retries: %s\n", valueStyle.Render(fmt.Sprintf("%d", cfg.Network.Retries)))
	fmt.Fprintf(app.stdout, "  backoff: %s\n", valueStyle.Render(cfg.Network.Backoff.String()))

	fmt.Fprintln(app.stdout)
	fmt.Fprintf(app.stdout, "%s:\n", keyStyle.Render("log"))
	fmt.Fprintf(app.stdout, "  level: %s\n", valueStyle.Render(cfg.Log.Level.String()))

	fmt.Fprintln(app.stdout)
	fmt.Fprintf(app.stdout, "%s:\n", keyStyle.Render("build"))
	stagingDir := cfg.Build.StagingDir
	if stagingDir == "" {
		stagingDir = "(per-build temporary directory)"
	}
	fmt.Fprintf(app.stdout, "  staging_dir: %s\n", valueStyle.Render(stagingDir))

	return nil
}

func initConfig(app *App) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}

	if err = config.CreateDefaultConfig(); err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}

	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n",
		SuccessStyle.Render("✓"), filepath.Join(cfgDir, "config.cue"))
	return nil
}

func showConfigPath(app *App) error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}

	fmt.Fprintf(app.stdout, "Config directory: %s\n", cfgDir)
	fmt.Fprintf(app.stdout, "Config file: %s\n", filepath.Join(cfgDir, "config.cue"))

	return nil
}
