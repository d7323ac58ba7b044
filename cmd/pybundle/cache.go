// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/internal/issue"
	"github.com/pybundle/pybundle/internal/materialize"
)

// newCacheCommand creates the `pybundle cache` command tree.
func newCacheCommand(app *App) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact resolution cache",
		Long: `Manage the artifact resolution cache.

Resolved artifacts are cached on disk keyed by requirement and
resolution mode, so repeated builds skip index queries and downloads.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show cache location and usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheInfo(cmd.Context(), app)
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cacheClear(cmd.Context(), app)
		},
	})

	return cacheCmd
}

// openCache resolves the configured cache directory and opens a handle.
func openCache(ctx context.Context, app *App) (*materialize.Cache, error) {
	cfg, err := loadConfigWithFallback(ctx, app.Config, cfgFile, app.stderr)
	if err != nil {
		return nil, err
	}

	dir := cfg.Cache.Dir
	if dir == "" {
		dir, err = materialize.DefaultCacheDir()
		if err != nil {
			return nil, newServiceError(err, issue.CacheUnavailableId, "")
		}
	}
	cache, err := materialize.NewCache(dir)
	if err != nil {
		return nil, newServiceError(err, issue.CacheUnavailableId, "")
	}
	return cache, nil
}

func cacheInfo(ctx context.Context, app *App) error {
	cache, err := openCache(ctx, app)
	if err != nil {
		return renderCacheError(app, err)
	}

	files, bytes, err := cache.Info()
	if err != nil {
		return renderCacheError(app, newServiceError(err, issue.CacheUnavailableId, ""))
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render("Artifact Cache"))
	fmt.Fprintln(app.stdout)
	fmt.Fprintf(app.stdout, "%s: %s\n", PathStyle.Render("directory"), cache.Dir())
	fmt.Fprintf(app.stdout, "%s: %d\n", PathStyle.Render("artifacts"), files)
	fmt.Fprintf(app.stdout, "%s: %d bytes\n", PathStyle.Render("total size"), bytes)
	return nil
}

func cacheClear(ctx context.Context, app *App) error {
	cache, err := openCache(ctx, app)
	if err != nil {
		return renderCacheError(app, err)
	}

	if err := cache.Clear(); err != nil {
		return renderCacheError(app, newServiceError(err, issue.CacheUnavailableId, ""))
	}

	fmt.Fprintf(app.stdout, "%s Cleared artifact cache at %s\n", SuccessStyle.Render("✓"), cache.Dir())
	return nil
}

func renderCacheError(app *App, err error) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		renderServiceError(app.stderr, svcErr)
	}
	return &ExitError{Code: 1, Err: err}
}
