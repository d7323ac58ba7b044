// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newBuildCommand creates the `pybundle build` command. All business logic
// lives in the App's BuildService; this layer parses flags into a
// BuildRequest and renders the outcome.
func newBuildCommand(app *App) *cobra.Command {
	var (
		bundlePath  string
		output      string
		entryModule string
		mainFile    string
		script      string
		stripPrefix string

		zipSafe      bool
		noZipSafe    bool
		useWheels    bool
		reproducible bool

		noIndex       bool
		disableCache  bool
		allowOverride bool
		emitManifest  bool

		requirements []string
		repos        []string
		interpreters []string
		platforms    []string
	)

	buildCmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Build an executable Python archive",
		Long: `Build a self-contained executable Python archive.

Sources, requirements, and options come from a bundlefile.cue in the
target directory (or --bundlefile); flags override what they name.
The output is a single file that runs anywhere a Python interpreter
is on PATH.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := BuildRequest{
				BundlePath:   bundlePath,
				Output:       output,
				EntryModule:  entryModule,
				MainFile:     mainFile,
				Script:       script,
				Requirements: requirements,
				Repositories: repos,
				Interpreters: interpreters,
				PlatformTags: platforms,

				NoIndex:       noIndex,
				DisableCache:  disableCache,
				AllowOverride: allowOverride,
				EmitManifest:  emitManifest,

				ConfigPath: cfgFile,
				Verbose:    verbose,
			}
			if len(args) > 0 {
				req.Dir = args[0]
			}

			// Tri-state flags: only a flag the user actually gave may
			// override the bundlefile's value.
			if cmd.Flags().Changed("zip-safe") {
				v := zipSafe
				req.ZipSafe = &v
			}
			if noZipSafe {
				v := false
				req.ZipSafe = &v
			}
			if cmd.Flags().Changed("use-wheels") {
				v := useWheels
				req.UseWheels = &v
			}
			if cmd.Flags().Changed("reproducible") {
				v := reproducible
				req.Reproducible = &v
			}
			if cmd.Flags().Changed("strip-prefix") {
				v := stripPrefix
				req.StripPrefix = &v
			}

			return runBuild(cmd, app, req)
		},
	}

	buildCmd.Flags().StringVarP(&bundlePath, "bundlefile", "f", "", "path to the bundlefile (default: bundlefile.cue in the target directory)")
	buildCmd.Flags().StringVarP(&output, "output", "o", "", "output path for the archive")
	buildCmd.Flags().StringVar(&entryModule, "entry-module", "", "dotted module path to run on launch")
	buildCmd.Flags().StringVar(&mainFile, "main", "", "source file designated as the entry point")
	buildCmd.Flags().StringVar(&script, "script", "", "console-script name resolved at launch time")
	buildCmd.Flags().StringVar(&stripPrefix, "strip-prefix", "", "leading path segment removed from module paths")
	buildCmd.Flags().BoolVar(&zipSafe, "zip-safe", true, "import modules directly from the archive")
	buildCmd.Flags().BoolVar(&noZipSafe, "no-zip-safe", false, "unpack to a scratch directory before running")
	buildCmd.Flags().BoolVar(&useWheels, "use-wheels", true, "admit binary wheels as resolution candidates")
	buildCmd.Flags().BoolVar(&reproducible, "reproducible", true, "produce byte-identical output for identical inputs")
	buildCmd.Flags().BoolVar(&noIndex, "no-index", false, "resolve only from local repositories and the cache")
	buildCmd.Flags().BoolVar(&disableCache, "disable-cache", false, "bypass the artifact cache entirely")
	buildCmd.Flags().BoolVar(&allowOverride, "allow-override", false, "let later sources override conflicting archive paths")
	buildCmd.Flags().BoolVar(&emitManifest, "emit-manifest", false, "write a companion manifest next to the archive")
	buildCmd.Flags().StringArrayVarP(&requirements, "requirement", "r", nil, "extra requirement specifier (repeatable)")
	buildCmd.Flags().StringArrayVar(&repos, "repo", nil, "local artifact repository directory (repeatable)")
	buildCmd.Flags().StringArrayVar(&interpreters, "python", nil, "interpreter the launcher stub tries, in order (repeatable)")
	buildCmd.Flags().StringArrayVar(&platforms, "platform", nil, "platform tag restricting wheel candidates (repeatable)")
	buildCmd.MarkFlagsMutuallyExclusive("zip-safe", "no-zip-safe")

	return buildCmd
}

// runBuild executes the build and renders the result or the failure.
func runBuild(cmd *cobra.Command, app *App, req BuildRequest) error {
	result, err := app.Builds.Build(cmd.Context(), req)
	if err != nil {
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			renderServiceError(app.stderr, svcErr)
		}
		fmt.Fprintln(app.stderr, ErrorStyle.Render("build failed: ")+formatErrorForDisplay(err, req.Verbose))
		return &ExitError{Code: 1, Err: err}
	}

	fmt.Fprintf(app.stdout, "%s Built %s\n", SuccessStyle.Render("✓"), PathStyle.Render(result.Path))
	fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("fingerprint:"), result.Fingerprint[:12])
	fmt.Fprintf(app.stdout, "  %s %d bytes\n", SubtitleStyle.Render("size:"), result.Size)
	if result.Entry.Module != "" {
		fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("entry:"), result.Entry.Module)
	} else if result.Entry.Script != "" {
		fmt.Fprintf(app.stdout, "  %s %s (console script)\n", SubtitleStyle.Render("entry:"), result.Entry.Script)
	}
	if result.CompanionPath != "" {
		fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("manifest:"), PathStyle.Render(result.CompanionPath))
	}
	return nil
}
