// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/pkg/bundlefile"
)

// newInitCommand creates the `pybundle init` command.
func newInitCommand(app *App) *cobra.Command {
	var (
		initForce     bool
		fromPyproject string
	)

	initCmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a starter bundlefile in the current directory",
		Long: `Create a starter bundlefile.cue with an example module layout.

With --from-pyproject, requirements are imported from an existing
pyproject.toml [project] dependencies table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(app, dir, initForce, fromPyproject)
		},
	}

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing bundlefile")
	initCmd.Flags().StringVar(&fromPyproject, "from-pyproject", "", "import requirements from a pyproject.toml")

	return initCmd
}

func runInit(app *App, dir string, force bool, fromPyproject string) error {
	target := filepath.Join(dir, bundlefile.DefaultFileName)
	if _, err := os.Stat(target); err == nil && !force {
		return fmt.Errorf("file '%s' already exists. Use --force to overwrite", target)
	}

	name := projectName(dir)
	var requirements []string
	if fromPyproject != "" {
		proj, err := bundlefile.LoadPyproject(fromPyproject)
		if err != nil {
			return fmt.Errorf("importing %s: %w", fromPyproject, err)
		}
		if proj.Name != "" {
			name = proj.Name
		}
		requirements = proj.Requirements
	}

	content := generateBundlefile(name, requirements)
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	absPath, _ := filepath.Abs(target)
	fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), absPath)
	fmt.Fprintln(app.stdout)
	fmt.Fprintln(app.stdout, SubtitleStyle.Render("Next steps:"))
	fmt.Fprintln(app.stdout, "  1. Edit the bundlefile to list your modules and entry point")
	fmt.Fprintln(app.stdout, "  2. Run 'pybundle build' to produce the archive")
	fmt.Fprintln(app.stdout, "  3. Run 'pybundle inspect <archive>' to check the result")

	return nil
}

// projectName derives a bundle name from the target directory.
func projectName(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "app"
	}
	name := filepath.Base(abs)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "app"
	}
	return name
}

// generateBundlefile renders a starter bundlefile.
func generateBundlefile(name string, requirements []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "name: %q\n", name)
	b.WriteString("\n")
	b.WriteString("// Module sources: files, directories, or globs, with optional\n")
	b.WriteString("// in-archive destinations.\n")
	b.WriteString("modules: [\n")
	fmt.Fprintf(&b, "\t{path: %q},\n", "src")
	b.WriteString("]\n")
	b.WriteString("\n")
	b.WriteString("// How the archive starts: one of module, mainFile, or script.\n")
	fmt.Fprintf(&b, "entry: module: %q\n", strings.ReplaceAll(name, "-", "_")+".main")

	if len(requirements) > 0 {
		b.WriteString("\n")
		b.WriteString("requirements: [\n")
		for _, r := range requirements {
			fmt.Fprintf(&b, "\t%q,\n", r)
		}
		b.WriteString("]\n")
	}

	return b.String()
}
