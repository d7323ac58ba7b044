// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/internal/archive"
)

// newInspectCommand creates the `pybundle inspect` command.
func newInspectCommand(app *App) *cobra.Command {
	var asJSON bool

	inspectCmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Show the contents of a built archive",
		Long: `Show the metadata, entry point, and payload listing of a built archive.

Reads the embedded metadata without executing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := archive.Inspect(args[0])
			if err != nil {
				fmt.Fprintln(app.stderr, ErrorStyle.Render("inspect failed: ")+err.Error())
				return &ExitError{Code: 1, Err: err}
			}
			if asJSON {
				return printInspectJSON(app, info)
			}
			printInspectStyled(app, args[0], info)
			return nil
		},
	}

	inspectCmd.Flags().BoolVar(&asJSON, "json", false, "output machine-readable JSON")

	return inspectCmd
}

func printInspectJSON(app *App, info *archive.Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(app.stdout, string(data))
	return nil
}

func printInspectStyled(app *App, path string, info *archive.Info) {
	fmt.Fprintln(app.stdout, TitleStyle.Render(path))
	fmt.Fprintln(app.stdout)

	kv := func(key, value string) {
		fmt.Fprintf(app.stdout, "%s %s\n", SubtitleStyle.Render(key+":"), value)
	}

	kv("stub", info.StubLine)
	kv("format", fmt.Sprintf("%d", info.Metadata.Format))
	kv("created by", info.Metadata.CreatedBy)
	kv("fingerprint", info.Metadata.Fingerprint)
	kv("zip safe", fmt.Sprintf("%v", info.Metadata.ZipSafe))
	kv("size", fmt.Sprintf("%d bytes", info.Size))

	entry := info.Metadata.Entry
	switch {
	case entry.Module != "":
		kv("entry", entry.Module)
	case entry.Script != "":
		kv("entry", entry.Script+" (console script)")
	default:
		kv("entry", "none (interactive interpreter)")
	}

	fmt.Fprintln(app.stdout)
	fmt.Fprintln(app.stdout, TitleStyle.Render("Entries"))
	for _, e := range info.Entries {
		style := PathStyle
		if strings.HasPrefix(e, archive.DepsDir+"/") {
			style = VerboseStyle
		}
		fmt.Fprintf(app.stdout, "  %s\n", style.Render(e))
	}

	if len(info.Metadata.Dependencies) > 0 {
		fmt.Fprintln(app.stdout)
		fmt.Fprintln(app.stdout, TitleStyle.Render("Dependencies"))
		for _, dep := range info.Metadata.Dependencies {
			fmt.Fprintf(app.stdout, "  %s %s\n", PathStyle.Render(dep.ArchivePath), SubtitleStyle.Render("("+dep.Kind+")"))
		}
	}
}
