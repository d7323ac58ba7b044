// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/internal/issue"
)

// newIssuesCommand creates the `pybundle issues` command.
func newIssuesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "issues [id]",
		Short: "Show known failure modes and how to fix them",
		Long: `Show the catalog of known failure modes with remediation steps.

Without an argument, every catalog entry is listed. With a numeric ID,
only that entry is rendered.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return renderAllIssues(app)
			}
			return renderOneIssue(app, args[0])
		},
	}
}

func renderAllIssues(app *App) error {
	for _, entry := range issue.Values() {
		rendered, err := entry.Render("dark")
		if err != nil {
			return fmt.Errorf("rendering issue %d: %w", entry.Id(), err)
		}
		fmt.Fprintf(app.stdout, "%s\n%s", TitleStyle.Render(fmt.Sprintf("Issue %d", entry.Id())), rendered)
	}
	return nil
}

func renderOneIssue(app *App, arg string) error {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("issue ID must be numeric, got %q", arg)
	}

	entry := issue.Get(issue.Id(id))
	if entry == nil {
		return fmt.Errorf("no issue with ID %d", id)
	}

	rendered, err := entry.Render("dark")
	if err != nil {
		return fmt.Errorf("rendering issue %d: %w", id, err)
	}
	fmt.Fprint(app.stdout, rendered)
	return nil
}
