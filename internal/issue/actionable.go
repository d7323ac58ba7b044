// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError carries the context a user needs to act on a
	// failure: the operation that failed, the file or entity involved,
	// remediation suggestions, and optionally the catalog issue that
	// documents the failure mode. Construct it with NewErrorContext.
	ActionableError struct {
		// Operation is a verb phrase, e.g. "load configuration".
		Operation string

		// Resource is the file, path, or entity involved (optional).
		Resource string

		// Suggestions are remediation hints, shown as a bullet list.
		Suggestions []string

		// Issue links the error to a catalog entry; zero means none.
		Issue Id

		// Cause is the wrapped underlying error (optional).
		Cause error
	}

	// ErrorContext builds an ActionableError incrementally:
	//
	//	return issue.NewErrorContext().
	//		WithOperation("load configuration").
	//		WithResource(path).
	//		WithSuggestion("Check that the file contains valid CUE syntax").
	//		WithIssue(issue.ConfigLoadFailedId).
	//		Wrap(err).
	//		BuildError()
	ErrorContext struct {
		err ActionableError
	}
)

// NewErrorContext creates an empty ErrorContext builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// WithOperation sets the operation being attempted. An operation is
// required; BuildError returns nil without one.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.err.Operation = op
	return c
}

// WithResource sets the file, path, or entity involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.err.Resource = res
	return c
}

// WithSuggestion appends a remediation suggestion. May be called
// multiple times.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.err.Suggestions = append(c.err.Suggestions, sug)
	return c
}

// WithIssue links the error to a catalog entry so that formatted
// output can point the user at `pybundle issues <id>`.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.err.Issue = id
	return c
}

// Wrap records the underlying cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.err.Cause = err
	return c
}

// BuildError returns the built ActionableError as an error, or nil
// when no operation was set.
func (c *ErrorContext) BuildError() error {
	if c.err.Operation == "" {
		return nil
	}
	built := c.err
	built.Suggestions = append([]string(nil), c.err.Suggestions...)
	return &built
}

// Error returns the one-line form: operation, resource, cause,
// colon-joined. Suggestions and the catalog pointer only appear in
// Format output.
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format renders the error for terminal display. Suggestions follow
// the message as a bullet list, and a linked catalog entry is pointed
// at by ID. With verbose set, the full cause chain is appended one
// numbered line per link.
func (e *ActionableError) Format(verbose bool) string {
	var out strings.Builder
	out.WriteString(e.Error())

	for _, sug := range e.Suggestions {
		out.WriteString("\n  • ")
		out.WriteString(sug)
	}
	if e.Issue != 0 {
		fmt.Fprintf(&out, "\n\nRun 'pybundle issues %d' for remediation steps.", e.Issue)
	}

	if verbose && e.Cause != nil {
		out.WriteString("\n\nError chain:")
		for depth, err := 1, e.Cause; err != nil; depth, err = depth+1, errors.Unwrap(err) {
			fmt.Fprintf(&out, "\n  %d. %s", depth, err.Error())
		}
	}

	return out.String()
}
