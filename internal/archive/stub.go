// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// defaultInterpreterSearch is the platform-default interpreter order
// used when the build configures no constraints.
var defaultInterpreterSearch = []string{"python3", "python"}

// stubExitCode is what the launcher exits with when no interpreter
// matches. 127 is the command-not-found convention, distinguishable from
// any normal application exit.
const stubExitCode = 127

// GenerateStub produces the POSIX sh launcher prepended to the archive.
// The stub searches the interpreter candidates in order and re-executes
// the archive with the first one found; the interpreter then imports the
// zip payload that follows the stub. The generated script is parsed with
// a POSIX shell grammar before use, so a malformed stub is caught at
// build time rather than on the user's machine.
func GenerateStub(interpreters []string) (string, error) {
	if len(interpreters) == 0 {
		interpreters = defaultInterpreterSearch
	}

	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n")
	sb.WriteString(`self="$0"` + "\n")
	sb.WriteString("for py in " + strings.Join(interpreters, " ") + "; do\n")
	sb.WriteString("\tif command -v \"$py\" >/dev/null 2>&1; then\n")
	sb.WriteString("\t\texec \"$py\" \"$self\" \"$@\"\n")
	sb.WriteString("\tfi\n")
	sb.WriteString("done\n")
	fmt.Fprintf(&sb, "echo \"pybundle: no usable interpreter found (tried: %s)\" >&2\n", strings.Join(interpreters, ", "))
	fmt.Fprintf(&sb, "exit %d\n", stubExitCode)

	stub := sb.String()
	if err := validateStub(stub); err != nil {
		return "", fmt.Errorf("internal error: generated stub does not parse: %w", err)
	}
	return stub, nil
}

// validateStub checks the stub against the POSIX shell grammar.
func validateStub(stub string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	_, err := parser.Parse(strings.NewReader(stub), "stub.sh")
	return err
}
