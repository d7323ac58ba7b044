// SPDX-License-Identifier: MPL-2.0

// Package entrypoint computes how a built archive starts. The three ways
// to designate an entry point (an explicit dotted module, a main source
// file, a named console script) are mutually exclusive and resolve once,
// before any build work begins; with none of them set the first module in
// input order is used, and an archive with no modules at all launches an
// interactive interpreter.
package entrypoint

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrAmbiguousEntryPoint is the sentinel error wrapped by AmbiguousEntryPointError.
	ErrAmbiguousEntryPoint = errors.New("ambiguous entry point")
	// ErrInvalidEntryPoint is the sentinel error wrapped by InvalidEntryPointError.
	ErrInvalidEntryPoint = errors.New("invalid entry point")
)

type (
	// Kind names the resolved entry-point variant.
	Kind string

	// Spec is the raw entry-point configuration. At most one field may be
	// populated; Resolve enforces exclusivity before any I/O happens.
	Spec struct {
		// Module is an explicit dotted module path ("app.main").
		Module string
		// MainFile is the archive-relative path of the source file
		// designated as main ("app/main.py").
		MainFile string
		// Script is a console-script name, looked up in embedded package
		// metadata by the bootstrap at launch time.
		Script string
	}

	// Resolved is the terminal state the archive metadata records. No
	// transitions happen after construction.
	Resolved struct {
		Kind Kind
		// Module is the dotted module to run when Kind is KindModule.
		Module string
		// Script is the console-script name when Kind is KindScript.
		Script string
	}

	// AmbiguousEntryPointError is returned when two or more entry-point
	// designations are supplied together. It wraps ErrAmbiguousEntryPoint
	// for errors.Is() compatibility.
	AmbiguousEntryPointError struct {
		// Supplied lists the conflicting designations ("module",
		// "main file", "script").
		Supplied []string
	}

	// InvalidEntryPointError is returned when a designation is present
	// but unusable: a dotted path with bad identifiers, a main file that
	// is not a module in the build set, or a non-Python main file. It
	// wraps ErrInvalidEntryPoint for errors.Is() compatibility.
	InvalidEntryPointError struct {
		Value  string
		Reason string
	}
)

const (
	// KindNone means no entry point: the bootstrap starts an interactive
	// interpreter with the archive on the import path.
	KindNone Kind = "none"
	// KindModule runs a dotted module.
	KindModule Kind = "module"
	// KindScript resolves a console script from embedded metadata at
	// launch time.
	KindScript Kind = "script"
)

// Error implements the error interface for AmbiguousEntryPointError.
func (e *AmbiguousEntryPointError) Error() string {
	return fmt.Sprintf("ambiguous entry point: %s are mutually exclusive", strings.Join(e.Supplied, " and "))
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *AmbiguousEntryPointError) Unwrap() error { return ErrAmbiguousEntryPoint }

// Error implements the error interface for InvalidEntryPointError.
func (e *InvalidEntryPointError) Error() string {
	return fmt.Sprintf("invalid entry point %q: %s", e.Value, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidEntryPointError) Unwrap() error { return ErrInvalidEntryPoint }

// Validate checks the exclusivity invariant without resolving.
func (s Spec) Validate() error {
	var supplied []string
	if s.Module != "" {
		supplied = append(supplied, "module")
	}
	if s.MainFile != "" {
		supplied = append(supplied, "main file")
	}
	if s.Script != "" {
		supplied = append(supplied, "script")
	}
	if len(supplied) > 1 {
		return &AmbiguousEntryPointError{Supplied: supplied}
	}
	return nil
}

// Resolve computes the terminal entry-point state for an archive whose
// modules live at the given archive-relative paths, in input order.
func Resolve(spec Spec, modulePaths []string) (Resolved, error) {
	if err := spec.Validate(); err != nil {
		return Resolved{}, err
	}

	switch {
	case spec.Module != "":
		if err := validateDotted(spec.Module); err != nil {
			return Resolved{}, err
		}
		return Resolved{Kind: KindModule, Module: spec.Module}, nil

	case spec.MainFile != "":
		if !containsPath(modulePaths, spec.MainFile) {
			return Resolved{}, &InvalidEntryPointError{
				Value:  spec.MainFile,
				Reason: "main file is not among the archive's modules",
			}
		}
		mod, err := DeriveModule(spec.MainFile)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Kind: KindModule, Module: mod}, nil

	case spec.Script != "":
		return Resolved{Kind: KindScript, Script: spec.Script}, nil

	default:
		for _, p := range modulePaths {
			if mod, err := DeriveModule(p); err == nil {
				return Resolved{Kind: KindModule, Module: mod}, nil
			}
		}
		return Resolved{Kind: KindNone}, nil
	}
}

// DeriveModule turns an archive-relative source path into a dotted module
// path: separators become dots and the extension is stripped, with
// "pkg/__init__.py" mapping to "pkg".
func DeriveModule(archivePath string) (string, error) {
	p := path.Clean(strings.TrimSpace(archivePath))
	if !strings.HasSuffix(p, ".py") {
		return "", &InvalidEntryPointError{Value: archivePath, Reason: "not a Python source file"}
	}
	p = strings.TrimSuffix(p, ".py")
	p = strings.TrimSuffix(p, "/__init__")
	mod := strings.ReplaceAll(p, "/", ".")
	if err := validateDotted(mod); err != nil {
		return "", &InvalidEntryPointError{Value: archivePath, Reason: "derived module path is not importable"}
	}
	return mod, nil
}

// validateDotted checks that every segment of a dotted path is a Python
// identifier.
func validateDotted(mod string) error {
	if mod == "" {
		return &InvalidEntryPointError{Value: mod, Reason: "empty module path"}
	}
	for _, seg := range strings.Split(mod, ".") {
		if !isIdentifier(seg) {
			return &InvalidEntryPointError{
				Value:  mod,
				Reason: fmt.Sprintf("segment %q is not a valid identifier", seg),
			}
		}
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func containsPath(paths []string, want string) bool {
	clean := path.Clean(want)
	for _, p := range paths {
		if path.Clean(p) == clean {
			return true
		}
	}
	return false
}
