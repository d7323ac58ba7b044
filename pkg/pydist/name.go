// SPDX-License-Identifier: MPL-2.0

// Package pydist models Python distribution naming: normalized project
// names, requirement specifiers with version constraints, and the
// filename conventions of prebuilt artifacts (wheels and eggs). It is the
// shared vocabulary between the dependency materializer and the archive
// assembler.
package pydist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidDistName is the sentinel error wrapped by InvalidDistNameError.
	ErrInvalidDistName = errors.New("invalid distribution name")

	nameRunRe   = regexp.MustCompile(`[-_.]+`)
	validNameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)
)

type (
	// DistName is a Python distribution project name as it appears in a
	// requirement specifier or artifact filename. Comparison between two
	// names must always go through Normalize: "Foo_Bar", "foo-bar" and
	// "foo.bar" all identify the same distribution.
	DistName string

	// InvalidDistNameError is returned when a DistName value is empty or
	// contains characters outside the allowed project-name alphabet.
	// It wraps ErrInvalidDistName for errors.Is() compatibility.
	InvalidDistNameError struct {
		Value DistName
	}
)

// String returns the string representation of the DistName.
func (n DistName) String() string { return string(n) }

// Normalize returns the canonical comparison form of the name: runs of
// hyphens, underscores and dots collapse to a single hyphen, and the
// result is lowercased. This is the normalization rule package indexes
// apply to project URLs.
func (n DistName) Normalize() DistName {
	return DistName(strings.ToLower(nameRunRe.ReplaceAllString(string(n), "-")))
}

// Validate returns nil if the DistName is valid, or an error describing
// the validation failure. A valid name is non-empty, starts and ends with
// an alphanumeric rune, and contains only alphanumerics, dots, hyphens
// and underscores.
func (n DistName) Validate() error {
	if !validNameRe.MatchString(string(n)) {
		return &InvalidDistNameError{Value: n}
	}
	return nil
}

// Error implements the error interface for InvalidDistNameError.
func (e *InvalidDistNameError) Error() string {
	return fmt.Sprintf("invalid distribution name %q (must be alphanumeric with interior . _ -)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidDistNameError) Unwrap() error { return ErrInvalidDistName }
