// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidOptions is the sentinel error wrapped by InvalidOptionsError.
var ErrInvalidOptions = errors.New("invalid build options")

type (
	// BuildOptions carries the per-build switches. Validated once at
	// manifest-build time and immutable afterwards.
	BuildOptions struct {
		// ZipSafe controls whether the bootstrap may import modules
		// directly from the compressed archive (true) or must unpack to a
		// scratch directory first (false).
		ZipSafe bool

		// UseWheels admits binary wheels as resolution candidates. When
		// false only egg artifacts are acceptable.
		UseWheels bool

		// NoIndex restricts resolution to local repositories and the
		// artifact cache; no network access is attempted.
		NoIndex bool

		// DisableCache bypasses the on-disk resolution cache entirely,
		// both lookups and write-backs.
		DisableCache bool

		// Verbosity raises log detail. Zero is the default level.
		Verbosity int

		// StripPrefix is a leading path segment removed from module
		// logical paths during layout planning. Non-matching paths pass
		// through unchanged.
		StripPrefix string

		// InterpreterConstraints lists interpreter commands the bootstrap
		// stub tries in order ("python3.11", "/opt/python/bin/python3").
		// Empty means the platform-default search order.
		InterpreterConstraints []string

		// PlatformTags restricts wheel candidates to compatible
		// platforms. Empty accepts any platform.
		PlatformTags []string

		// AllowOverride switches archive-path conflicts from fatal to
		// last-input-wins.
		AllowOverride bool

		// Reproducible requests byte-identical output for identical
		// inputs: stable entry ordering, fixed timestamps, normalized
		// file modes.
		Reproducible bool

		// OutputPath is where the finished archive is placed.
		OutputPath string

		// EmitManifest additionally writes a companion manifest file next
		// to the archive.
		EmitManifest bool
	}

	// InvalidOptionsError is returned when a BuildOptions field fails
	// validation. It wraps ErrInvalidOptions for errors.Is() compatibility.
	InvalidOptionsError struct {
		Field  string
		Value  string
		Reason string
	}
)

// DefaultOptions returns the option set a bare build starts from.
func DefaultOptions() BuildOptions {
	return BuildOptions{
		ZipSafe:      true,
		UseWheels:    true,
		Reproducible: true,
	}
}

// Error implements the error interface for InvalidOptionsError.
func (e *InvalidOptionsError) Error() string {
	return fmt.Sprintf("invalid build options: %s %q: %s", e.Field, e.Value, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidOptionsError) Unwrap() error { return ErrInvalidOptions }

// interpreterSafe guards the characters that may reach the generated
// bootstrap stub unquoted.
func interpreterSafe(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-' || r == '/' || r == '+':
		default:
			return false
		}
	}
	return true
}

// Validate returns nil if every option value is usable, or an error
// naming the offending field.
func (o BuildOptions) Validate() error {
	if strings.TrimSpace(o.OutputPath) == "" {
		return &InvalidOptionsError{Field: "outputPath", Value: o.OutputPath, Reason: "must not be empty"}
	}
	if o.Verbosity < 0 {
		return &InvalidOptionsError{Field: "verbosity", Value: fmt.Sprint(o.Verbosity), Reason: "must not be negative"}
	}
	if o.StripPrefix != "" {
		sp := o.StripPrefix
		if strings.HasPrefix(sp, "/") || strings.Contains(sp, "\\") {
			return &InvalidOptionsError{Field: "stripPrefix", Value: sp, Reason: "must be a relative slash-separated prefix"}
		}
		if cleaned := path.Clean(sp); cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
			return &InvalidOptionsError{Field: "stripPrefix", Value: sp, Reason: "must not traverse outside the archive root"}
		}
	}
	for _, ic := range o.InterpreterConstraints {
		if strings.TrimSpace(ic) == "" {
			return &InvalidOptionsError{Field: "interpreterConstraints", Value: ic, Reason: "must not be empty"}
		}
		if !interpreterSafe(ic) {
			return &InvalidOptionsError{Field: "interpreterConstraints", Value: ic, Reason: "contains characters unsafe for the bootstrap stub"}
		}
	}
	for _, tag := range o.PlatformTags {
		if strings.TrimSpace(tag) == "" {
			return &InvalidOptionsError{Field: "platformTags", Value: tag, Reason: "must not be empty"}
		}
	}
	return nil
}
