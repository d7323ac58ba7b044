// SPDX-License-Identifier: MPL-2.0

package pydist

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrInvalidArtifactKind is the sentinel error wrapped by InvalidArtifactKindError.
	ErrInvalidArtifactKind = errors.New("invalid artifact kind")
	// ErrUnknownArtifactFilename is returned when a filename follows
	// neither the wheel nor the egg naming convention.
	ErrUnknownArtifactFilename = errors.New("unknown artifact filename")
)

type (
	// ArtifactKind tags a prebuilt artifact as an egg or a wheel. The
	// kind decides default import behavior at launch and whether the
	// artifact survives the wheels-excluded resolution mode.
	ArtifactKind string

	// InvalidArtifactKindError is returned when an ArtifactKind value is
	// not one of the known kinds. It wraps ErrInvalidArtifactKind for
	// errors.Is() compatibility.
	InvalidArtifactKindError struct {
		Value ArtifactKind
	}

	// DistFile is a parsed artifact filename: the embedded distribution
	// name and version plus the compatibility tags the filename carries.
	DistFile struct {
		Name    DistName
		Version Version
		Kind    ArtifactKind
		// PythonTags, ABITags and PlatformTags hold the expanded
		// compound tags ("py2.py3-none-any" yields PythonTags
		// ["py2","py3"]). Eggs carry at most one python and one
		// platform tag.
		PythonTags   []string
		ABITags      []string
		PlatformTags []string
		Filename     string
	}
)

const (
	// KindEgg marks a built egg distribution.
	KindEgg ArtifactKind = "egg"
	// KindWheel marks a binary wheel distribution.
	KindWheel ArtifactKind = "wheel"
)

// String returns the string representation of the ArtifactKind.
func (k ArtifactKind) String() string { return string(k) }

// Validate returns nil if the ArtifactKind is one of the known kinds,
// or an error describing the validation failure.
func (k ArtifactKind) Validate() error {
	switch k {
	case KindEgg, KindWheel:
		return nil
	default:
		return &InvalidArtifactKindError{Value: k}
	}
}

// Error implements the error interface for InvalidArtifactKindError.
func (e *InvalidArtifactKindError) Error() string {
	return fmt.Sprintf("invalid artifact kind %q (must be %q or %q)", e.Value, KindEgg, KindWheel)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidArtifactKindError) Unwrap() error { return ErrInvalidArtifactKind }

// KindForFilename infers the artifact kind from a filename extension.
func KindForFilename(filename string) (ArtifactKind, error) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".whl":
		return KindWheel, nil
	case ".egg":
		return KindEgg, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownArtifactFilename, filename)
	}
}

// ParseFilename parses a wheel or egg filename. The base name is used,
// so full paths and index URLs may be passed directly.
func ParseFilename(filename string) (DistFile, error) {
	base := path.Base(strings.TrimSpace(filename))
	kind, err := KindForFilename(base)
	if err != nil {
		return DistFile{}, err
	}
	if kind == KindWheel {
		return parseWheelFilename(base)
	}
	return parseEggFilename(base)
}

// parseWheelFilename parses
// {name}-{version}(-{build})?-{python}-{abi}-{platform}.whl.
// Name and version never contain hyphens in a wheel filename, so a plain
// split is unambiguous.
func parseWheelFilename(base string) (DistFile, error) {
	stem := strings.TrimSuffix(base, path.Ext(base))
	parts := strings.Split(stem, "-")
	if len(parts) != 5 && len(parts) != 6 {
		return DistFile{}, fmt.Errorf("%w: %q has %d segments, want 5 or 6", ErrUnknownArtifactFilename, base, len(parts))
	}
	version, err := ParseVersion(parts[1])
	if err != nil {
		return DistFile{}, fmt.Errorf("%w: %q: %v", ErrUnknownArtifactFilename, base, err)
	}
	df := DistFile{
		Name:         DistName(parts[0]),
		Version:      version,
		Kind:         KindWheel,
		PythonTags:   strings.Split(parts[len(parts)-3], "."),
		ABITags:      strings.Split(parts[len(parts)-2], "."),
		PlatformTags: strings.Split(parts[len(parts)-1], "."),
		Filename:     base,
	}
	if err := df.Name.Validate(); err != nil {
		return DistFile{}, fmt.Errorf("%w: %q: %v", ErrUnknownArtifactFilename, base, err)
	}
	return df, nil
}

// parseEggFilename parses {name}-{version}(-py{X.Y}(-{platform})?)?.egg.
// Hyphens in name and version are underscore-escaped by the build tools
// that produce eggs; the platform suffix may itself contain hyphens
// ("macosx-10.6-intel") and is rejoined after the py tag.
func parseEggFilename(base string) (DistFile, error) {
	stem := strings.TrimSuffix(base, path.Ext(base))
	parts := strings.Split(stem, "-")
	if len(parts) < 2 {
		return DistFile{}, fmt.Errorf("%w: %q lacks a version segment", ErrUnknownArtifactFilename, base)
	}
	version, err := ParseVersion(parts[1])
	if err != nil {
		return DistFile{}, fmt.Errorf("%w: %q: %v", ErrUnknownArtifactFilename, base, err)
	}
	df := DistFile{
		Name:     DistName(parts[0]),
		Version:  version,
		Kind:     KindEgg,
		Filename: base,
	}
	if err := df.Name.Validate(); err != nil {
		return DistFile{}, fmt.Errorf("%w: %q: %v", ErrUnknownArtifactFilename, base, err)
	}
	rest := parts[2:]
	if len(rest) > 0 {
		if !strings.HasPrefix(rest[0], "py") {
			return DistFile{}, fmt.Errorf("%w: %q has trailing segments without a py tag", ErrUnknownArtifactFilename, base)
		}
		df.PythonTags = []string{rest[0]}
		if len(rest) > 1 {
			df.PlatformTags = []string{strings.Join(rest[1:], "-")}
		}
	}
	return df, nil
}
