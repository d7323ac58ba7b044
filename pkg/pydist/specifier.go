// SPDX-License-Identifier: MPL-2.0

package pydist

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidSpecifier is the sentinel error wrapped by InvalidSpecifierError.
var ErrInvalidSpecifier = errors.New("invalid requirement specifier")

var (
	specNameRe       = regexp.MustCompile(`^\s*([A-Za-z0-9._-]+)`)
	specExtrasRe     = regexp.MustCompile(`^\s*\[([^\]]*)\]`)
	specConstraintRe = regexp.MustCompile(`^(===|==|!=|>=|<=|~=|>|<)\s*(.+)$`)
)

type (
	// Specifier is one parsed requirement: a distribution name, optional
	// extras, zero or more version constraints, and an optional raw
	// environment marker. "flask", "flask==2.3.1" and
	// "uvicorn[standard]>=0.20,<1; python_version >= '3.8'" all parse.
	Specifier struct {
		Name        DistName
		Extras      []string
		Constraints []Constraint
		// Marker is the environment-marker text after ";", kept verbatim.
		// Markers are evaluated by the runtime that installs the archive's
		// dependencies, not by the builder.
		Marker string
		Raw    string
	}

	// Constraint is a single version clause within a specifier.
	Constraint struct {
		// Op is one of == != >= <= > < ~= ===.
		Op string
		// Version is the raw right-hand side, possibly ending in ".*"
		// for prefix matches.
		Version string
	}

	// InvalidSpecifierError is returned when a requirement string cannot
	// be parsed. It wraps ErrInvalidSpecifier for errors.Is() compatibility.
	InvalidSpecifierError struct {
		Value  string
		Reason string
	}
)

// Error implements the error interface for InvalidSpecifierError.
func (e *InvalidSpecifierError) Error() string {
	return fmt.Sprintf("invalid requirement specifier %q: %s", e.Value, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidSpecifierError) Unwrap() error { return ErrInvalidSpecifier }

// ParseSpecifier parses a bare requirement string.
func ParseSpecifier(raw string) (Specifier, error) {
	spec := Specifier{Raw: raw}

	rest := raw
	if i := strings.IndexByte(rest, ';'); i >= 0 {
		spec.Marker = strings.TrimSpace(rest[i+1:])
		rest = rest[:i]
	}

	m := specNameRe.FindStringSubmatch(rest)
	if m == nil {
		return Specifier{}, &InvalidSpecifierError{Value: raw, Reason: "missing distribution name"}
	}
	spec.Name = DistName(m[1])
	if err := spec.Name.Validate(); err != nil {
		return Specifier{}, &InvalidSpecifierError{Value: raw, Reason: err.Error()}
	}
	rest = rest[len(m[0]):]

	if em := specExtrasRe.FindStringSubmatch(rest); em != nil {
		for _, extra := range strings.Split(em[1], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				spec.Extras = append(spec.Extras, extra)
			}
		}
		rest = rest[len(em[0]):]
	}

	rest = strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), "()"))
	if rest == "" {
		return spec, nil
	}
	for _, clause := range strings.Split(rest, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		cm := specConstraintRe.FindStringSubmatch(clause)
		if cm == nil {
			return Specifier{}, &InvalidSpecifierError{Value: raw, Reason: fmt.Sprintf("malformed constraint %q", clause)}
		}
		spec.Constraints = append(spec.Constraints, Constraint{Op: cm[1], Version: strings.TrimSpace(cm[2])})
	}
	return spec, nil
}

// Key returns the normalized name used to index resolution results.
func (s Specifier) Key() DistName { return s.Name.Normalize() }

// String returns the original requirement text.
func (s Specifier) String() string { return s.Raw }

// AllowsPrereleases reports whether any constraint explicitly names a
// pre-release version, which opts the requirement into pre-release
// candidates.
func (s Specifier) AllowsPrereleases() bool {
	for _, c := range s.Constraints {
		v, err := ParseVersion(strings.TrimSuffix(c.Version, ".*"))
		if err == nil && v.IsPrerelease() {
			return true
		}
	}
	return false
}

// Matches reports whether the candidate version satisfies every
// constraint of the specifier.
func (s Specifier) Matches(v Version) (bool, error) {
	for _, c := range s.Constraints {
		ok, err := c.matches(v)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c Constraint) matches(v Version) (bool, error) {
	if c.Op == "===" {
		return strings.EqualFold(strings.TrimSpace(v.Raw), c.Version), nil
	}

	if strings.HasSuffix(c.Version, ".*") {
		base, err := ParseVersion(strings.TrimSuffix(c.Version, ".*"))
		if err != nil {
			return false, err
		}
		switch c.Op {
		case "==":
			return releaseHasPrefix(v, base), nil
		case "!=":
			return !releaseHasPrefix(v, base), nil
		default:
			return false, &InvalidSpecifierError{
				Value:  c.Op + c.Version,
				Reason: "prefix match is only valid with == and !=",
			}
		}
	}

	ref, err := ParseVersion(c.Version)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case "==":
		return v.Compare(ref) == 0, nil
	case "!=":
		return v.Compare(ref) != 0, nil
	case ">=":
		return v.Compare(ref) >= 0, nil
	case "<=":
		return v.Compare(ref) <= 0, nil
	case ">":
		return v.Compare(ref) > 0, nil
	case "<":
		return v.Compare(ref) < 0, nil
	case "~=":
		if len(ref.Release) < 2 {
			return false, &InvalidSpecifierError{
				Value:  c.Op + c.Version,
				Reason: "compatible release needs at least two release segments",
			}
		}
		if v.Compare(ref) < 0 {
			return false, nil
		}
		prefix := ref
		prefix.Release = ref.Release[:len(ref.Release)-1]
		return releaseHasPrefix(v, prefix), nil
	default:
		return false, &InvalidSpecifierError{Value: c.Op + c.Version, Reason: "unknown operator"}
	}
}

// releaseHasPrefix reports whether v's epoch matches and its release
// starts with every segment of prefix's release.
func releaseHasPrefix(v, prefix Version) bool {
	if v.Epoch != prefix.Epoch {
		return false
	}
	if len(v.Release) < len(prefix.Release) {
		padded := make([]int, len(prefix.Release))
		copy(padded, v.Release)
		return cmpRelease(padded, prefix.Release) == 0
	}
	return cmpRelease(v.Release[:len(prefix.Release)], prefix.Release) == 0
}
