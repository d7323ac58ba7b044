// SPDX-License-Identifier: MPL-2.0

// Package manifest models the build manifest: the canonical, immutable
// aggregate of everything one archive build embeds. A manifest is
// constructed fresh per invocation through the Builder, owns its entry
// lists for the duration of that build, and is borrowed read-only by the
// downstream stages.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/pybundle/pybundle/internal/entrypoint"
	"github.com/pybundle/pybundle/pkg/pydist"
)

var (
	// ErrConflict is the sentinel error wrapped by ConflictError.
	ErrConflict = errors.New("archive path conflict")
	// ErrInvalidRequirement is the sentinel error wrapped by InvalidRequirementError.
	ErrInvalidRequirement = errors.New("invalid requirement")
	// ErrInvalidRepositoryRef is the sentinel error wrapped by InvalidRepositoryRefError.
	ErrInvalidRepositoryRef = errors.New("invalid repository ref")
)

type (
	// ModuleEntry places one source file inside the output archive.
	// ArchivePath is slash-separated, relative, and unique across the
	// manifest.
	ModuleEntry struct {
		SourcePath  string `json:"sourcePath"`
		ArchivePath string `json:"archivePath"`
	}

	// PrebuiltArtifact is an already-fetched binary package embedded
	// verbatim. The build borrows the file at LocalPath and never
	// modifies it.
	PrebuiltArtifact struct {
		LocalPath string              `json:"localPath"`
		Kind      pydist.ArtifactKind `json:"kind"`
	}

	// Requirement is a bare package specifier string, resolved at
	// assembly time by the dependency materializer and never persisted.
	Requirement string

	// InvalidRequirementError is returned when a Requirement does not
	// parse as a specifier. It wraps ErrInvalidRequirement for
	// errors.Is() compatibility.
	InvalidRequirementError struct {
		Value Requirement
		Cause error
	}

	// RepositoryRef is a directory path searched for prebuilt artifacts
	// during resolution.
	RepositoryRef string

	// InvalidRepositoryRefError is returned when a RepositoryRef value is
	// empty. It wraps ErrInvalidRepositoryRef for errors.Is() compatibility.
	InvalidRepositoryRefError struct {
		Value RepositoryRef
	}

	// BuildManifest aggregates one build's inputs. Modules keep their
	// input order (the entry-point fallback depends on it); Canonical
	// sorts a copy so serialization is input-order independent.
	BuildManifest struct {
		Modules      []ModuleEntry
		Artifacts    []PrebuiltArtifact
		Requirements []Requirement
		Repositories []RepositoryRef
		EntryPoint   entrypoint.Spec
		Options      BuildOptions
	}

	// Conflict records one archive path claimed by multiple sources.
	Conflict struct {
		ArchivePath string
		Sources     []string
	}

	// ConflictError aggregates every archive-path collision found in one
	// manifest build. It wraps ErrConflict for errors.Is() compatibility.
	ConflictError struct {
		Conflicts []Conflict
	}
)

// String returns the string representation of the Requirement.
func (r Requirement) String() string { return string(r) }

// Specifier parses the requirement into its structured form.
func (r Requirement) Specifier() (pydist.Specifier, error) {
	spec, err := pydist.ParseSpecifier(string(r))
	if err != nil {
		return pydist.Specifier{}, &InvalidRequirementError{Value: r, Cause: err}
	}
	return spec, nil
}

// Validate returns nil if the Requirement parses as a specifier.
func (r Requirement) Validate() error {
	_, err := r.Specifier()
	return err
}

// Error implements the error interface for InvalidRequirementError.
func (e *InvalidRequirementError) Error() string {
	return fmt.Sprintf("invalid requirement %q: %v", e.Value, e.Cause)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidRequirementError) Unwrap() error { return ErrInvalidRequirement }

// String returns the string representation of the RepositoryRef.
func (r RepositoryRef) String() string { return string(r) }

// Validate returns nil if the RepositoryRef is non-empty.
func (r RepositoryRef) Validate() error {
	if strings.TrimSpace(string(r)) == "" {
		return &InvalidRepositoryRefError{Value: r}
	}
	return nil
}

// Error implements the error interface for InvalidRepositoryRefError.
func (e *InvalidRepositoryRefError) Error() string {
	return fmt.Sprintf("invalid repository ref %q: must be a directory path", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidRepositoryRefError) Unwrap() error { return ErrInvalidRepositoryRef }

// Error implements the error interface for ConflictError.
func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = fmt.Sprintf("%q claimed by %s", c.ArchivePath, strings.Join(c.Sources, ", "))
	}
	return "archive path conflict: " + strings.Join(parts, "; ")
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// canonicalManifest is the serialization shape of a manifest. Slices are
// pre-sorted copies; encoding/json emits struct fields in declaration
// order, so the byte output is fully determined by the field values.
type canonicalManifest struct {
	Modules      []ModuleEntry      `json:"modules"`
	Artifacts    []PrebuiltArtifact `json:"artifacts"`
	Requirements []string           `json:"requirements"`
	Repositories []string           `json:"repositories"`
	EntryPoint   canonicalEntry     `json:"entryPoint"`
	Options      canonicalOptions   `json:"options"`
}

type canonicalEntry struct {
	Module   string `json:"module,omitempty"`
	MainFile string `json:"mainFile,omitempty"`
	Script   string `json:"script,omitempty"`
}

type canonicalOptions struct {
	ZipSafe                bool     `json:"zipSafe"`
	UseWheels              bool     `json:"useWheels"`
	NoIndex                bool     `json:"noIndex"`
	DisableCache           bool     `json:"disableCache"`
	StripPrefix            string   `json:"stripPrefix,omitempty"`
	InterpreterConstraints []string `json:"interpreterConstraints,omitempty"`
	PlatformTags           []string `json:"platformTags,omitempty"`
	AllowOverride          bool     `json:"allowOverride"`
	Reproducible           bool     `json:"reproducible"`
}

// Canonical returns the stable, key-sorted serialization of the manifest.
// Two manifests built from the same input set produce identical bytes
// regardless of the order the inputs were added in. Verbosity and output
// placement do not affect archive content and are excluded.
func (m *BuildManifest) Canonical() ([]byte, error) {
	cm := canonicalManifest{
		Modules:      slices.Clone(m.Modules),
		Artifacts:    slices.Clone(m.Artifacts),
		Requirements: toSortedStrings(m.Requirements),
		Repositories: toSortedStrings(m.Repositories),
		EntryPoint: canonicalEntry{
			Module:   m.EntryPoint.Module,
			MainFile: m.EntryPoint.MainFile,
			Script:   m.EntryPoint.Script,
		},
		Options: canonicalOptions{
			ZipSafe:                m.Options.ZipSafe,
			UseWheels:              m.Options.UseWheels,
			NoIndex:                m.Options.NoIndex,
			DisableCache:           m.Options.DisableCache,
			StripPrefix:            m.Options.StripPrefix,
			InterpreterConstraints: slices.Clone(m.Options.InterpreterConstraints),
			PlatformTags:           slices.Clone(m.Options.PlatformTags),
			AllowOverride:          m.Options.AllowOverride,
			Reproducible:           m.Options.Reproducible,
		},
	}
	slices.SortFunc(cm.Modules, compareModules)
	slices.SortFunc(cm.Artifacts, func(a, b PrebuiltArtifact) int {
		return strings.Compare(a.LocalPath, b.LocalPath)
	})
	slices.Sort(cm.Options.PlatformTags)

	out, err := json.MarshalIndent(cm, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing manifest: %w", err)
	}
	return append(out, '\n'), nil
}

// Fingerprint returns the hex sha256 of the canonical serialization. It
// identifies the build in logs and in the embedded archive metadata.
func (m *BuildManifest) Fingerprint() (string, error) {
	canon, err := m.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// ModulePaths returns the archive paths of all modules in input order.
func (m *BuildManifest) ModulePaths() []string {
	paths := make([]string, len(m.Modules))
	for i, mod := range m.Modules {
		paths[i] = mod.ArchivePath
	}
	return paths
}

func compareModules(a, b ModuleEntry) int {
	if c := strings.Compare(a.ArchivePath, b.ArchivePath); c != 0 {
		return c
	}
	return strings.Compare(a.SourcePath, b.SourcePath)
}

func toSortedStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
