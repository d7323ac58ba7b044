// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/pybundle/pybundle/internal/entrypoint"
	"github.com/pybundle/pybundle/pkg/pydist"
)

// Builder accumulates build inputs and produces an immutable
// BuildManifest. Zero value is usable. Builders are not safe for
// concurrent use; one build invocation owns one Builder.
type Builder struct {
	modules      []ModuleEntry
	artifacts    []PrebuiltArtifact
	requirements []Requirement
	repositories []RepositoryRef
}

// AddModule records one source file and its logical destination path.
func (b *Builder) AddModule(sourcePath, archivePath string) {
	b.modules = append(b.modules, ModuleEntry{SourcePath: sourcePath, ArchivePath: archivePath})
}

// AddArtifact records an already-fetched prebuilt package.
func (b *Builder) AddArtifact(localPath string, kind pydist.ArtifactKind) {
	b.artifacts = append(b.artifacts, PrebuiltArtifact{LocalPath: localPath, Kind: kind})
}

// AddRequirement records a bare requirement specifier.
func (b *Builder) AddRequirement(spec string) {
	b.requirements = append(b.requirements, Requirement(spec))
}

// AddRepository records a local artifact repository directory.
func (b *Builder) AddRepository(dir string) {
	b.repositories = append(b.repositories, RepositoryRef(dir))
}

// Build validates the accumulated inputs and freezes them into a
// BuildManifest. Validation order mirrors failure cost: options and
// entry-point exclusivity first (pure configuration, no I/O has happened
// yet), then per-item validity, then cross-entry conflict detection.
func (b *Builder) Build(entry entrypoint.Spec, opts BuildOptions) (*BuildManifest, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	for _, artifact := range b.artifacts {
		if err := artifact.Kind.Validate(); err != nil {
			return nil, fmt.Errorf("artifact %q: %w", artifact.LocalPath, err)
		}
		if strings.TrimSpace(artifact.LocalPath) == "" {
			return nil, &InvalidOptionsError{Field: "artifact", Value: artifact.LocalPath, Reason: "local path must not be empty"}
		}
	}
	for _, req := range b.requirements {
		if err := req.Validate(); err != nil {
			return nil, err
		}
	}
	for _, repo := range b.repositories {
		if err := repo.Validate(); err != nil {
			return nil, err
		}
	}

	modules, err := resolveModules(b.modules, opts.AllowOverride)
	if err != nil {
		return nil, err
	}

	return &BuildManifest{
		Modules:      modules,
		Artifacts:    dedupeArtifacts(b.artifacts),
		Requirements: slices.Clone(ensureSlice(b.requirements)),
		Repositories: slices.Clone(ensureSlice(b.repositories)),
		EntryPoint:   entry,
		Options:      opts,
	}, nil
}

// resolveModules deduplicates identical (source, archive) pairs, keeps
// input order, and either rejects or last-wins-resolves archive paths
// claimed by different sources.
func resolveModules(in []ModuleEntry, allowOverride bool) ([]ModuleEntry, error) {
	type claim struct {
		entry ModuleEntry
		pos   int
	}
	byArchive := make(map[string]*claim, len(in))
	conflicts := make(map[string][]string)
	out := make([]ModuleEntry, 0, len(in))

	for _, entry := range in {
		prev, seen := byArchive[entry.ArchivePath]
		switch {
		case !seen:
			out = append(out, entry)
			byArchive[entry.ArchivePath] = &claim{entry: entry, pos: len(out) - 1}
		case prev.entry.SourcePath == entry.SourcePath:
			// Same mapping supplied twice collapses silently.
		case allowOverride:
			out[prev.pos] = entry
			prev.entry = entry
		default:
			if len(conflicts[entry.ArchivePath]) == 0 {
				conflicts[entry.ArchivePath] = append(conflicts[entry.ArchivePath], prev.entry.SourcePath)
			}
			conflicts[entry.ArchivePath] = append(conflicts[entry.ArchivePath], entry.SourcePath)
		}
	}

	if len(conflicts) > 0 {
		cerr := &ConflictError{}
		for _, archivePath := range sortedKeys(conflicts) {
			cerr.Conflicts = append(cerr.Conflicts, Conflict{
				ArchivePath: archivePath,
				Sources:     conflicts[archivePath],
			})
		}
		return nil, cerr
	}
	return out, nil
}

func dedupeArtifacts(in []PrebuiltArtifact) []PrebuiltArtifact {
	out := make([]PrebuiltArtifact, 0, len(in))
	seen := make(map[PrebuiltArtifact]struct{}, len(in))
	for _, a := range in {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func ensureSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
