// SPDX-License-Identifier: MPL-2.0

// Package layout computes each file's final in-archive path: prefix
// stripping, package-marker synthesis, and the traversal guard that keeps
// every computed path inside the archive root. Planning is pure; the
// optional staging step materializes a plan into a purged working
// directory.
package layout

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/pybundle/pybundle/internal/manifest"
)

// ErrTraversal is the sentinel error wrapped by TraversalError.
var ErrTraversal = errors.New("archive path escapes the archive root")

// MarkerName is the package-marker file synthesized in every directory
// that holds at least one module file.
const MarkerName = "__init__.py"

type (
	// Placement maps one source file to its final in-archive path.
	// LogicalPath is the manifest's archive path before prefix stripping.
	Placement struct {
		SourcePath  string
		LogicalPath string
		ArchivePath string
	}

	// Plan is the computed layout: file placements in input order plus
	// the synthesized package markers, sorted. A plan performs no I/O;
	// Stage materializes it.
	Plan struct {
		Files   []Placement
		Markers []string

		byLogical map[string]string
		bySource  map[string]string
	}

	// TraversalError is returned when a logical path normalizes outside
	// the archive root. The computed form is reported so the caller can
	// see what the input normalized to. It wraps ErrTraversal for
	// errors.Is() compatibility.
	TraversalError struct {
		LogicalPath string
		Computed    string
	}
)

// Error implements the error interface for TraversalError.
func (e *TraversalError) Error() string {
	return fmt.Sprintf("archive path %q escapes the archive root (normalizes to %q)", e.LogicalPath, e.Computed)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *TraversalError) Unwrap() error { return ErrTraversal }

// Compute plans the archive layout for the manifest's modules. Options
// supply the strip prefix and the conflict policy for collisions that
// prefix stripping introduces.
func Compute(modules []manifest.ModuleEntry, opts manifest.BuildOptions) (*Plan, error) {
	plan := &Plan{
		Files:     make([]Placement, 0, len(modules)),
		byLogical: make(map[string]string, len(modules)),
		bySource:  make(map[string]string, len(modules)),
	}

	type claim struct {
		source string
		pos    int
	}
	byFinal := make(map[string]*claim, len(modules))
	collisions := make(map[string][]string)

	for _, mod := range modules {
		normalized, err := NormalizeArchivePath(mod.ArchivePath)
		if err != nil {
			return nil, err
		}
		final := stripSegmentPrefix(normalized, opts.StripPrefix)
		if final == "" {
			return nil, &TraversalError{LogicalPath: mod.ArchivePath, Computed: final}
		}

		prev, taken := byFinal[final]
		switch {
		case !taken:
			plan.Files = append(plan.Files, Placement{
				SourcePath:  mod.SourcePath,
				LogicalPath: mod.ArchivePath,
				ArchivePath: final,
			})
			byFinal[final] = &claim{source: mod.SourcePath, pos: len(plan.Files) - 1}
		case prev.source == mod.SourcePath:
			// Same file reaches the same destination twice; nothing new.
		case opts.AllowOverride:
			plan.Files[prev.pos] = Placement{
				SourcePath:  mod.SourcePath,
				LogicalPath: mod.ArchivePath,
				ArchivePath: final,
			}
			prev.source = mod.SourcePath
		default:
			if len(collisions[final]) == 0 {
				collisions[final] = append(collisions[final], prev.source)
			}
			collisions[final] = append(collisions[final], mod.SourcePath)
		}
	}

	if len(collisions) > 0 {
		cerr := &manifest.ConflictError{}
		finals := maps.Keys(collisions)
		slices.Sort(finals)
		for _, final := range finals {
			cerr.Conflicts = append(cerr.Conflicts, manifest.Conflict{
				ArchivePath: final,
				Sources:     collisions[final],
			})
		}
		return nil, cerr
	}

	for _, placement := range plan.Files {
		plan.byLogical[placement.LogicalPath] = placement.ArchivePath
		plan.bySource[placement.SourcePath] = placement.ArchivePath
	}
	plan.Markers = synthesizeMarkers(plan.Files)
	return plan, nil
}

// NormalizeArchivePath cleans a slash-separated logical path and rejects
// anything that would land outside the archive root. Interior parent
// segments that still resolve inside the root are normalized away;
// escapes are never clamped.
func NormalizeArchivePath(logical string) (string, error) {
	trimmed := strings.TrimSpace(logical)
	if trimmed == "" || strings.ContainsRune(trimmed, '\\') || strings.ContainsRune(trimmed, 0) {
		return "", &TraversalError{LogicalPath: logical, Computed: trimmed}
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || path.IsAbs(cleaned) || strings.HasPrefix(cleaned, "../") {
		return "", &TraversalError{LogicalPath: logical, Computed: cleaned}
	}
	return cleaned, nil
}

// stripSegmentPrefix removes prefix from p when p begins with that
// segment sequence. Non-matching paths pass through unchanged; a path
// equal to the prefix strips to the empty string, which the caller
// rejects.
func stripSegmentPrefix(p, prefix string) string {
	if prefix == "" {
		return p
	}
	prefix = path.Clean(prefix)
	if p == prefix {
		return ""
	}
	if strings.HasPrefix(p, prefix+"/") {
		return p[len(prefix)+1:]
	}
	return p
}

// synthesizeMarkers returns the package-marker paths for every ancestor
// directory of a module file, skipping levels where the input set already
// supplies the marker.
func synthesizeMarkers(files []Placement) []string {
	claimed := make(map[string]struct{}, len(files))
	for _, f := range files {
		claimed[f.ArchivePath] = struct{}{}
	}

	markers := make(map[string]struct{})
	for _, f := range files {
		if !strings.HasSuffix(f.ArchivePath, ".py") {
			continue
		}
		for dir := path.Dir(f.ArchivePath); dir != "."; dir = path.Dir(dir) {
			marker := dir + "/" + MarkerName
			if _, exists := claimed[marker]; !exists {
				markers[marker] = struct{}{}
			}
		}
	}

	out := maps.Keys(markers)
	slices.Sort(out)
	return out
}

// ModulePaths returns the final archive paths in input order. The
// entry-point fallback picks the first of these.
func (p *Plan) ModulePaths() []string {
	paths := make([]string, len(p.Files))
	for i, f := range p.Files {
		paths[i] = f.ArchivePath
	}
	return paths
}

// FinalPathOf maps a logical archive path or a source path to its final
// in-archive location. Entry-point main files are usually designated by
// their pre-strip path.
func (p *Plan) FinalPathOf(logicalOrSource string) (string, bool) {
	if final, ok := p.byLogical[logicalOrSource]; ok {
		return final, true
	}
	if final, ok := p.bySource[logicalOrSource]; ok {
		return final, true
	}
	return "", false
}
