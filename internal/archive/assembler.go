// SPDX-License-Identifier: MPL-2.0

// Package archive turns a planned build into the final single-file
// executable: a POSIX sh launcher stub followed by a zip payload the
// interpreter imports directly. Assembly performs no network access;
// everything it embeds was fetched or planned by the earlier stages.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/renameio"

	"github.com/pybundle/pybundle/internal/entrypoint"
	"github.com/pybundle/pybundle/internal/layout"
	"github.com/pybundle/pybundle/internal/manifest"
)

// ErrWrite is the sentinel error wrapped by WriteError.
var ErrWrite = errors.New("archive write failed")

type (
	// WriteError is returned when the output or its companion cannot be
	// placed. Placement is atomic, so the final path is never left with a
	// partial file. It wraps ErrWrite for errors.Is() compatibility.
	WriteError struct {
		Path  string
		Cause error
	}

	// Inputs is everything Assemble consumes: the manifest as built, the
	// computed layout, and the artifacts the materializer produced for
	// the manifest's requirements.
	Inputs struct {
		Manifest  *manifest.BuildManifest
		Plan      *layout.Plan
		Artifacts []manifest.PrebuiltArtifact
		Output    string
	}

	// Result describes a completed assembly.
	Result struct {
		Path          string
		CompanionPath string
		Fingerprint   string
		Entry         entrypoint.Resolved
		Size          int64
	}

	// Assembler builds archives. It carries no per-build state and may be
	// reused across builds.
	Assembler struct {
		log *log.Logger
	}
)

// Error implements the error interface for WriteError.
func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %q: %v", e.Path, e.Cause)
}

// Unwrap returns the sentinel and the cause for errors.Is() compatibility.
func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Cause} }

// NewAssembler creates an Assembler logging through the given logger.
func NewAssembler(logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.Default()
	}
	return &Assembler{log: logger.With("component", "archive")}
}

// Assemble writes the executable archive, plus a companion manifest when
// the options request one, both placed atomically. The entry point
// resolves against the plan's
// final paths before any bytes are written, so designation errors
// surface without touching the output.
func (a *Assembler) Assemble(ctx context.Context, in Inputs) (*Result, error) {
	fingerprint, err := in.Manifest.Fingerprint()
	if err != nil {
		return nil, err
	}

	resolved, err := resolveEntry(in.Manifest.EntryPoint, in.Plan)
	if err != nil {
		return nil, err
	}

	stub, err := GenerateStub(in.Manifest.Options.InterpreterConstraints)
	if err != nil {
		return nil, err
	}

	entries, deps, err := collectEntries(in)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		CreatedBy:    "pybundle",
		Dependencies: deps,
		Entry:        newEntryInfo(resolved),
		Fingerprint:  fingerprint,
		Format:       FormatVersion,
		ZipSafe:      in.Manifest.Options.ZipSafe,
	}
	info, err := meta.encode()
	if err != nil {
		return nil, err
	}
	bootstrap, err := generateBootstrap(meta)
	if err != nil {
		return nil, err
	}
	entries = append(entries,
		payloadEntry{Path: InfoName, Data: info},
		payloadEntry{Path: MainName, Data: []byte(bootstrap)},
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size, err := a.place(in.Output, stub, entries, in.Manifest.Options.Reproducible)
	if err != nil {
		return nil, err
	}

	var companionPath string
	if in.Manifest.Options.EmitManifest {
		companion := newCompanion(fingerprint, in.Plan, in.Manifest.Requirements, deps)
		companionPath = CompanionPath(in.Output)
		if err := companion.write(companionPath); err != nil {
			return nil, err
		}
	}

	a.log.Info("archive assembled",
		"path", in.Output,
		"fingerprint", fingerprint[:12],
		"entry", resolved.Kind,
		"size", size)
	return &Result{
		Path:          in.Output,
		CompanionPath: companionPath,
		Fingerprint:   fingerprint,
		Entry:         resolved,
		Size:          size,
	}, nil
}

// place writes stub and payload to a temp file in the output directory
// and renames it over the final path. On any failure the temp file is
// removed and the final path is untouched.
func (a *Assembler) place(output, stub string, entries []payloadEntry, reproducible bool) (int64, error) {
	t, err := renameio.TempFile("", output)
	if err != nil {
		return 0, &WriteError{Path: output, Cause: err}
	}
	defer t.Cleanup()

	if err := t.Chmod(0o755); err != nil {
		return 0, &WriteError{Path: output, Cause: err}
	}
	if _, err := t.WriteString(stub); err != nil {
		return 0, &WriteError{Path: output, Cause: err}
	}
	if err := writeZipPayload(t, entries, reproducible); err != nil {
		return 0, &WriteError{Path: output, Cause: err}
	}
	size, err := t.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, &WriteError{Path: output, Cause: err}
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return 0, &WriteError{Path: output, Cause: err}
	}
	return size, nil
}

// resolveEntry maps a main-file designation through the plan (the user
// names the pre-strip path) and resolves against the final module set.
func resolveEntry(spec entrypoint.Spec, plan *layout.Plan) (entrypoint.Resolved, error) {
	if spec.MainFile != "" {
		if final, ok := plan.FinalPathOf(spec.MainFile); ok {
			spec.MainFile = final
		}
	}
	return entrypoint.Resolve(spec, plan.ModulePaths())
}

// collectEntries loads every module, marker, and artifact into payload
// entries, rejecting claims on the archive paths assembly reserves for
// itself.
func collectEntries(in Inputs) ([]payloadEntry, []DependencyInfo, error) {
	entries := make([]payloadEntry, 0, len(in.Plan.Files)+len(in.Plan.Markers)+len(in.Artifacts)+2)

	for _, f := range in.Plan.Files {
		if err := checkReserved(f.ArchivePath, f.SourcePath); err != nil {
			return nil, nil, err
		}
		data, err := os.ReadFile(f.SourcePath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading module %q: %w", f.SourcePath, err)
		}
		entries = append(entries, payloadEntry{Path: f.ArchivePath, Data: data})
	}
	for _, marker := range in.Plan.Markers {
		entries = append(entries, payloadEntry{Path: marker, Data: nil})
	}

	deps := make([]DependencyInfo, 0, len(in.Artifacts))
	seen := make(map[string]string, len(in.Artifacts))
	for _, art := range in.Artifacts {
		archivePath := DepsDir + "/" + filepath.Base(art.LocalPath)
		if prev, taken := seen[archivePath]; taken {
			if prev == art.LocalPath {
				// Overlapping requirements can resolve to the same file;
				// it embeds once.
				continue
			}
			return nil, nil, &manifest.ConflictError{Conflicts: []manifest.Conflict{{
				ArchivePath: archivePath,
				Sources:     []string{prev, art.LocalPath},
			}}}
		}
		seen[archivePath] = art.LocalPath

		data, err := os.ReadFile(art.LocalPath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading artifact %q: %w", art.LocalPath, err)
		}
		entries = append(entries, payloadEntry{Path: archivePath, Data: data})
		deps = append(deps, DependencyInfo{ArchivePath: archivePath, Kind: string(art.Kind)})
	}
	return entries, deps, nil
}

// checkReserved rejects module claims on paths the assembler generates.
func checkReserved(archivePath, source string) error {
	reserved := archivePath == InfoName || archivePath == MainName ||
		archivePath == DepsDir || strings.HasPrefix(archivePath, DepsDir+"/")
	if !reserved {
		return nil
	}
	return &manifest.ConflictError{Conflicts: []manifest.Conflict{{
		ArchivePath: archivePath,
		Sources:     []string{source, "generated by the assembler"},
	}}}
}
