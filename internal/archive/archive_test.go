// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/pybundle/pybundle/internal/entrypoint"
	"github.com/pybundle/pybundle/internal/layout"
	"github.com/pybundle/pybundle/internal/manifest"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// fixture builds a two-module manifest and its layout plan.
func fixture(t *testing.T, entry entrypoint.Spec, opts manifest.BuildOptions) Inputs {
	t.Helper()
	src := t.TempDir()
	mainPy := writeSource(t, src, "main.py", "print('hello')\n")
	utilPy := writeSource(t, src, "util.py", "VALUE = 1\n")

	var b manifest.Builder
	b.AddModule(mainPy, "app/main.py")
	b.AddModule(utilPy, "app/util.py")
	m, err := b.Build(entry, opts)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := layout.Compute(m.Modules, m.Options)
	if err != nil {
		t.Fatal(err)
	}
	return Inputs{
		Manifest: m,
		Plan:     plan,
		Output:   filepath.Join(t.TempDir(), "app"),
	}
}

func TestGenerateStub(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		interpreters []string
		want         []string
	}{
		{
			name: "default search order",
			want: []string{"#!/bin/sh\n", "python3 python", "exit 127"},
		},
		{
			name:         "constrained interpreters",
			interpreters: []string{"python3.12", "python3.11"},
			want:         []string{"python3.12 python3.11", "exit 127"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			stub, err := GenerateStub(tt.interpreters)
			if err != nil {
				t.Fatalf("GenerateStub() error = %v", err)
			}
			if !strings.HasPrefix(stub, "#!") {
				t.Errorf("stub does not start with a shebang: %q", stub[:20])
			}
			for _, want := range tt.want {
				if !strings.Contains(stub, want) {
					t.Errorf("stub missing %q:\n%s", want, stub)
				}
			}
		})
	}
}

func TestAssemble_ProducesExecutableArchive(t *testing.T) {
	t.Parallel()

	in := fixture(t, entrypoint.Spec{}, manifest.DefaultOptions())
	res, err := NewAssembler(nil).Assemble(context.Background(), in)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	st, err := os.Stat(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode().Perm() != 0o755 {
		t.Errorf("output mode = %v, want 0755", st.Mode().Perm())
	}
	if res.CompanionPath != "" {
		t.Errorf("companion path = %q, want none without the emit-manifest option", res.CompanionPath)
	}

	info, err := Inspect(res.Path)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if info.StubLine != "#!/bin/sh" {
		t.Errorf("stub line = %q, want %q", info.StubLine, "#!/bin/sh")
	}
	wantEntries := []string{InfoName, MainName, "app/__init__.py", "app/main.py", "app/util.py"}
	if len(info.Entries) != len(wantEntries) {
		t.Fatalf("entries = %v, want %v", info.Entries, wantEntries)
	}
	for i, want := range wantEntries {
		if info.Entries[i] != want {
			t.Errorf("entries[%d] = %q, want %q", i, info.Entries[i], want)
		}
	}

	// No explicit entry point: the first module in input order wins.
	if info.Metadata.Entry.Kind != string(entrypoint.KindModule) || info.Metadata.Entry.Module != "app.main" {
		t.Errorf("entry = %+v, want module app.main", info.Metadata.Entry)
	}
	if info.Metadata.Fingerprint != res.Fingerprint {
		t.Errorf("embedded fingerprint %q != result fingerprint %q", info.Metadata.Fingerprint, res.Fingerprint)
	}
	if !info.Metadata.ZipSafe {
		t.Error("metadata not marked zip-safe")
	}
}

func TestAssemble_MainFileResolvesThroughStripPrefix(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	mainPy := writeSource(t, src, "main.py", "print('hi')\n")

	opts := manifest.DefaultOptions()
	opts.StripPrefix = "src"

	var b manifest.Builder
	b.AddModule(mainPy, "src/app/main.py")
	m, err := b.Build(entrypoint.Spec{MainFile: "src/app/main.py"}, opts)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := layout.Compute(m.Modules, m.Options)
	if err != nil {
		t.Fatal(err)
	}

	res, err := NewAssembler(nil).Assemble(context.Background(), Inputs{
		Manifest: m,
		Plan:     plan,
		Output:   filepath.Join(t.TempDir(), "app"),
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if res.Entry.Module != "app.main" {
		t.Errorf("entry module = %q, want %q", res.Entry.Module, "app.main")
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	t.Parallel()

	in := fixture(t, entrypoint.Spec{Module: "app.main"}, manifest.DefaultOptions())
	asm := NewAssembler(nil)

	first := filepath.Join(t.TempDir(), "a")
	second := filepath.Join(t.TempDir(), "b")

	in.Output = first
	if _, err := asm.Assemble(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	in.Output = second
	if _, err := asm.Assemble(context.Background(), in); err != nil {
		t.Fatal(err)
	}

	a, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("two reproducible builds of the same manifest differ")
	}
}

func TestAssemble_EmbedsArtifacts(t *testing.T) {
	t.Parallel()

	opts := manifest.DefaultOptions()
	opts.EmitManifest = true
	in := fixture(t, entrypoint.Spec{}, opts)
	wheelDir := t.TempDir()
	wheel := writeSource(t, wheelDir, "requests-2.31.0-py3-none-any.whl", "wheel-bytes")
	in.Artifacts = []manifest.PrebuiltArtifact{{LocalPath: wheel, Kind: "wheel"}}

	res, err := NewAssembler(nil).Assemble(context.Background(), in)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	info, err := Inspect(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	wantPath := ".deps/requests-2.31.0-py3-none-any.whl"
	if len(info.Metadata.Dependencies) != 1 || info.Metadata.Dependencies[0].ArchivePath != wantPath {
		t.Fatalf("dependencies = %+v, want one at %q", info.Metadata.Dependencies, wantPath)
	}

	data, err := os.ReadFile(res.CompanionPath)
	if err != nil {
		t.Fatal(err)
	}
	var companion Companion
	if err := yaml.Unmarshal(data, &companion); err != nil {
		t.Fatal(err)
	}
	if len(companion.PrebuiltLibraries) != 1 || companion.PrebuiltLibraries[0] != wantPath {
		t.Errorf("companion prebuiltLibraries = %v, want [%q]", companion.PrebuiltLibraries, wantPath)
	}

	// Keys come out in sorted order.
	text := string(data)
	if !(strings.Index(text, "fingerprint:") < strings.Index(text, "modules:") &&
		strings.Index(text, "modules:") < strings.Index(text, "prebuiltLibraries:") &&
		strings.Index(text, "prebuiltLibraries:") < strings.Index(text, "requirements:")) {
		t.Errorf("companion keys not sorted:\n%s", text)
	}
}

func TestAssemble_RepeatedArtifactEmbedsOnce(t *testing.T) {
	t.Parallel()

	// Overlapping requirements (say "flask" and "flask==2.3.1") resolve to
	// the same file; that is not a conflict.
	in := fixture(t, entrypoint.Spec{}, manifest.DefaultOptions())
	wheel := writeSource(t, t.TempDir(), "flask-2.3.1-py3-none-any.whl", "wheel-bytes")
	in.Artifacts = []manifest.PrebuiltArtifact{
		{LocalPath: wheel, Kind: "wheel"},
		{LocalPath: wheel, Kind: "wheel"},
	}

	res, err := NewAssembler(nil).Assemble(context.Background(), in)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	info, err := Inspect(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Metadata.Dependencies) != 1 {
		t.Fatalf("dependencies = %+v, want exactly one", info.Metadata.Dependencies)
	}
	count := 0
	for _, e := range info.Entries {
		if e == ".deps/flask-2.3.1-py3-none-any.whl" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("artifact embedded %d times, want once", count)
	}
}

func TestAssemble_ArtifactBasenameConflict(t *testing.T) {
	t.Parallel()

	in := fixture(t, entrypoint.Spec{}, manifest.DefaultOptions())
	a := writeSource(t, t.TempDir(), "pkg-1.0-py3-none-any.whl", "a")
	b := writeSource(t, t.TempDir(), "pkg-1.0-py3-none-any.whl", "b")
	in.Artifacts = []manifest.PrebuiltArtifact{
		{LocalPath: a, Kind: "wheel"},
		{LocalPath: b, Kind: "wheel"},
	}

	_, err := NewAssembler(nil).Assemble(context.Background(), in)
	if !errors.Is(err, manifest.ErrConflict) {
		t.Fatalf("Assemble() error = %v, want conflict", err)
	}
}

func TestAssemble_ReservedPathRejected(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	rogue := writeSource(t, src, "rogue.py", "")

	var b manifest.Builder
	b.AddModule(rogue, MainName)
	m, err := b.Build(entrypoint.Spec{}, manifest.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	plan, err := layout.Compute(m.Modules, m.Options)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewAssembler(nil).Assemble(context.Background(), Inputs{
		Manifest: m,
		Plan:     plan,
		Output:   filepath.Join(t.TempDir(), "app"),
	})
	if !errors.Is(err, manifest.ErrConflict) {
		t.Fatalf("Assemble() error = %v, want conflict", err)
	}
}

func TestAssemble_WriteFailureLeavesNoOutput(t *testing.T) {
	t.Parallel()

	in := fixture(t, entrypoint.Spec{}, manifest.DefaultOptions())
	in.Output = filepath.Join(t.TempDir(), "missing", "nested", "app")

	_, err := NewAssembler(nil).Assemble(context.Background(), in)
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("Assemble() error = %v, want %v", err, ErrWrite)
	}
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("error is %T, want *WriteError", err)
	}
	if _, statErr := os.Stat(in.Output); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("output path exists after failed write")
	}
}

func TestGenerateBootstrap_EmbedsMetadata(t *testing.T) {
	t.Parallel()

	meta := Metadata{
		CreatedBy:   "pybundle",
		Entry:       EntryInfo{Kind: string(entrypoint.KindScript), Script: "serve"},
		Fingerprint: "abc123",
		Format:      FormatVersion,
		ZipSafe:     true,
	}
	bootstrap, err := generateBootstrap(meta)
	if err != nil {
		t.Fatalf("generateBootstrap() error = %v", err)
	}
	if strings.Contains(bootstrap, "@METADATA@") {
		t.Error("metadata placeholder not substituted")
	}
	for _, want := range []string{`"fingerprint":"abc123"`, `"script":"serve"`, "console_scripts"} {
		if !strings.Contains(bootstrap, want) {
			t.Errorf("bootstrap missing %q", want)
		}
	}
}

func TestInspect_RejectsNonArchive(t *testing.T) {
	t.Parallel()

	path := writeSource(t, t.TempDir(), "plain.txt", "just text\n")
	if _, err := Inspect(path); err == nil {
		t.Fatal("Inspect() accepted a non-archive file")
	}
}
