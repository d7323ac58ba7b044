// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pybundle/pybundle/internal/archive"
	"github.com/pybundle/pybundle/internal/config"
	"github.com/pybundle/pybundle/internal/depgraph"
	"github.com/pybundle/pybundle/internal/entrypoint"
	"github.com/pybundle/pybundle/internal/issue"
	"github.com/pybundle/pybundle/internal/layout"
	"github.com/pybundle/pybundle/internal/manifest"
	"github.com/pybundle/pybundle/internal/materialize"
	"github.com/pybundle/pybundle/pkg/bundlefile"
)

// stubProvider returns a fixed configuration without touching the filesystem.
type stubProvider struct {
	cfg *config.Config
	err error
}

func (s *stubProvider) Load(_ context.Context, _ config.LoadOptions) (*config.Config, error) {
	return s.cfg, s.err
}

func boolPtr(v bool) *bool { return &v }

func writeProject(t *testing.T, bundleContent string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, bundlefile.DefaultFileName), []byte(bundleContent), 0o644); err != nil {
		t.Fatal(err)
	}
	srcDir := filepath.Join(dir, "src")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "main.py"), []byte("print('ok')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newTestService(t *testing.T) *buildService {
	t.Helper()
	return newBuildService(&stubProvider{cfg: config.DefaultConfig()}, &bytes.Buffer{})
}

func TestMergeOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fromFile bundlefile.Options
		req      BuildRequest
		check    func(t *testing.T, opts manifest.BuildOptions)
	}{
		{
			name: "defaults survive empty inputs",
			check: func(t *testing.T, opts manifest.BuildOptions) {
				if !opts.ZipSafe || !opts.UseWheels || !opts.Reproducible {
					t.Errorf("defaults lost: %+v", opts)
				}
			},
		},
		{
			name:     "bundlefile overrides defaults",
			fromFile: bundlefile.Options{ZipSafe: boolPtr(false), StripPrefix: "src", NoIndex: true},
			check: func(t *testing.T, opts manifest.BuildOptions) {
				if opts.ZipSafe {
					t.Error("bundlefile zipSafe=false did not override the default")
				}
				if opts.StripPrefix != "src" || !opts.NoIndex {
					t.Errorf("bundlefile options not applied: %+v", opts)
				}
			},
		},
		{
			name:     "CLI flags override the bundlefile",
			fromFile: bundlefile.Options{ZipSafe: boolPtr(false), StripPrefix: "src", InterpreterConstraints: []string{"python3.8"}},
			req: BuildRequest{
				ZipSafe:      boolPtr(true),
				StripPrefix:  strPtr(""),
				Interpreters: []string{"python3.12"},
				DisableCache: true,
			},
			check: func(t *testing.T, opts manifest.BuildOptions) {
				if !opts.ZipSafe {
					t.Error("CLI zip-safe did not override the bundlefile")
				}
				if opts.StripPrefix != "" {
					t.Errorf("CLI strip-prefix did not clear the bundlefile value, got %q", opts.StripPrefix)
				}
				if len(opts.InterpreterConstraints) != 1 || opts.InterpreterConstraints[0] != "python3.12" {
					t.Errorf("interpreters = %v, want [python3.12]", opts.InterpreterConstraints)
				}
				if !opts.DisableCache {
					t.Error("CLI disable-cache not applied")
				}
			},
		},
		{
			name: "unset CLI flags leave bundlefile values alone",
			fromFile: bundlefile.Options{
				UseWheels:    boolPtr(false),
				Reproducible: boolPtr(false),
			},
			req: BuildRequest{NoIndex: true},
			check: func(t *testing.T, opts manifest.BuildOptions) {
				if opts.UseWheels || opts.Reproducible {
					t.Errorf("bundlefile values clobbered by unset flags: %+v", opts)
				}
				if !opts.NoIndex {
					t.Error("CLI no-index not applied")
				}
			},
		},
		{
			name: "verbose raises verbosity",
			req:  BuildRequest{Verbose: true},
			check: func(t *testing.T, opts manifest.BuildOptions) {
				if opts.Verbosity != 1 {
					t.Errorf("verbosity = %d, want 1", opts.Verbosity)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.check(t, mergeOptions(tt.fromFile, tt.req))
		})
	}
}

func TestMergeEntry(t *testing.T) {
	t.Parallel()

	fileEntry := bundlefile.Entry{Module: "app.main"}

	tests := []struct {
		name string
		req  BuildRequest
		want entrypoint.Spec
	}{
		{
			name: "bundlefile entry used without CLI designation",
			want: entrypoint.Spec{Module: "app.main"},
		},
		{
			name: "CLI designation replaces the bundlefile entirely",
			req:  BuildRequest{Script: "serve"},
			want: entrypoint.Spec{Script: "serve"},
		},
		{
			name: "conflicting CLI flags are preserved for validation",
			req:  BuildRequest{EntryModule: "a", Script: "b"},
			want: entrypoint.Spec{Module: "a", Script: "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := mergeEntry(fileEntry, tt.req); got != tt.want {
				t.Errorf("mergeEntry() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassifyBuildError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"bundlefile not found", &bundlefile.NotFoundError{Dir: "."}, issue.BundlefileNotFoundId},
		{"invalid bundlefile", &bundlefile.InvalidBundleError{Path: "b.cue", Reason: "x"}, issue.BundlefileParseErrorId},
		{"ambiguous entry", &entrypoint.AmbiguousEntryPointError{Supplied: []string{"module", "script"}}, issue.AmbiguousEntryPointId},
		{"invalid entry", &entrypoint.InvalidEntryPointError{Value: "1bad", Reason: "x"}, issue.InvalidEntryPointId},
		{"path conflict", &manifest.ConflictError{}, issue.PathConflictId},
		{"traversal", &layout.TraversalError{LogicalPath: "../x"}, issue.PathTraversalId},
		{
			"unresolved aggregate wins over its network causes",
			&materialize.UnresolvedDependencyError{Failures: []materialize.ResolutionFailure{
				{Requirement: "requests", Cause: &materialize.NetworkError{URL: "https://example.invalid", Cause: errors.New("timeout")}},
			}},
			issue.UnresolvedDependencyId,
		},
		{"bare network failure", &materialize.NetworkError{URL: "https://example.invalid", Cause: errors.New("refused")}, issue.NetworkFailureId},
		{"write failure", &archive.WriteError{Path: "out", Cause: errors.New("denied")}, issue.ArchiveWriteFailedId},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classifyBuildError(tt.err)
			var svcErr *ServiceError
			if !errors.As(got, &svcErr) {
				t.Fatalf("classifyBuildError() = %T, want *ServiceError", got)
			}
			if svcErr.IssueID != tt.want {
				t.Errorf("issue ID = %d, want %d", svcErr.IssueID, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classified error lost the original in its chain")
			}
		})
	}

	t.Run("unknown errors pass through", func(t *testing.T) {
		t.Parallel()
		plain := errors.New("boom")
		if got := classifyBuildError(plain); got != plain {
			t.Errorf("classifyBuildError() = %v, want the error unchanged", got)
		}
	})
}

func TestBuildService_BuildsArchive(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, `name: "demo"
modules: [{path: "src", archivePath: "app"}]
entry: module: "app.main"
`)

	svc := newTestService(t)
	result, err := svc.Build(context.Background(), BuildRequest{Dir: dir})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if result.Path != filepath.Join(dir, "demo") {
		t.Errorf("output path = %q, want %q", result.Path, filepath.Join(dir, "demo"))
	}
	if result.Entry.Module != "app.main" {
		t.Errorf("entry = %+v, want module app.main", result.Entry)
	}

	info, err := archive.Inspect(result.Path)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	found := false
	for _, e := range info.Entries {
		if e == "app/main.py" {
			found = true
		}
	}
	if !found {
		t.Errorf("archive entries %v missing app/main.py", info.Entries)
	}
}

func TestBuildService_OutputFlagWins(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, `name: "demo"
modules: [{path: "src", archivePath: "app"}]
`)
	out := filepath.Join(t.TempDir(), "custom")

	svc := newTestService(t)
	result, err := svc.Build(context.Background(), BuildRequest{Dir: dir, Output: out})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.Path != out {
		t.Errorf("output path = %q, want %q", result.Path, out)
	}
}

func TestBuildService_MissingBundlefile(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	_, err := svc.Build(context.Background(), BuildRequest{Dir: t.TempDir()})
	if err == nil {
		t.Fatal("Build() succeeded without a bundlefile")
	}
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.IssueID != issue.BundlefileNotFoundId {
		t.Errorf("error = %v, want ServiceError with BundlefileNotFoundId", err)
	}
}

func TestBuildService_AmbiguousCLIEntry(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, `name: "demo"
modules: [{path: "src", archivePath: "app"}]
`)

	svc := newTestService(t)
	_, err := svc.Build(context.Background(), BuildRequest{
		Dir:         dir,
		EntryModule: "app.main",
		Script:      "serve",
	})
	if err == nil {
		t.Fatal("Build() accepted two entry-point designations")
	}
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.IssueID != issue.AmbiguousEntryPointId {
		t.Errorf("error = %v, want ServiceError with AmbiguousEntryPointId", err)
	}
	if !errors.Is(err, entrypoint.ErrAmbiguousEntryPoint) {
		t.Error("ambiguity sentinel lost from the chain")
	}
}

func TestBuildService_IncludesAggregateTransitively(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, `name: "demo"
modules: [{path: "src", archivePath: "app"}]
entry: module: "app.main"
includes: ["lib", "lib"]
`)
	libDir := filepath.Join(dir, "lib")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatal(err)
	}
	libBundle := `name: "lib"
modules: [{path: "util.py", archivePath: "app/util.py"}]
`
	if err := os.WriteFile(filepath.Join(libDir, bundlefile.DefaultFileName), []byte(libBundle), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(libDir, "util.py"), []byte("VALUE = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t)
	result, err := svc.Build(context.Background(), BuildRequest{Dir: dir})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	info, err := archive.Inspect(result.Path)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	var mainCount, utilCount int
	for _, e := range info.Entries {
		switch e {
		case "app/main.py":
			mainCount++
		case "app/util.py":
			utilCount++
		}
	}
	if mainCount != 1 {
		t.Errorf("app/main.py appears %d times, want 1", mainCount)
	}
	// Listed twice in includes, contributed once.
	if utilCount != 1 {
		t.Errorf("app/util.py appears %d times, want 1", utilCount)
	}
}

func TestBuildService_IncludeCycleRejected(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, `name: "demo"
modules: [{path: "src", archivePath: "app"}]
includes: ["lib"]
`)
	libDir := filepath.Join(dir, "lib")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatal(err)
	}
	libBundle := `name: "lib"
includes: [".."]
`
	if err := os.WriteFile(filepath.Join(libDir, bundlefile.DefaultFileName), []byte(libBundle), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := newTestService(t)
	_, err := svc.Build(context.Background(), BuildRequest{Dir: dir})
	if err == nil {
		t.Fatal("Build() accepted a bundle include cycle")
	}
	if !errors.Is(err, depgraph.ErrCycle) {
		t.Fatalf("error = %v, want the cycle sentinel in the chain", err)
	}
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.IssueID != issue.BundlefileParseErrorId {
		t.Errorf("error = %v, want ServiceError with BundlefileParseErrorId", err)
	}
}

func TestHTTPClientFor(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Network.Timeout = 5 * time.Second
	client := httpClientFor(cfg)
	if client == nil || client.Timeout != 5*time.Second {
		t.Fatalf("httpClientFor() = %+v, want client with the configured timeout", client)
	}

	cfg.Network.Timeout = 0
	if httpClientFor(cfg) != nil {
		t.Error("zero timeout should keep the materializer's default client")
	}
}

func TestBuildService_EmitManifestWritesCompanion(t *testing.T) {
	t.Parallel()

	dir := writeProject(t, `name: "demo"
modules: [{path: "src", archivePath: "app"}]
`)

	svc := newTestService(t)
	result, err := svc.Build(context.Background(), BuildRequest{Dir: dir, EmitManifest: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.CompanionPath == "" {
		t.Fatal("no companion path with emit-manifest set")
	}
	if _, err := os.Stat(result.CompanionPath); err != nil {
		t.Errorf("companion manifest missing: %v", err)
	}
}

func strPtr(v string) *string { return &v }
