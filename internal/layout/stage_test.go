// SPDX-License-Identifier: MPL-2.0

package layout

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/pybundle/pybundle/internal/manifest"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	full := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return full
}

func TestPlan_Stage(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	mainSrc := writeSource(t, srcDir, "app/main.py", "print('hi')\n")
	dataSrc := writeSource(t, srcDir, "app/data.txt", "payload")

	plan, err := Compute([]manifest.ModuleEntry{
		{SourcePath: mainSrc, ArchivePath: "app/main.py"},
		{SourcePath: dataSrc, ArchivePath: "app/data.txt"},
	}, manifest.DefaultOptions())
	if err != nil {
		t.Fatalf("Compute(): %v", err)
	}

	dst := memfs.New()
	if err := plan.Stage(context.Background(), dst, "stage"); err != nil {
		t.Fatalf("Stage() returned unexpected error: %v", err)
	}

	got, err := util.ReadFile(dst, "stage/app/main.py")
	if err != nil {
		t.Fatalf("staged module missing: %v", err)
	}
	if string(got) != "print('hi')\n" {
		t.Errorf("staged content = %q, want source bytes", got)
	}
	marker, err := util.ReadFile(dst, "stage/app/"+MarkerName)
	if err != nil {
		t.Fatalf("staged package marker missing: %v", err)
	}
	if len(marker) != 0 {
		t.Errorf("package marker should be empty, got %d bytes", len(marker))
	}
}

func TestPlan_StagePurgesStaleFiles(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	mainSrc := writeSource(t, srcDir, "main.py", "print('hi')\n")

	plan, err := Compute([]manifest.ModuleEntry{
		{SourcePath: mainSrc, ArchivePath: "main.py"},
	}, manifest.DefaultOptions())
	if err != nil {
		t.Fatalf("Compute(): %v", err)
	}

	dst := memfs.New()
	if err := util.WriteFile(dst, "stage/leftover.py", []byte("old"), 0o644); err != nil {
		t.Fatalf("seeding stale file: %v", err)
	}

	if err := plan.Stage(context.Background(), dst, "stage"); err != nil {
		t.Fatalf("Stage() returned unexpected error: %v", err)
	}

	if _, err := dst.Stat("stage/leftover.py"); !os.IsNotExist(err) {
		t.Errorf("stale file should be purged, Stat err = %v", err)
	}
	if _, err := dst.Stat("stage/main.py"); err != nil {
		t.Errorf("fresh file should exist, Stat err = %v", err)
	}
}

func TestPlan_StageMissingSource(t *testing.T) {
	t.Parallel()

	plan, err := Compute([]manifest.ModuleEntry{
		{SourcePath: filepath.Join(t.TempDir(), "nope.py"), ArchivePath: "nope.py"},
	}, manifest.DefaultOptions())
	if err != nil {
		t.Fatalf("Compute(): %v", err)
	}

	if err := plan.Stage(context.Background(), memfs.New(), "stage"); err == nil {
		t.Fatal("Stage() returned nil error, want read failure")
	}
}

func TestPlan_StageHonorsCancellation(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	mainSrc := writeSource(t, srcDir, "main.py", "x = 1\n")

	plan, err := Compute([]manifest.ModuleEntry{
		{SourcePath: mainSrc, ArchivePath: "main.py"},
	}, manifest.DefaultOptions())
	if err != nil {
		t.Fatalf("Compute(): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := plan.Stage(ctx, memfs.New(), "stage"); err == nil {
		t.Fatal("Stage() with cancelled context returned nil error")
	}
}
