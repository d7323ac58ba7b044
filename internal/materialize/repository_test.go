// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"testing"

	"github.com/pybundle/pybundle/internal/manifest"
	"github.com/pybundle/pybundle/pkg/pydist"
)

func optionsWith(useWheels bool, platformTags ...string) manifest.BuildOptions {
	opts := manifest.DefaultOptions()
	opts.OutputPath = "out/app.pyz"
	opts.UseWheels = useWheels
	opts.PlatformTags = platformTags
	return opts
}

func TestScanRepository(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifactFile(t, dir, "requests-2.31.0-py3-none-any.whl")
	writeArtifactFile(t, dir, "requests-2.30.0-py3-none-any.whl")
	writeArtifactFile(t, dir, "flask-2.3.1-py3-none-any.whl")
	writeArtifactFile(t, dir, "README.txt")

	cands, err := scanRepository(manifest.RepositoryRef(dir), "requests")
	if err != nil {
		t.Fatalf("scanRepository() returned unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("len(candidates) = %d, want 2 (other names and non-artifacts skipped)", len(cands))
	}
	for _, c := range cands {
		if c.Local == "" {
			t.Errorf("repository candidate %q should carry a local path", c.File.Filename)
		}
	}
}

func TestScanRepository_NormalizedNameMatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifactFile(t, dir, "Typing_Extensions-4.8.0-py3-none-any.whl")

	cands, err := scanRepository(manifest.RepositoryRef(dir), "typing-extensions")
	if err != nil {
		t.Fatalf("scanRepository() returned unexpected error: %v", err)
	}
	if len(cands) != 1 {
		t.Errorf("len(candidates) = %d, want 1 (names compare normalized)", len(cands))
	}
}

func TestSelectCandidate_HighestVersionWins(t *testing.T) {
	t.Parallel()

	cands := []candidate{
		{File: mustDistFile(t, "requests-2.30.0-py3-none-any.whl"), Local: "a"},
		{File: mustDistFile(t, "requests-2.31.0-py3-none-any.whl"), Local: "b"},
		{File: mustDistFile(t, "requests-2.29.0-py3-none-any.whl"), Local: "c"},
	}
	best, ok := selectCandidate(cands, mustSpecifier(t, "requests"), optionsWith(true))
	if !ok {
		t.Fatal("selectCandidate() found no candidate, want one")
	}
	if best.File.Version.Raw != "2.31.0" {
		t.Errorf("selected version = %q, want highest", best.File.Version.Raw)
	}
}

func TestSelectCandidate_ConstraintFiltering(t *testing.T) {
	t.Parallel()

	cands := []candidate{
		{File: mustDistFile(t, "requests-2.30.0-py3-none-any.whl")},
		{File: mustDistFile(t, "requests-2.31.0-py3-none-any.whl")},
	}
	best, ok := selectCandidate(cands, mustSpecifier(t, "requests<2.31"), optionsWith(true))
	if !ok {
		t.Fatal("selectCandidate() found no candidate, want one")
	}
	if best.File.Version.Raw != "2.30.0" {
		t.Errorf("selected version = %q, want the constraint-satisfying one", best.File.Version.Raw)
	}
}

func TestSelectCandidate_WheelsExcluded(t *testing.T) {
	t.Parallel()

	cands := []candidate{
		{File: mustDistFile(t, "somepackage-1.2.0-py3-none-any.whl")},
		{File: mustDistFile(t, "somepackage-1.1.0-py3.egg")},
	}

	best, ok := selectCandidate(cands, mustSpecifier(t, "somepackage"), optionsWith(false))
	if !ok {
		t.Fatal("selectCandidate() found no candidate, want the egg")
	}
	if best.File.Kind != pydist.KindEgg {
		t.Errorf("selected kind = %q, want egg when wheels are excluded", best.File.Kind)
	}
}

func TestSelectCandidate_PlatformFiltering(t *testing.T) {
	t.Parallel()

	cands := []candidate{
		{File: mustDistFile(t, "cryptography-41.0.0-cp311-abi3-manylinux_2_28_x86_64.whl")},
		{File: mustDistFile(t, "cryptography-41.0.0-cp311-abi3-macosx_10_12_universal2.whl")},
	}

	best, ok := selectCandidate(cands, mustSpecifier(t, "cryptography"),
		optionsWith(true, "manylinux_2_28_x86_64"))
	if !ok {
		t.Fatal("selectCandidate() found no candidate, want the matching platform")
	}
	if best.File.PlatformTags[0] != "manylinux_2_28_x86_64" {
		t.Errorf("selected platform = %v, want the configured target", best.File.PlatformTags)
	}

	if _, ok := selectCandidate(cands, mustSpecifier(t, "cryptography"),
		optionsWith(true, "win_amd64")); ok {
		t.Error("selectCandidate() matched an incompatible platform, want none")
	}
}

func TestSelectCandidate_PrereleasesNeedOptIn(t *testing.T) {
	t.Parallel()

	cands := []candidate{
		{File: mustDistFile(t, "somepackage-2.0.0rc1-py3-none-any.whl")},
		{File: mustDistFile(t, "somepackage-1.9.0-py3-none-any.whl")},
	}

	best, ok := selectCandidate(cands, mustSpecifier(t, "somepackage"), optionsWith(true))
	if !ok || best.File.Version.Raw != "1.9.0" {
		t.Errorf("bare specifier selected %v, want stable release only", best.File.Version.Raw)
	}

	best, ok = selectCandidate(cands, mustSpecifier(t, "somepackage==2.0.0rc1"), optionsWith(true))
	if !ok || best.File.Version.Raw != "2.0.0rc1" {
		t.Errorf("explicit prerelease constraint selected %v, want the prerelease", best.File.Version.Raw)
	}
}

func mustDistFile(t *testing.T, filename string) pydist.DistFile {
	t.Helper()
	df, err := pydist.ParseFilename(filename)
	if err != nil {
		t.Fatalf("ParseFilename(%q) returned unexpected error: %v", filename, err)
	}
	return df
}
