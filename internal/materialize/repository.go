// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/pybundle/pybundle/internal/manifest"
	"github.com/pybundle/pybundle/pkg/pydist"
)

// candidate is one artifact that could satisfy a requirement: either a
// file already on disk (Local set) or a link harvested from a remote
// index page (URL set).
type candidate struct {
	File  pydist.DistFile
	Local string
	URL   string
}

// scanRepository lists artifacts in one repository directory matching the
// distribution name. Files that parse as neither wheel nor egg are
// skipped silently; repositories commonly hold unrelated files.
func scanRepository(repo manifest.RepositoryRef, name pydist.DistName) ([]candidate, error) {
	entries, err := os.ReadDir(string(repo))
	if err != nil {
		return nil, fmt.Errorf("failed to read repository %q: %w", repo, err)
	}

	var out []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		df, err := pydist.ParseFilename(e.Name())
		if err != nil {
			continue
		}
		if df.Name.Normalize() != name.Normalize() {
			continue
		}
		out = append(out, candidate{
			File:  df,
			Local: filepath.Join(string(repo), e.Name()),
		})
	}
	return out, nil
}

// admissible reports whether a candidate survives the option filters:
// wheels may be excluded wholesale, and wheel platform tags must be
// compatible with the configured targets.
func admissible(c candidate, opts manifest.BuildOptions) bool {
	if c.File.Kind == pydist.KindWheel {
		if !opts.UseWheels {
			return false
		}
		return pydist.PlatformCompatible(c.File.PlatformTags, opts.PlatformTags)
	}
	return pydist.PlatformCompatible(c.File.PlatformTags, opts.PlatformTags)
}

// selectCandidate filters candidates against the specifier and options
// and picks the best match: highest version first, wheels preferred over
// eggs at equal version, stable filename tie-break. ok=false means no
// candidate was acceptable.
func selectCandidate(cands []candidate, spec pydist.Specifier, opts manifest.BuildOptions) (candidate, bool) {
	acceptable := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if !admissible(c, opts) {
			continue
		}
		if c.File.Version.IsPrerelease() && !spec.AllowsPrereleases() {
			continue
		}
		ok, err := spec.Matches(c.File.Version)
		if err != nil || !ok {
			continue
		}
		acceptable = append(acceptable, c)
	}
	if len(acceptable) == 0 {
		return candidate{}, false
	}

	slices.SortFunc(acceptable, func(a, b candidate) int {
		if cmp := b.File.Version.Compare(a.File.Version); cmp != 0 {
			return cmp
		}
		if a.File.Kind != b.File.Kind {
			if a.File.Kind == pydist.KindWheel {
				return -1
			}
			return 1
		}
		return strings.Compare(a.File.Filename, b.File.Filename)
	})
	return acceptable[0], true
}
