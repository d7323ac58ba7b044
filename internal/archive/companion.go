// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"fmt"

	"github.com/google/renameio"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/pybundle/pybundle/internal/layout"
	"github.com/pybundle/pybundle/internal/manifest"
)

// companionSuffix is appended to the output path to name the sidecar
// manifest written next to every archive.
const companionSuffix = ".manifest.yaml"

// Companion is the human-readable sidecar summarizing what an archive
// embeds. Fields are declared in key order so the YAML output is sorted.
type Companion struct {
	Fingerprint       string   `yaml:"fingerprint"`
	Modules           []string `yaml:"modules"`
	PrebuiltLibraries []string `yaml:"prebuiltLibraries"`
	Requirements      []string `yaml:"requirements"`
}

// CompanionPath returns the sidecar path for an archive output path.
func CompanionPath(output string) string { return output + companionSuffix }

// newCompanion summarizes a build. All lists are sorted copies.
func newCompanion(fingerprint string, plan *layout.Plan, reqs []manifest.Requirement, deps []DependencyInfo) Companion {
	c := Companion{
		Fingerprint:       fingerprint,
		Modules:           slices.Clone(plan.ModulePaths()),
		PrebuiltLibraries: make([]string, 0, len(deps)),
		Requirements:      make([]string, 0, len(reqs)),
	}
	for _, d := range deps {
		c.PrebuiltLibraries = append(c.PrebuiltLibraries, d.ArchivePath)
	}
	for _, r := range reqs {
		c.Requirements = append(c.Requirements, r.String())
	}
	slices.Sort(c.Modules)
	slices.Sort(c.PrebuiltLibraries)
	slices.Sort(c.Requirements)
	return c
}

// write serializes the companion and places it atomically next to the
// archive.
func (c Companion) write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("serializing companion manifest: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return &WriteError{Path: path, Cause: err}
	}
	return nil
}
