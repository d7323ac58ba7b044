// SPDX-License-Identifier: MPL-2.0

package bundlefile

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ErrPyproject is the sentinel error wrapped by PyprojectError.
var ErrPyproject = errors.New("pyproject import failed")

type (
	// Pyproject is what the importer extracts from a pyproject.toml.
	Pyproject struct {
		Name         string
		Requirements []string
	}

	// PyprojectError is returned when a pyproject.toml cannot be read,
	// parsed, or names an unknown optional-dependency group. It wraps
	// ErrPyproject for errors.Is() compatibility.
	PyprojectError struct {
		Path   string
		Reason string
	}

	// pyprojectFile mirrors the PEP 621 [project] table, the only part
	// the importer reads.
	pyprojectFile struct {
		Project struct {
			Name                 string              `toml:"name"`
			Dependencies         []string            `toml:"dependencies"`
			OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		} `toml:"project"`
	}
)

// Error implements the error interface for PyprojectError.
func (e *PyprojectError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *PyprojectError) Unwrap() error { return ErrPyproject }

// LoadPyproject imports the [project] dependencies from a pyproject.toml,
// plus any named optional-dependency groups, preserving declaration order
// and dropping duplicates.
func LoadPyproject(path string, groups ...string) (*Pyproject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PyprojectError{Path: path, Reason: err.Error()}
	}

	var file pyprojectFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, &PyprojectError{Path: path, Reason: fmt.Sprintf("parsing: %v", err)}
	}

	out := &Pyproject{Name: file.Project.Name}
	seen := make(map[string]struct{})
	add := func(reqs []string) {
		for _, r := range reqs {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out.Requirements = append(out.Requirements, r)
		}
	}

	add(file.Project.Dependencies)
	for _, group := range groups {
		reqs, ok := file.Project.OptionalDependencies[group]
		if !ok {
			return nil, &PyprojectError{
				Path:   path,
				Reason: fmt.Sprintf("optional-dependency group %q not found", group),
			}
		}
		add(reqs)
	}
	return out, nil
}
