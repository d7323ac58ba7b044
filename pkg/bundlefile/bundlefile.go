// SPDX-License-Identifier: MPL-2.0

// Package bundlefile defines the schema and parsing for bundlefile.cue,
// the declarative build configuration, plus the pyproject.toml import
// used to seed one.
package bundlefile

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pybundle/pybundle/pkg/cueutil"
)

//go:embed schema.cue
var bundleSchema string

// DefaultFileName is the bundlefile looked up in the working directory.
const DefaultFileName = "bundlefile.cue"

var (
	// ErrNotFound is the sentinel error wrapped by NotFoundError.
	ErrNotFound = errors.New("bundlefile not found")
	// ErrInvalidBundle is the sentinel error wrapped by InvalidBundleError.
	ErrInvalidBundle = errors.New("invalid bundlefile")
)

type (
	// Bundle is a decoded bundlefile.
	Bundle struct {
		Name         string      `json:"name"`
		Output       string      `json:"output,omitempty"`
		Entry        Entry       `json:"entry,omitempty"`
		Modules      []ModuleRef `json:"modules,omitempty"`
		Artifacts    []string    `json:"artifacts,omitempty"`
		Requirements []string    `json:"requirements,omitempty"`
		Repositories []string    `json:"repositories,omitempty"`
		Includes     []string    `json:"includes,omitempty"`
		Options      Options     `json:"options,omitempty"`

		// FilePath is where the bundle was loaded from. Set by Load, not
		// part of the schema.
		FilePath string `json:"-"`
	}

	// Entry designates how the archive starts. At most one field may be
	// set; the schema enforces this for files, Validate for programmatic
	// construction.
	Entry struct {
		Module   string `json:"module,omitempty"`
		MainFile string `json:"mainFile,omitempty"`
		Script   string `json:"script,omitempty"`
	}

	// ModuleRef is one source selector: a file, a directory, or a glob,
	// relative to the bundlefile.
	ModuleRef struct {
		Path        string `json:"path"`
		ArchivePath string `json:"archivePath,omitempty"`
	}

	// Options mirrors the build options a bundlefile may set. Pointer
	// fields distinguish "unset" from an explicit false, so file values
	// only override defaults they actually state.
	Options struct {
		ZipSafe                *bool    `json:"zipSafe,omitempty"`
		UseWheels              *bool    `json:"useWheels,omitempty"`
		NoIndex                bool     `json:"noIndex,omitempty"`
		DisableCache           bool     `json:"disableCache,omitempty"`
		StripPrefix            string   `json:"stripPrefix,omitempty"`
		InterpreterConstraints []string `json:"interpreterConstraints,omitempty"`
		PlatformTags           []string `json:"platformTags,omitempty"`
		AllowOverride          bool     `json:"allowOverride,omitempty"`
		Reproducible           *bool    `json:"reproducible,omitempty"`
	}

	// Source is one resolved file: where it lives and where it lands in
	// the archive.
	Source struct {
		Path        string
		ArchivePath string
	}

	// NotFoundError is returned when a directory holds no bundlefile. It
	// wraps ErrNotFound for errors.Is() compatibility.
	NotFoundError struct {
		Dir string
	}

	// InvalidBundleError is returned for semantic problems the schema
	// cannot express. It wraps ErrInvalidBundle for errors.Is()
	// compatibility.
	InvalidBundleError struct {
		Path   string
		Reason string
	}
)

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s in %s", DefaultFileName, e.Dir)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Error implements the error interface for InvalidBundleError.
func (e *InvalidBundleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidBundleError) Unwrap() error { return ErrInvalidBundle }

// Load reads and parses a bundlefile from the given path.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseBytes(data, path)
}

// LoadDir loads the default bundlefile from a directory.
func LoadDir(dir string) (*Bundle, error) {
	p := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(p); err != nil {
		return nil, &NotFoundError{Dir: dir}
	}
	return Load(p)
}

// LoadInclude loads a bundle named by an include ref: either a directory
// holding a bundlefile or a path to one, relative to baseDir.
func LoadInclude(baseDir, ref string) (*Bundle, error) {
	p := ref
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	st, err := os.Stat(p)
	if err != nil {
		return nil, &NotFoundError{Dir: p}
	}
	if st.IsDir() {
		return LoadDir(p)
	}
	return Load(p)
}

// ParseBytes parses bundlefile content from bytes: validate against the
// embedded schema, decode, then check the invariants the schema cannot
// express.
func ParseBytes(data []byte, filePath string) (*Bundle, error) {
	result, err := cueutil.ParseAndDecode[Bundle](
		bundleSchema,
		data,
		"#Bundle",
		cueutil.WithFilename(filePath),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return nil, err
	}

	b := result.Value
	b.FilePath = filePath
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks the semantic invariants the schema cannot express.
func (b *Bundle) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return &InvalidBundleError{Path: b.FilePath, Reason: "name must not be empty"}
	}
	var supplied int
	for _, v := range []string{b.Entry.Module, b.Entry.MainFile, b.Entry.Script} {
		if v != "" {
			supplied++
		}
	}
	if supplied > 1 {
		return &InvalidBundleError{
			Path:   b.FilePath,
			Reason: "entry module, mainFile, and script are mutually exclusive",
		}
	}
	for i, ref := range b.Modules {
		if strings.TrimSpace(ref.Path) == "" {
			return &InvalidBundleError{
				Path:   b.FilePath,
				Reason: fmt.Sprintf("modules[%d].path must not be empty", i),
			}
		}
	}
	return nil
}

// OutputPath returns the configured output, defaulting to the bundle name
// next to the bundlefile.
func (b *Bundle) OutputPath(baseDir string) string {
	out := b.Output
	if out == "" {
		out = b.Name
	}
	if filepath.IsAbs(out) {
		return out
	}
	return filepath.Join(baseDir, out)
}

// ResolveModules expands every module ref against baseDir: globs are
// matched, directories are walked, and each file is paired with its
// in-archive destination. An explicit archivePath names the destination
// outright for a single-file ref and acts as a prefix otherwise. Bytecode
// caches are skipped.
func (b *Bundle) ResolveModules(baseDir string) ([]Source, error) {
	var out []Source
	for _, ref := range b.Modules {
		pattern := ref.Path
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, &InvalidBundleError{
				Path:   b.FilePath,
				Reason: fmt.Sprintf("bad module glob %q: %v", ref.Path, err),
			}
		}
		if len(matches) == 0 {
			return nil, &InvalidBundleError{
				Path:   b.FilePath,
				Reason: fmt.Sprintf("module ref %q matches nothing", ref.Path),
			}
		}

		for _, match := range matches {
			st, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("resolving module ref %q: %w", ref.Path, err)
			}
			if !st.IsDir() {
				dest := ref.ArchivePath
				if dest == "" || len(matches) > 1 {
					dest = destPath(ref.ArchivePath, relSlash(baseDir, match))
				}
				out = append(out, Source{Path: match, ArchivePath: dest})
				continue
			}
			sources, err := walkModuleDir(match, ref.ArchivePath)
			if err != nil {
				return nil, err
			}
			out = append(out, sources...)
		}
	}
	return out, nil
}

// walkModuleDir collects every regular file under dir, destined for
// prefix joined with the dir-relative path.
func walkModuleDir(dir, prefix string) ([]Source, error) {
	var out []Source
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "__pycache__" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".pyc") {
			return nil
		}
		out = append(out, Source{
			Path:        p,
			ArchivePath: destPath(prefix, relSlash(dir, p)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking module dir %q: %w", dir, err)
	}
	return out, nil
}

func destPath(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

func relSlash(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}
