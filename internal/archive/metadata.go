// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pybundle/pybundle/internal/entrypoint"
)

const (
	// InfoName is the archive-root metadata file describing the bundle.
	InfoName = "PYBUNDLE-INFO"
	// MainName is the generated bootstrap module the interpreter runs.
	MainName = "__main__.py"
	// DepsDir is the archive directory holding embedded prebuilt
	// artifacts, each kept verbatim as its original wheel or egg file.
	DepsDir = ".deps"

	// FormatVersion is bumped whenever the metadata shape or bootstrap
	// contract changes incompatibly.
	FormatVersion = 1
)

type (
	// Metadata is the content of the PYBUNDLE-INFO entry. Fields are
	// declared in tag order so the JSON output is key-sorted.
	Metadata struct {
		CreatedBy    string           `json:"createdBy"`
		Dependencies []DependencyInfo `json:"dependencies"`
		Entry        EntryInfo        `json:"entry"`
		Fingerprint  string           `json:"fingerprint"`
		Format       int              `json:"format"`
		ZipSafe      bool             `json:"zipSafe"`
	}

	// DependencyInfo locates one embedded artifact inside the archive.
	DependencyInfo struct {
		ArchivePath string `json:"archivePath"`
		Kind        string `json:"kind"`
	}

	// EntryInfo is the resolved entry point the bootstrap dispatches on.
	EntryInfo struct {
		Kind   string `json:"kind"`
		Module string `json:"module,omitempty"`
		Script string `json:"script,omitempty"`
	}
)

// newEntryInfo converts a resolved entry point to its metadata form.
func newEntryInfo(r entrypoint.Resolved) EntryInfo {
	return EntryInfo{Kind: string(r.Kind), Module: r.Module, Script: r.Script}
}

// normalized returns a copy with a non-nil dependency list, so the JSON
// forms always carry an array the bootstrap can iterate.
func (m Metadata) normalized() Metadata {
	if m.Dependencies == nil {
		m.Dependencies = []DependencyInfo{}
	}
	return m
}

// encode returns the indented JSON serialization of the metadata.
func (m Metadata) encode() ([]byte, error) {
	out, err := json.MarshalIndent(m.normalized(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing archive metadata: %w", err)
	}
	return append(out, '\n'), nil
}

// decodeMetadata parses a PYBUNDLE-INFO payload.
func decodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("parsing %s: %w", InfoName, err)
	}
	return m, nil
}

// bootstrapTemplate is the Python side of the archive contract. The
// metadata JSON is spliced in at build time; the raw-string literal keeps
// JSON escapes intact. The bootstrap wires sys.path (extracting to a
// per-fingerprint scratch directory when the bundle is not zip-safe),
// then dispatches on the entry kind, exiting 1 on entry failure.
const bootstrapTemplate = `import json
import os
import sys

_ARCHIVE = os.path.dirname(os.path.abspath(__file__))
_INFO = json.loads(r"""@METADATA@""")


def _fail(msg):
    sys.stderr.write("pybundle: " + msg + "\n")
    sys.exit(1)


def _extract():
    import tempfile
    import zipfile

    root = os.path.join(
        tempfile.gettempdir(), "pybundle-" + _INFO["fingerprint"][:16]
    )
    if not os.path.isdir(root):
        tmp = tempfile.mkdtemp(dir=tempfile.gettempdir())
        with zipfile.ZipFile(_ARCHIVE) as zf:
            zf.extractall(tmp)
        try:
            os.rename(tmp, root)
        except OSError:
            pass  # a concurrent launch extracted first
    return root


def _prepare():
    if _INFO["zipSafe"]:
        base = _ARCHIVE
    else:
        base = _extract()
        sys.path.insert(0, base)
    for dep in _INFO["dependencies"]:
        sys.path.insert(0, os.path.join(base, dep["archivePath"]))


def _run_module(name):
    import runpy

    runpy.run_module(name, run_name="__main__", alter_sys=True)


def _run_script(name):
    from importlib import metadata

    eps = metadata.entry_points()
    if hasattr(eps, "select"):
        matches = list(eps.select(group="console_scripts", name=name))
    else:
        matches = [e for e in eps.get("console_scripts", []) if e.name == name]
    if not matches:
        _fail("console script " + repr(name) + " not found in embedded packages")
    sys.exit(matches[0].load()())


def _main():
    _prepare()
    entry = _INFO["entry"]
    try:
        if entry["kind"] == "module":
            _run_module(entry["module"])
        elif entry["kind"] == "script":
            _run_script(entry["script"])
        else:
            import code

            code.interact()
    except SystemExit:
        raise
    except BaseException as exc:
        _fail("entry point failed: " + str(exc))


if __name__ == "__main__":
    _main()
`

// generateBootstrap renders the __main__.py module for the metadata.
func generateBootstrap(m Metadata) (string, error) {
	blob, err := json.Marshal(m.normalized())
	if err != nil {
		return "", fmt.Errorf("serializing bootstrap metadata: %w", err)
	}
	// A raw Python string cannot contain its own terminator.
	if strings.Contains(string(blob), `"""`) {
		return "", fmt.Errorf("bootstrap metadata contains a triple quote")
	}
	return strings.Replace(bootstrapTemplate, "@METADATA@", string(blob), 1), nil
}
