// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	BundlefileNotFoundId Id = iota + 1
	BundlefileParseErrorId
	ConfigLoadFailedId
	PathConflictId
	PathTraversalId
	AmbiguousEntryPointId
	InvalidEntryPointId
	UnresolvedDependencyId
	NetworkFailureId
	ArchiveWriteFailedId
	CacheUnavailableId
	InvalidRequirementId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // must never be empty, because we need to have docs about all issue types
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	bundlefileNotFoundIssue = &Issue{
		id: BundlefileNotFoundId,
		mdMsg: `
# No bundlefile found!

We searched for a bundlefile.cue but couldn't find one in the working directory.

## Things you can try:
- Create a starter bundlefile:
~~~
$ pybundle init
~~~

- Import dependencies from an existing pyproject.toml:
~~~
$ pybundle init --from-pyproject
~~~

- Or skip the bundlefile entirely and pass everything on the command line:
~~~
$ pybundle build --main src/main.py --output dist/mytool
~~~

## Example bundlefile structure:
~~~cue
name: "mytool"
output: "dist/mytool"

entry: {module: "mytool.cli"}

modules: [
  {path: "src/mytool"},
]

requirements: ["requests>=2.31", "click"]
~~~`,
	}

	bundlefileParseErrorIssue = &Issue{
		id: BundlefileParseErrorId,
		mdMsg: `
# Failed to parse bundlefile!

Your bundlefile.cue contains syntax errors or invalid configuration.

## Common issues:
- Invalid CUE syntax (missing quotes, braces, etc.)
- Unknown field names
- Two entry designations at once (module, mainFile, and script are mutually exclusive)
- Empty module paths

## Things you can try:
- Check the error message above for the specific field path
- Validate your CUE syntax using the cue command-line tool
- Run with verbose mode for more details:
~~~
$ pybundle --verbose build
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Could not load the pybundle configuration file.

## Configuration file locations:
- Linux: ~/.config/pybundle/config.cue
- macOS: ~/Library/Application Support/pybundle/config.cue
- Windows: %APPDATA%\pybundle\config.cue

## Things you can try:
- Create a default configuration:
~~~
$ pybundle config init
~~~

- Check the configuration syntax
- Remove the config file to use defaults:
~~~
$ rm ~/.config/pybundle/config.cue
~~~

## Example configuration:
~~~cue
cache: {
  enabled: true
}

network: {
  indexes: ["https://pypi.org/simple/"]
  timeout: "30s"
}

log: {
  level: "info"
}
~~~`,
	}

	pathConflictIssue = &Issue{
		id: PathConflictId,
		mdMsg: `
# Archive path conflict!

Two or more source files claim the same path inside the archive. The error
message lists every conflicting path with the sources that claim it.

## Common causes:
- Two module refs mapping different files to the same destination
- A strip prefix collapsing distinct paths onto each other
- An embedded artifact sharing its filename with another artifact

## Things you can try:
- Give one of the sources an explicit archivePath:
~~~cue
modules: [
  {path: "src/util.py", archivePath: "mytool/util.py"},
]
~~~

- Or accept last-wins resolution explicitly:
~~~
$ pybundle build --allow-override
~~~`,
	}

	pathTraversalIssue = &Issue{
		id: PathTraversalId,
		mdMsg: `
# Archive path escapes the archive root!

A configured archive path normalizes to a location outside the archive
(leading /, .. segments, or backslashes). These are rejected, never clamped.

## Things you can try:
- Use relative, slash-separated paths in archivePath values
- Check the stripPrefix option for prefixes that strip a path to nothing
- Review the reported path in the error message for stray ".." segments`,
	}

	ambiguousEntryPointIssue = &Issue{
		id: AmbiguousEntryPointId,
		mdMsg: `
# Ambiguous entry point!

An archive can start exactly one way. You designated more than one of:
an entry module, a main file, or a console script.

## Things you can try:
- Keep exactly one of the three designations:
~~~cue
entry: {module: "mytool.cli"}
~~~
- On the command line, pass only one of --entry-module, --main, --script`,
	}

	invalidEntryPointIssue = &Issue{
		id: InvalidEntryPointId,
		mdMsg: `
# Invalid entry point!

The entry-point designation is present but unusable.

## Common causes:
- A dotted module path with segments that are not Python identifiers
- A main file that is not among the archive's modules
- A main file that is not a Python source file

## Things you can try:
- Check the module path spelling ("mytool.cli", not "mytool/cli.py")
- When using --main, pass the path as it appears in the build set
- List the archive contents of a previous build:
~~~
$ pybundle inspect dist/mytool
~~~`,
	}

	unresolvedDependencyIssue = &Issue{
		id: UnresolvedDependencyId,
		mdMsg: `
# Unresolved dependency!

One or more requirements could not be satisfied from the configured
repositories, the artifact cache, or the package indexes. Every failed
requirement is listed; resolution is not aborted at the first failure.

## Things you can try:
- Check the requirement spelling and constraint:
~~~
$ pybundle build --requirement "requests>=2.31"
~~~
- If building offline (--no-index), add a local repository holding the
  needed wheels:
~~~
$ pybundle build --no-index --repo ./vendor
~~~
- Pre-release versions only match when the constraint mentions one
  explicitly (e.g. ">=2.0.0rc1")
- For platform-specific wheels, pass the target tags with --platform`,
	}

	networkFailureIssue = &Issue{
		id: NetworkFailureId,
		mdMsg: `
# Network failure!

A package index or download request kept failing after the configured
retries.

## Things you can try:
- Check connectivity to the configured indexes:
~~~
$ pybundle config show
~~~
- Raise the timeout or retry budget (network.timeout, network.retries)
- Put proxy settings or index credentials in a .env file next to your
  project; it is loaded at startup
- Build offline from a local repository:
~~~
$ pybundle build --no-index --repo ./vendor
~~~`,
	}

	archiveWriteFailedIssue = &Issue{
		id: ArchiveWriteFailedId,
		mdMsg: `
# Failed to write the archive!

The output could not be placed. Placement is atomic: the target path was
left untouched, with no partial file.

## Common causes:
- The output directory does not exist
- No write permission on the output directory
- The filesystem is full

## Things you can try:
- Create the output directory first
- Check free space and permissions
- Write to a different location with --output`,
	}

	cacheUnavailableIssue = &Issue{
		id: CacheUnavailableId,
		mdMsg: `
# Artifact cache unavailable!

The artifact cache directory could not be created or read.

## Things you can try:
- Check the configured directory:
~~~
$ pybundle cache info
~~~
- Point the cache somewhere writable (cache.dir in config.cue, or the
  PYBUNDLE_CACHE_DIR environment variable)
- Bypass the cache for this build:
~~~
$ pybundle build --disable-cache
~~~`,
	}

	invalidRequirementIssue = &Issue{
		id: InvalidRequirementId,
		mdMsg: `
# Invalid requirement!

A requirement string does not parse as a package specifier.

## Valid forms:
- A bare name: ` + "`requests`" + `
- With a version constraint: ` + "`requests>=2.31`" + `, ` + "`click==8.1.7`" + `
- Compound constraints: ` + "`urllib3>=1.26,<3`" + `

## Things you can try:
- Check for stray spaces or shell quoting issues
- Quote constraints on the command line:
~~~
$ pybundle build --requirement "requests>=2.31"
~~~`,
	}

	issues = map[Id]*Issue{
		bundlefileNotFoundIssue.Id():   bundlefileNotFoundIssue,
		bundlefileParseErrorIssue.Id(): bundlefileParseErrorIssue,
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		pathConflictIssue.Id():         pathConflictIssue,
		pathTraversalIssue.Id():        pathTraversalIssue,
		ambiguousEntryPointIssue.Id():  ambiguousEntryPointIssue,
		invalidEntryPointIssue.Id():    invalidEntryPointIssue,
		unresolvedDependencyIssue.Id(): unresolvedDependencyIssue,
		networkFailureIssue.Id():       networkFailureIssue,
		archiveWriteFailedIssue.Id():   archiveWriteFailedIssue,
		cacheUnavailableIssue.Id():     cacheUnavailableIssue,
		invalidRequirementIssue.Id():   invalidRequirementIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
