// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/pybundle/pybundle/internal/archive"
	"github.com/pybundle/pybundle/internal/config"
	"github.com/pybundle/pybundle/internal/depgraph"
	"github.com/pybundle/pybundle/internal/entrypoint"
	"github.com/pybundle/pybundle/internal/issue"
	"github.com/pybundle/pybundle/internal/layout"
	"github.com/pybundle/pybundle/internal/manifest"
	"github.com/pybundle/pybundle/internal/materialize"
	"github.com/pybundle/pybundle/internal/netretry"
	"github.com/pybundle/pybundle/pkg/bundlefile"
	"github.com/pybundle/pybundle/pkg/cueutil"
	"github.com/pybundle/pybundle/pkg/pydist"
)

// buildService implements BuildService by chaining the pipeline stages:
// bundlefile loading, manifest building, layout planning, dependency
// materialization, and archive assembly. Errors from each stage are mapped
// to issue-catalog IDs so the CLI layer can render remediation help.
type buildService struct {
	config config.Provider
	stderr io.Writer
}

func newBuildService(provider config.Provider, stderr io.Writer) *buildService {
	return &buildService{config: provider, stderr: stderr}
}

// Build runs the full pipeline for one request.
func (s *buildService) Build(ctx context.Context, req BuildRequest) (*archive.Result, error) {
	cfg, err := loadConfigWithFallback(ctx, s.config, req.ConfigPath, s.stderr)
	if err != nil {
		return nil, newServiceError(err, issue.ConfigLoadFailedId, "")
	}

	bundle, err := loadBundle(req)
	if err != nil {
		return nil, classifyBuildError(err)
	}
	baseDir := filepath.Dir(bundle.FilePath)

	entry := mergeEntry(bundle.Entry, req)
	// Exclusivity is checked before any filesystem or network work so a
	// conflicting designation never triggers a partial build.
	if err := entry.Validate(); err != nil {
		return nil, classifyBuildError(err)
	}

	opts := mergeOptions(bundle.Options, req)
	if req.Output != "" {
		opts.OutputPath = req.Output
	} else {
		opts.OutputPath = bundle.OutputPath(baseDir)
	}

	m, err := buildManifest(bundle, baseDir, req, entry, opts)
	if err != nil {
		return nil, classifyBuildError(err)
	}

	plan, err := layout.Compute(m.Modules, m.Options)
	if err != nil {
		return nil, classifyBuildError(err)
	}

	if cfg.Build.StagingDir != "" {
		if err := plan.Stage(ctx, osfs.New(cfg.Build.StagingDir), bundle.Name); err != nil {
			return nil, classifyBuildError(err)
		}
	}

	resolved, err := s.materialize(ctx, cfg, m)
	if err != nil {
		return nil, classifyBuildError(err)
	}
	artifacts := append(append([]manifest.PrebuiltArtifact{}, m.Artifacts...), resolved...)

	result, err := archive.NewAssembler(log.Default()).Assemble(ctx, archive.Inputs{
		Manifest:  m,
		Plan:      plan,
		Artifacts: artifacts,
		Output:    m.Options.OutputPath,
	})
	if err != nil {
		return nil, classifyBuildError(err)
	}
	return result, nil
}

// loadBundle reads the bundlefile named by the request, or discovers the
// default one in the request directory.
func loadBundle(req BuildRequest) (*bundlefile.Bundle, error) {
	if req.BundlePath != "" {
		return bundlefile.Load(req.BundlePath)
	}
	dir := req.Dir
	if dir == "" {
		dir = "."
	}
	return bundlefile.LoadDir(dir)
}

// mergeEntry applies the CLI entry-point designation over the bundlefile's.
// Any CLI designation replaces the file's entirely; conflicting CLI flags
// are preserved so Validate reports the ambiguity.
func mergeEntry(fromFile bundlefile.Entry, req BuildRequest) entrypoint.Spec {
	if req.EntryModule != "" || req.MainFile != "" || req.Script != "" {
		return entrypoint.Spec{
			Module:   req.EntryModule,
			MainFile: req.MainFile,
			Script:   req.Script,
		}
	}
	return entrypoint.Spec{
		Module:   fromFile.Module,
		MainFile: fromFile.MainFile,
		Script:   fromFile.Script,
	}
}

// mergeOptions layers the bundlefile options and then the CLI flags over the
// defaults. Pointer fields override only when set, so a flag the user never
// gave cannot clobber a value the bundlefile states.
func mergeOptions(fromFile bundlefile.Options, req BuildRequest) manifest.BuildOptions {
	opts := manifest.DefaultOptions()

	if fromFile.ZipSafe != nil {
		opts.ZipSafe = *fromFile.ZipSafe
	}
	if fromFile.UseWheels != nil {
		opts.UseWheels = *fromFile.UseWheels
	}
	if fromFile.Reproducible != nil {
		opts.Reproducible = *fromFile.Reproducible
	}
	opts.NoIndex = fromFile.NoIndex
	opts.DisableCache = fromFile.DisableCache
	opts.AllowOverride = fromFile.AllowOverride
	opts.StripPrefix = fromFile.StripPrefix
	opts.InterpreterConstraints = fromFile.InterpreterConstraints
	opts.PlatformTags = fromFile.PlatformTags

	if req.ZipSafe != nil {
		opts.ZipSafe = *req.ZipSafe
	}
	if req.UseWheels != nil {
		opts.UseWheels = *req.UseWheels
	}
	if req.Reproducible != nil {
		opts.Reproducible = *req.Reproducible
	}
	if req.StripPrefix != nil {
		opts.StripPrefix = *req.StripPrefix
	}
	if len(req.Interpreters) > 0 {
		opts.InterpreterConstraints = req.Interpreters
	}
	if len(req.PlatformTags) > 0 {
		opts.PlatformTags = req.PlatformTags
	}
	if req.NoIndex {
		opts.NoIndex = true
	}
	if req.DisableCache {
		opts.DisableCache = true
	}
	if req.AllowOverride {
		opts.AllowOverride = true
	}
	if req.EmitManifest {
		opts.EmitManifest = true
	}
	if req.Verbose {
		opts.Verbosity = 1
	}
	return opts
}

// buildManifest aggregates the bundle and its includes, transitively, and
// freezes everything into a validated manifest. Contributions flow through
// the dependency graph so shared includes land once and include cycles are
// reported.
func buildManifest(bundle *bundlefile.Bundle, baseDir string, req BuildRequest, entry entrypoint.Spec, opts manifest.BuildOptions) (*manifest.BuildManifest, error) {
	g := depgraph.New()
	if err := addBundleNode(g, bundle, baseDir, map[depgraph.NodeID]bool{}); err != nil {
		return nil, err
	}
	col, err := g.Collect(bundleNodeID(bundle))
	if err != nil {
		return nil, err
	}

	var b manifest.Builder
	col.Apply(&b)

	// Request-level additions layer on top of the whole graph.
	for _, spec := range req.Requirements {
		b.AddRequirement(spec)
	}
	for _, dir := range req.Repositories {
		b.AddRepository(dir)
	}
	return b.Build(entry, opts)
}

// bundleNodeID keys graph nodes by bundlefile location, so a bundle
// reachable along several include paths is one node.
func bundleNodeID(bundle *bundlefile.Bundle) depgraph.NodeID {
	if abs, err := filepath.Abs(bundle.FilePath); err == nil {
		return depgraph.NodeID(abs)
	}
	return depgraph.NodeID(bundle.FilePath)
}

// addBundleNode records one bundle's direct contributions and descends into
// its includes. A bundle already visited only gains the edge; cycles
// surface from the collection walk.
func addBundleNode(g *depgraph.Graph, bundle *bundlefile.Bundle, baseDir string, visited map[depgraph.NodeID]bool) error {
	id := bundleNodeID(bundle)
	if visited[id] {
		return nil
	}
	visited[id] = true
	node := g.Node(id)

	sources, err := bundle.ResolveModules(baseDir)
	if err != nil {
		return err
	}
	for _, src := range sources {
		node.AddModule(src.Path, src.ArchivePath)
	}

	for _, pattern := range bundle.Artifacts {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return &bundlefile.InvalidBundleError{Path: bundle.FilePath, Reason: fmt.Sprintf("bad artifact pattern %q: %v", pattern, err)}
		}
		if len(matches) == 0 {
			return &bundlefile.InvalidBundleError{Path: bundle.FilePath, Reason: fmt.Sprintf("artifact pattern %q matched nothing", pattern)}
		}
		for _, p := range matches {
			kind, err := pydist.KindForFilename(filepath.Base(p))
			if err != nil {
				return err
			}
			node.AddArtifact(p, kind)
		}
	}

	for _, spec := range bundle.Requirements {
		node.AddRequirement(spec)
	}
	for _, dir := range bundle.Repositories {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
		node.AddRepository(dir)
	}

	for _, ref := range bundle.Includes {
		included, err := bundlefile.LoadInclude(baseDir, ref)
		if err != nil {
			return err
		}
		g.AddDep(id, bundleNodeID(included))
		if err := addBundleNode(g, included, filepath.Dir(included.FilePath), visited); err != nil {
			return err
		}
	}
	return nil
}

// materialize resolves the manifest's requirements into concrete artifacts
// using the configured cache, repositories, and indexes.
func (s *buildService) materialize(ctx context.Context, cfg *config.Config, m *manifest.BuildManifest) ([]manifest.PrebuiltArtifact, error) {
	if len(m.Requirements) == 0 {
		return nil, nil
	}

	// The config can disable the cache globally; the materializer treats that
	// the same as the per-build switch.
	matOpts := m.Options
	if !cfg.Cache.Enabled {
		matOpts.DisableCache = true
	}

	var cache *materialize.Cache
	if !matOpts.DisableCache {
		dir := cfg.Cache.Dir
		if dir == "" {
			var err error
			dir, err = materialize.DefaultCacheDir()
			if err != nil {
				return nil, newServiceError(err, issue.CacheUnavailableId, "")
			}
		}
		var err error
		cache, err = materialize.NewCache(dir)
		if err != nil {
			return nil, newServiceError(err, issue.CacheUnavailableId, "")
		}
	}

	mat, err := materialize.New(materialize.Config{
		Repositories: m.Repositories,
		Indexes:      cfg.Network.Indexes,
		Cache:        cache,
		HTTPClient:   httpClientFor(cfg),
		Retry:        netretry.Policy{Attempts: cfg.Network.Retries, Backoff: cfg.Network.Backoff},
		Options:      matOpts,
		Logger:       log.Default(),
		DownloadDir:  cfg.Build.StagingDir,
	})
	if err != nil {
		return nil, err
	}
	return mat.Materialize(ctx, m.Requirements)
}

// httpClientFor bounds index and download requests by the configured
// network timeout. An unset timeout keeps the materializer's default.
func httpClientFor(cfg *config.Config) *http.Client {
	if cfg.Network.Timeout <= 0 {
		return nil
	}
	return &http.Client{Timeout: cfg.Network.Timeout}
}

// classifyBuildError maps pipeline errors onto issue-catalog IDs for CLI
// rendering. Errors already carrying rendering info pass through untouched.
func classifyBuildError(err error) error {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	switch {
	case errors.Is(err, bundlefile.ErrNotFound):
		return newServiceError(err, issue.BundlefileNotFoundId, "")
	case errors.Is(err, bundlefile.ErrInvalidBundle):
		return newServiceError(err, issue.BundlefileParseErrorId, "")
	case isSchemaError(err):
		return newServiceError(err, issue.BundlefileParseErrorId, "")
	case errors.Is(err, depgraph.ErrCycle):
		return newServiceError(err, issue.BundlefileParseErrorId, "")
	case errors.Is(err, entrypoint.ErrAmbiguousEntryPoint):
		return newServiceError(err, issue.AmbiguousEntryPointId, "")
	case errors.Is(err, entrypoint.ErrInvalidEntryPoint):
		return newServiceError(err, issue.InvalidEntryPointId, "")
	case errors.Is(err, manifest.ErrInvalidRequirement):
		return newServiceError(err, issue.InvalidRequirementId, "")
	case errors.Is(err, manifest.ErrConflict):
		return newServiceError(err, issue.PathConflictId, "")
	case errors.Is(err, layout.ErrTraversal):
		return newServiceError(err, issue.PathTraversalId, "")
	case errors.Is(err, materialize.ErrUnresolvedDependency):
		// Checked before ErrNetwork: the aggregate wraps per-requirement
		// network causes and should render as the aggregate.
		return newServiceError(err, issue.UnresolvedDependencyId, "")
	case errors.Is(err, materialize.ErrNetwork):
		return newServiceError(err, issue.NetworkFailureId, "")
	case errors.Is(err, archive.ErrWrite):
		return newServiceError(err, issue.ArchiveWriteFailedId, "")
	default:
		return err
	}
}

// isSchemaError reports whether the error chain carries a CUE schema
// violation from bundlefile parsing.
func isSchemaError(err error) bool {
	var ve *cueutil.ValidationError
	return errors.As(err, &ve)
}
