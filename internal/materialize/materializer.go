// SPDX-License-Identifier: MPL-2.0

// Package materialize resolves bare requirement specifiers into concrete
// prebuilt artifacts. Local repository directories are searched first,
// then the injected on-disk cache, then remote PEP 503 indexes; the
// no-index mode cuts resolution off from the network entirely. Each
// requirement resolves independently and concurrently, and every failure
// from one pass is reported together.
package materialize

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/pybundle/pybundle/internal/manifest"
	"github.com/pybundle/pybundle/internal/netretry"
	"github.com/pybundle/pybundle/pkg/pydist"
)

// resolveParallelism bounds concurrent per-requirement resolutions.
// Resolution is network/disk bound; a small fan-out keeps index servers
// and descriptor use polite.
const resolveParallelism = 4

type (
	// Config assembles a Materializer. Zero-value fields fall back to
	// defaults; Cache is required unless Options.DisableCache is set.
	Config struct {
		// Repositories are local directories searched before any cache
		// or index.
		Repositories []manifest.RepositoryRef

		// Indexes are PEP 503 simple-index base URLs, tried in order.
		Indexes []string

		// Cache is the injected artifact-resolution cache handle.
		Cache *Cache

		// HTTPClient overrides the default timeout-bounded client.
		HTTPClient *http.Client

		// Retry bounds network retries. Zero value selects the default
		// policy.
		Retry netretry.Policy

		// Options carries the build's resolution switches.
		Options manifest.BuildOptions

		// Logger receives per-requirement resolution logging at debug
		// level. Nil selects the default logger.
		Logger *log.Logger

		// DownloadDir receives fetched artifacts when the cache is
		// disabled. Empty means the OS temp dir.
		DownloadDir string
	}

	// Materializer resolves requirements for one build invocation. It is
	// safe for the concurrent per-requirement use Materialize arranges
	// internally, but one instance belongs to one build.
	Materializer struct {
		repos       []manifest.RepositoryRef
		cache       *Cache
		index       *indexClient
		client      *http.Client
		opts        manifest.BuildOptions
		mode        ResolutionMode
		log         *log.Logger
		downloadDir string
	}
)

// DefaultIndexURL is the public package index queried when configuration
// names no other.
const DefaultIndexURL = "https://pypi.org/simple/"

// New creates a Materializer from the config.
func New(cfg Config) (*Materializer, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	retry := cfg.Retry
	if retry.Attempts == 0 {
		retry = netretry.DefaultPolicy()
	}
	indexes := cfg.Indexes
	if len(indexes) == 0 {
		indexes = []string{DefaultIndexURL}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	downloadDir := cfg.DownloadDir
	if downloadDir == "" {
		downloadDir = filepath.Join(os.TempDir(), "pybundle-downloads")
	}

	if cfg.Cache == nil && !cfg.Options.DisableCache {
		return nil, fmt.Errorf("materializer requires a cache handle unless the cache is disabled")
	}

	ic, err := newIndexClient(indexes, client, retry)
	if err != nil {
		return nil, err
	}

	return &Materializer{
		repos:  cfg.Repositories,
		cache:  cfg.Cache,
		index:  ic,
		client: client,
		opts:   cfg.Options,
		mode: ResolutionMode{
			UseWheels:    cfg.Options.UseWheels,
			PlatformTags: slices.Clone(cfg.Options.PlatformTags),
		},
		log:         logger.With("component", "materialize"),
		downloadDir: downloadDir,
	}, nil
}

// Materialize resolves every requirement, returning one artifact per
// requirement in input order. Results are keyed by requirement identity,
// so concurrent completion order never affects the output. On any
// failure the returned error is an UnresolvedDependencyError aggregating
// all of them.
func (m *Materializer) Materialize(ctx context.Context, reqs []manifest.Requirement) ([]manifest.PrebuiltArtifact, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	artifacts := make([]manifest.PrebuiltArtifact, len(reqs))
	failures := make([]error, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveParallelism)
	for i, req := range reqs {
		g.Go(func() error {
			art, err := m.resolveOne(ctx, req)
			if err != nil {
				// Failures are collected, not propagated: one
				// unresolvable requirement must not cancel the rest.
				failures[i] = err
				return nil
			}
			artifacts[i] = art
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var agg UnresolvedDependencyError
	for i, err := range failures {
		if err != nil {
			agg.Failures = append(agg.Failures, ResolutionFailure{
				Requirement: string(reqs[i]),
				Cause:       err,
			})
		}
	}
	if len(agg.Failures) > 0 {
		return nil, &agg
	}
	return artifacts, nil
}

// resolveOne resolves a single requirement: repositories, then cache,
// then (unless no-index) remote indexes.
func (m *Materializer) resolveOne(ctx context.Context, req manifest.Requirement) (manifest.PrebuiltArtifact, error) {
	spec, err := req.Specifier()
	if err != nil {
		return manifest.PrebuiltArtifact{}, err
	}

	if art, ok, err := m.fromRepositories(spec); err != nil {
		return manifest.PrebuiltArtifact{}, err
	} else if ok {
		m.log.Debug("resolved from repository", "requirement", spec.Raw, "path", art.LocalPath)
		return art, nil
	}

	if !m.opts.DisableCache {
		if cached, ok, err := m.cache.Lookup(spec, m.mode); err != nil {
			return manifest.PrebuiltArtifact{}, err
		} else if ok {
			if art, usable := m.artifactFor(cached); usable {
				m.log.Debug("resolved from cache", "requirement", spec.Raw, "path", cached)
				return art, nil
			}
		}
	}

	if m.opts.NoIndex {
		return manifest.PrebuiltArtifact{}, fmt.Errorf(
			"no matching artifact in %s and index access is disabled", describeLocal(m.repos))
	}

	return m.fromIndexes(ctx, spec)
}

// fromRepositories searches the local repository directories.
func (m *Materializer) fromRepositories(spec pydist.Specifier) (manifest.PrebuiltArtifact, bool, error) {
	var cands []candidate
	for _, repo := range m.repos {
		found, err := scanRepository(repo, spec.Name)
		if err != nil {
			return manifest.PrebuiltArtifact{}, false, err
		}
		cands = append(cands, found...)
	}
	best, ok := selectCandidate(cands, spec, m.opts)
	if !ok {
		return manifest.PrebuiltArtifact{}, false, nil
	}
	return manifest.PrebuiltArtifact{LocalPath: best.Local, Kind: best.File.Kind}, true, nil
}

// fromIndexes queries the remote indexes, downloads the selected
// candidate, and stores it in the cache unless caching is disabled.
func (m *Materializer) fromIndexes(ctx context.Context, spec pydist.Specifier) (manifest.PrebuiltArtifact, error) {
	cands, err := m.index.candidates(ctx, spec.Name)
	if err != nil {
		return manifest.PrebuiltArtifact{}, err
	}
	best, ok := selectCandidate(cands, spec, m.opts)
	if !ok {
		return manifest.PrebuiltArtifact{}, fmt.Errorf(
			"no artifact satisfying %q found on %s", spec.Raw, strings.Join(m.index.indexes, ", "))
	}

	var local string
	fetchErr := netretry.Do(ctx, m.index.retry, func(_ int) (bool, error) {
		var err error
		local, err = fetchArtifact(ctx, m.client, best.URL, m.downloadDir)
		if err == nil {
			return false, nil
		}
		return retriable(err), err
	})
	if fetchErr != nil {
		return manifest.PrebuiltArtifact{}, fetchErr
	}

	if !m.opts.DisableCache {
		cached, err := m.cache.Store(spec, m.mode, local)
		if err != nil {
			return manifest.PrebuiltArtifact{}, err
		}
		os.Remove(local)
		local = cached
	}

	m.log.Debug("resolved from index", "requirement", spec.Raw, "url", best.URL, "path", local)
	return manifest.PrebuiltArtifact{LocalPath: local, Kind: best.File.Kind}, nil
}

// artifactFor re-derives the artifact kind from a cached filename. A
// cache entry whose name no longer parses is treated as a miss.
func (m *Materializer) artifactFor(path string) (manifest.PrebuiltArtifact, bool) {
	kind, err := pydist.KindForFilename(path)
	if err != nil {
		m.log.Debug("skipping unrecognized artifact filename", "path", path, "err", err)
		return manifest.PrebuiltArtifact{}, false
	}
	return manifest.PrebuiltArtifact{LocalPath: path, Kind: kind}, true
}

func describeLocal(repos []manifest.RepositoryRef) string {
	if len(repos) == 0 {
		return "the artifact cache (no repositories configured)"
	}
	names := make([]string, len(repos))
	for i, r := range repos {
		names[i] = string(r)
	}
	return "repositories " + strings.Join(names, ", ") + " or the artifact cache"
}
