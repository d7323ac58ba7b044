// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pybundle/pybundle/internal/manifest"
	"github.com/pybundle/pybundle/pkg/pydist"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache() returned unexpected error: %v", err)
	}
	return cache
}

// indexServer serves a minimal simple index with one wheel per named
// distribution and counts artifact downloads.
func indexServer(t *testing.T, downloads *atomic.Int32, dists map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for name, filename := range dists {
		page := fmt.Sprintf(`<html><body><a href="/packages/%s">%s</a></body></html>`, filename, filename)
		mux.HandleFunc("/simple/"+name+"/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(page))
		})
		mux.HandleFunc("/packages/"+filename, func(w http.ResponseWriter, _ *http.Request) {
			if downloads != nil {
				downloads.Add(1)
			}
			w.Write([]byte("wheel bytes for " + filename))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_InstallsProvidedHTTPClient(t *testing.T) {
	t.Parallel()

	client := &http.Client{Timeout: 3 * time.Second}
	m, err := New(Config{Cache: newTestCache(t), HTTPClient: client, Options: optionsWith(true)})
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}
	if m.client != client {
		t.Error("configured HTTP client not installed on the materializer")
	}
	if m.index.client != client {
		t.Error("configured HTTP client not installed on the index client")
	}
}

func TestArtifactFor_LogsUnrecognizedFilename(t *testing.T) {
	t.Parallel()

	var buf strings.Builder
	logger := log.New(&buf)
	logger.SetLevel(log.DebugLevel)
	m, err := New(Config{Cache: newTestCache(t), Logger: logger, Options: optionsWith(true)})
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}

	if _, ok := m.artifactFor("README.txt"); ok {
		t.Fatal("artifactFor() accepted a non-artifact filename")
	}
	if !strings.Contains(buf.String(), "unrecognized artifact filename") {
		t.Errorf("debug log missing skip line, got: %q", buf.String())
	}
}

func TestMaterialize_NoIndexUnmetRequirement(t *testing.T) {
	t.Parallel()

	opts := optionsWith(true)
	opts.NoIndex = true
	m, err := New(Config{Cache: newTestCache(t), Options: opts})
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}

	_, err = m.Materialize(context.Background(), []manifest.Requirement{"somepackage"})
	if err == nil {
		t.Fatal("Materialize() returned nil error, want unresolved dependency")
	}
	if !errors.Is(err, ErrUnresolvedDependency) {
		t.Fatalf("error should wrap ErrUnresolvedDependency, got: %v", err)
	}
	if !strings.Contains(err.Error(), "somepackage") {
		t.Errorf("error %q should name the unresolved requirement", err)
	}
}

func TestMaterialize_FromRepository(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	writeArtifactFile(t, repo, "flask-2.3.1-py3-none-any.whl")

	opts := optionsWith(true)
	opts.NoIndex = true
	m, err := New(Config{
		Repositories: []manifest.RepositoryRef{manifest.RepositoryRef(repo)},
		Cache:        newTestCache(t),
		Options:      opts,
	})
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}

	arts, err := m.Materialize(context.Background(), []manifest.Requirement{"flask==2.3.1"})
	if err != nil {
		t.Fatalf("Materialize() returned unexpected error: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("len(artifacts) = %d, want 1", len(arts))
	}
	if arts[0].Kind != pydist.KindWheel {
		t.Errorf("Kind = %q, want wheel", arts[0].Kind)
	}
	if !strings.HasSuffix(arts[0].LocalPath, "flask-2.3.1-py3-none-any.whl") {
		t.Errorf("LocalPath = %q, want the repository wheel", arts[0].LocalPath)
	}
}

func TestMaterialize_AggregatesAllFailures(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	writeArtifactFile(t, repo, "flask-2.3.1-py3-none-any.whl")

	opts := optionsWith(true)
	opts.NoIndex = true
	m, err := New(Config{
		Repositories: []manifest.RepositoryRef{manifest.RepositoryRef(repo)},
		Cache:        newTestCache(t),
		Options:      opts,
	})
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}

	_, err = m.Materialize(context.Background(), []manifest.Requirement{
		"missing-one", "flask==2.3.1", "missing-two",
	})
	var uerr *UnresolvedDependencyError
	if !errors.As(err, &uerr) {
		t.Fatalf("error should be *UnresolvedDependencyError, got %T: %v", err, err)
	}
	if len(uerr.Failures) != 2 {
		t.Fatalf("len(Failures) = %d, want both missing requirements collected", len(uerr.Failures))
	}
	names := []string{uerr.Failures[0].Requirement, uerr.Failures[1].Requirement}
	if names[0] != "missing-one" || names[1] != "missing-two" {
		t.Errorf("failure order = %v, want input order", names)
	}
}

func TestMaterialize_FromIndexStoresInCache(t *testing.T) {
	t.Parallel()

	var downloads atomic.Int32
	srv := indexServer(t, &downloads, map[string]string{
		"requests": "requests-2.31.0-py3-none-any.whl",
	})

	cache := newTestCache(t)
	m, err := New(Config{
		Indexes:    []string{srv.URL + "/simple/"},
		Cache:      cache,
		HTTPClient: srv.Client(),
		Options:    optionsWith(true),
	})
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}

	arts, err := m.Materialize(context.Background(), []manifest.Requirement{"requests>=2.31"})
	if err != nil {
		t.Fatalf("Materialize() returned unexpected error: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("len(artifacts) = %d, want 1", len(arts))
	}
	if !strings.HasPrefix(arts[0].LocalPath, cache.Dir()) {
		t.Errorf("LocalPath = %q, want artifact stored under the cache", arts[0].LocalPath)
	}
	if data, err := os.ReadFile(arts[0].LocalPath); err != nil || len(data) == 0 {
		t.Errorf("cached artifact should be readable: %v", err)
	}

	// A second build over the same cache resolves without re-fetching.
	m2, err := New(Config{
		Indexes:    []string{srv.URL + "/simple/"},
		Cache:      cache,
		HTTPClient: srv.Client(),
		Options:    optionsWith(true),
	})
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}
	if _, err := m2.Materialize(context.Background(), []manifest.Requirement{"requests>=2.31"}); err != nil {
		t.Fatalf("second Materialize() returned unexpected error: %v", err)
	}
	if got := downloads.Load(); got != 1 {
		t.Errorf("artifact downloaded %d times, want 1 (second run served from cache)", got)
	}
}

func TestMaterialize_DisableCacheBypassesLookupAndWriteBack(t *testing.T) {
	t.Parallel()

	var downloads atomic.Int32
	srv := indexServer(t, &downloads, map[string]string{
		"requests": "requests-2.31.0-py3-none-any.whl",
	})

	opts := optionsWith(true)
	opts.DisableCache = true
	downloadDir := t.TempDir()

	for range 2 {
		m, err := New(Config{
			Indexes:     []string{srv.URL + "/simple/"},
			HTTPClient:  srv.Client(),
			Options:     opts,
			DownloadDir: downloadDir,
		})
		if err != nil {
			t.Fatalf("New() returned unexpected error: %v", err)
		}
		if _, err := m.Materialize(context.Background(), []manifest.Requirement{"requests"}); err != nil {
			t.Fatalf("Materialize() returned unexpected error: %v", err)
		}
	}
	if got := downloads.Load(); got != 2 {
		t.Errorf("artifact downloaded %d times, want 2 (cache disabled re-fetches)", got)
	}
}

func TestMaterialize_ResultsKeyedByRequirement(t *testing.T) {
	t.Parallel()

	srv := indexServer(t, nil, map[string]string{
		"requests": "requests-2.31.0-py3-none-any.whl",
		"flask":    "flask-2.3.1-py3-none-any.whl",
		"pyyaml":   "pyyaml-6.0.1-py3-none-any.whl",
	})

	m, err := New(Config{
		Indexes:    []string{srv.URL + "/simple/"},
		Cache:      newTestCache(t),
		HTTPClient: srv.Client(),
		Options:    optionsWith(true),
	})
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}

	reqs := []manifest.Requirement{"flask", "pyyaml", "requests"}
	arts, err := m.Materialize(context.Background(), reqs)
	if err != nil {
		t.Fatalf("Materialize() returned unexpected error: %v", err)
	}
	for i, want := range []string{"flask-", "pyyaml-", "requests-"} {
		if !strings.Contains(arts[i].LocalPath, want) {
			t.Errorf("artifacts[%d] = %q, want result aligned with requirement %q", i, arts[i].LocalPath, reqs[i])
		}
	}
}

func TestMaterialize_EmptyRequirements(t *testing.T) {
	t.Parallel()

	m, err := New(Config{Cache: newTestCache(t), Options: optionsWith(true)})
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}
	arts, err := m.Materialize(context.Background(), nil)
	if err != nil || arts != nil {
		t.Errorf("Materialize(nil) = %v, %v; want nil, nil", arts, err)
	}
}
