// SPDX-License-Identifier: MPL-2.0

package materialize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pybundle/pybundle/pkg/pydist"
)

const (
	// CachePathEnv overrides the default artifact cache location.
	CachePathEnv = "PYBUNDLE_CACHE_DIR"

	// defaultCacheSubdir is the subdirectory under the user cache dir.
	defaultCacheSubdir = "pybundle/artifacts"
)

// Cache is the explicit on-disk artifact-resolution cache handle. Entries
// are keyed by normalized requirement specifier plus resolution mode, so
// a wheels-excluded resolution never serves a cached wheel. Callers
// choose the cache location and lifetime; there is no implicit singleton.
//
// Two builds must not share one cache directory concurrently; serialize
// them or give each build its own directory.
type Cache struct {
	dir string
}

// ResolutionMode condenses the option fields that affect which artifact
// satisfies a requirement. Cached entries from one mode are invisible to
// another.
type ResolutionMode struct {
	UseWheels    bool
	PlatformTags []string
}

// String returns the stable textual form used in cache keys.
func (m ResolutionMode) String() string {
	tags := append([]string{}, m.PlatformTags...)
	for i, t := range tags {
		tags[i] = pydist.NormalizeTag(t)
	}
	return fmt.Sprintf("wheels=%t;platforms=%s", m.UseWheels, strings.Join(tags, ","))
}

// DefaultCacheDir returns the default artifact cache directory: the
// PYBUNDLE_CACHE_DIR environment variable when set, otherwise a
// pybundle subdirectory of the user cache dir.
func DefaultCacheDir() (string, error) {
	return DefaultCacheDirWith(os.Getenv)
}

// DefaultCacheDirWith resolves the default cache directory using the
// provided getenv function. This enables testing without mutating
// process-global environment state.
func DefaultCacheDirWith(getenv func(string) string) (string, error) {
	if envPath := getenv(CachePathEnv); envPath != "" {
		return envPath, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return filepath.Join(base, filepath.FromSlash(defaultCacheSubdir)), nil
}

// NewCache opens (creating if needed) a cache rooted at dir. An empty
// dir selects the default location.
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		var err error
		dir, err = DefaultCacheDir()
		if err != nil {
			return nil, err
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &Cache{dir: abs}, nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string { return c.dir }

// entryDir computes the directory one (specifier, mode) pair caches into.
func (c *Cache) entryDir(spec pydist.Specifier, mode ResolutionMode) string {
	sum := sha256.Sum256([]byte(strings.ToLower(spec.Raw) + "\x00" + mode.String()))
	return filepath.Join(c.dir, string(spec.Key()), hex.EncodeToString(sum[:8]))
}

// Lookup returns the cached artifact path for the specifier in the given
// mode, or ok=false when nothing is cached.
func (c *Cache) Lookup(spec pydist.Specifier, mode ResolutionMode) (string, bool, error) {
	dir := c.entryDir(spec, mode)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := pydist.KindForFilename(e.Name()); err == nil {
			return filepath.Join(dir, e.Name()), true, nil
		}
	}
	return "", false, nil
}

// Store copies the artifact at srcPath into the cache under the
// specifier's key and returns the cached path. Storing over an existing
// entry replaces it.
func (c *Cache) Store(spec pydist.Specifier, mode ResolutionMode, srcPath string) (string, error) {
	dir := c.entryDir(spec, mode)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear cache entry: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache entry: %w", err)
	}

	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact for caching: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(srcPath))
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cache entry: %w", err)
	}
	return dst, nil
}

// Clear removes every cached entry, keeping the root directory.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return fmt.Errorf("failed to remove cache entry %q: %w", e.Name(), err)
		}
	}
	return nil
}

// Info reports the number of cached artifact files and their total size.
func (c *Cache) Info() (files int, bytes int64, err error) {
	err = filepath.WalkDir(c.dir, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		files++
		bytes += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to walk cache directory: %w", err)
	}
	return files, bytes, nil
}
