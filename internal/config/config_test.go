// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should be enabled by default")
	}
	if len(cfg.Network.Indexes) != 1 || cfg.Network.Indexes[0] != DefaultIndexURL {
		t.Errorf("indexes = %v, want [%s]", cfg.Network.Indexes, DefaultIndexURL)
	}
	if cfg.Network.Timeout != 30*time.Second || cfg.Network.Retries != 3 {
		t.Errorf("network defaults = %+v", cfg.Network)
	}
	if cfg.Log.Level != LogLevelInfo {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := writeConfig(t, `
cache: {
	enabled: false
	dir:     "/tmp/pybundle-cache"
}
network: {
	indexes: ["https://mirror.example/simple/"]
	timeout: "10s"
	retries: 5
}
log: {
	level: "debug"
}
`)
	cfg, path, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("LoadWithPath() error = %v", err)
	}
	if path == "" {
		t.Error("resolved path should name the loaded file")
	}
	if cfg.Cache.Enabled || cfg.Cache.Dir != "/tmp/pybundle-cache" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Network.Timeout != 10*time.Second || cfg.Network.Retries != 5 {
		t.Errorf("network = %+v", cfg.Network)
	}
	if cfg.Network.Backoff != 500*time.Millisecond {
		t.Errorf("unset backoff should keep its default, got %v", cfg.Network.Backoff)
	}
	if cfg.Log.Level != LogLevelDebug {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoad_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown key", content: `networks: {}`},
		{name: "bad log level", content: `log: {level: "loud"}`},
		{name: "retries below one", content: `network: {retries: 0}`},
		{name: "non-string index", content: `network: {indexes: [42]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.content)
			_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := NewProvider().Load(context.Background(), LoadOptions{
		ConfigFilePath: filepath.Join(t.TempDir(), "nope.cue"),
	})
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
	if !strings.Contains(err.Error(), "nope.cue") {
		t.Errorf("error should name the missing file, got: %v", err)
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProvider().Load(ctx, LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Load() error = %v, want context.Canceled", err)
	}
}

func TestGenerateCUE_RoundTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Dir = "/var/cache/pybundle"
	cfg.Log.Level = LogLevelWarn

	dir := writeConfig(t, GenerateCUE(cfg))
	loaded, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() of generated config error = %v", err)
	}
	if loaded.Cache.Dir != cfg.Cache.Dir || loaded.Log.Level != cfg.Log.Level {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if loaded.Network.Timeout != cfg.Network.Timeout {
		t.Errorf("timeout = %v, want %v", loaded.Network.Timeout, cfg.Network.Timeout)
	}
}
