package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

// TestDefault verifies defaults mirror the core constants.
func TestDefault(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"cache ttl", cfg.Cache.DefaultTTL, 24 * time.Hour},
		{"cache chunk", cfg.Cache.ChunkSize, 50},
		{"cleanup interval", cfg.Cache.CleanupInterval, 30 * time.Minute},
		{"debounce", cfg.Prefetch.Debounce, 300 * time.Millisecond},
		{"cleanup chunk", cfg.Prefetch.CleanupChunk, 20},
		{"api timeout", cfg.API.Timeout, 10 * time.Second},
		{"sync completion", cfg.Sync.CompletionTimeout, 30 * time.Second},
		{"upload concurrency", cfg.Upload.Concurrency, 3},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

// TestValidate verifies required fields and positive sizes.
func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	if !apperrors.Is(err, apperrors.ErrValidation) || !strings.Contains(err.Error(), "api.base_url") {
		t.Errorf("Validate() without base url = %v", err)
	}

	cfg.API.BaseURL = "https://example.test/api"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	cfg.Upload.Concurrency = 0
	cfg.Cache.ChunkSize = -1
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "upload.concurrency") || !strings.Contains(err.Error(), "cache.chunk_size") {
		t.Errorf("Validate() = %v, want both problems listed", err)
	}
}

// TestLoad_file verifies file values and environment overrides.
func TestLoad_file(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldsync.yaml")
	content := `
data_dir: /tmp/fs-data
api:
  base_url: https://example.test/api/
  timeout: 5s
upload:
  concurrency: 4
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FIELDSYNC_CACHE_CHUNK_SIZE", "25")

	l, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	cfg := l.Config()

	if cfg.DataDir != "/tmp/fs-data" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.API.BaseURL != "https://example.test/api" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.API.Timeout)
	}
	if cfg.Upload.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Upload.Concurrency)
	}
	if cfg.Cache.ChunkSize != 25 {
		t.Errorf("ChunkSize = %d, want env override 25", cfg.Cache.ChunkSize)
	}
	if l.File() != path {
		t.Errorf("File() = %q, want %q", l.File(), path)
	}
}

// TestLoad_missingExplicitFile verifies an explicit path must exist.
func TestLoad_missingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() with a missing explicit file should fail")
	}
}

// TestLoad_noFile verifies running on defaults when nothing is found.
func TestLoad_noFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	l, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if l.File() != "" {
		t.Errorf("File() = %q, want empty", l.File())
	}
	if l.Config().Upload.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want default 3", l.Config().Upload.Concurrency)
	}

	// Watch without a file is a no-op
	l.Watch(func(*Config) { t.Error("callback should not fire") })
}

// TestWatch verifies changes to the file are picked up.
func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldsync.yaml")
	os.WriteFile(path, []byte("log:\n  level: info\n"), 0644)

	l, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	changed := make(chan *Config, 4)
	l.Watch(func(c *Config) { changed <- c })

	// Give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(path, []byte("log:\n  level: debug\n"), 0644)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Log.Level == "debug" {
				if l.Config().Log.Level != "debug" {
					t.Errorf("Config().Log.Level = %q, want debug", l.Config().Log.Level)
				}
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}
