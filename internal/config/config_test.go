package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8080" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.API.PageSize != DefaultPageSize {
		t.Errorf("page size = %d", cfg.API.PageSize)
	}
	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.List.ItemHeight != 80 || cfg.List.Overscan != 5 {
		t.Errorf("list = %+v", cfg.List)
	}
	if cfg.BulkDelay() != 100*time.Millisecond {
		t.Errorf("bulk delay = %v", cfg.BulkDelay())
	}
	if cfg.CacheEnabled() {
		t.Error("cache should be disabled without a redis addr")
	}
	if cfg.Path() != "" {
		t.Errorf("path = %q, want empty when no file", cfg.Path())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `{
		"api": {"baseUrl": "https://users.internal", "pageSize": 200},
		"list": {"itemHeight": 64},
		"mutations": {"bulkDelayMs": 250},
		"redis": {"addr": "localhost:6379", "ttlSeconds": 5}
	}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://users.internal" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.API.PageSize != 200 {
		t.Errorf("page size = %d", cfg.API.PageSize)
	}
	if cfg.List.ItemHeight != 64 {
		t.Errorf("item height = %d", cfg.List.ItemHeight)
	}
	if cfg.BulkDelay() != 250*time.Millisecond {
		t.Errorf("bulk delay = %v", cfg.BulkDelay())
	}
	if !cfg.CacheEnabled() || cfg.CacheTTL() != 5*time.Second {
		t.Errorf("redis = %+v", cfg.Redis)
	}
	// Unset fields keep their defaults.
	if cfg.List.Overscan != 5 {
		t.Errorf("overscan = %d, want default", cfg.List.Overscan)
	}
	if cfg.Path() == "" {
		t.Error("path should record the loaded file")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := writeConfig(t, `{"api": {"baseUrl": "http://from-file"}}`)
	t.Setenv("USERDECK_API_URL", "http://from-env")
	t.Setenv("USERDECK_BULK_DELAY_MS", "10")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://from-env" {
		t.Errorf("base url = %q, environment should win", cfg.API.BaseURL)
	}
	if cfg.BulkDelay() != 10*time.Millisecond {
		t.Errorf("bulk delay = %v", cfg.BulkDelay())
	}
}

func TestDeriveLiveURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws/users"},
		{"https://users.internal", "wss://users.internal/ws/users"},
		{"ftp://nope", ""},
	}
	for _, tc := range cases {
		if got := deriveLiveURL(tc.base); got != tc.want {
			t.Errorf("deriveLiveURL(%q) = %q, want %q", tc.base, got, tc.want)
		}
	}
}

func TestLiveURLExplicitWins(t *testing.T) {
	dir := writeConfig(t, `{"api": {"baseUrl": "http://a", "liveUrl": "ws://b/feed"}}`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.LiveURL != "ws://b/feed" {
		t.Errorf("live url = %q", cfg.API.LiveURL)
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	dir := writeConfig(t, `{not json`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestValidateRequiresBaseURL(t *testing.T) {
	dir := writeConfig(t, `{"api": {"baseUrl": ""}}`)
	// File explicitly clears the default; Load must reject it.
	t.Setenv("USERDECK_API_URL", "")
	if _, err := Load(dir); err == nil {
		t.Fatal("expected a validation error")
	}
}
