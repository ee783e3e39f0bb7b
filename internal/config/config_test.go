package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.API.SearchBackend = "none"
	return cfg
}

func TestDefaultConfigValidates(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateHardPoolConstraints(t *testing.T) {
	cfg := validConfig()
	cfg.Governor.MaxPoolSize = 5
	if err := Validate(cfg); err == nil {
		t.Error("browser pool cap other than 3 must be rejected")
	}

	cfg = validConfig()
	cfg.Governor.PDFMaxConcurrent = 4
	if err := Validate(cfg); err == nil {
		t.Error("PDF semaphore cap other than 2 must be rejected")
	}
}

func TestValidateScorerWeights(t *testing.T) {
	cfg := validConfig()
	cfg.Scorer.AlphaBM25 = 0.9 // now sums to 1.5
	if err := Validate(cfg); err == nil {
		t.Error("scorer weights not summing to 1 must be rejected")
	}

	cfg.Scorer.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled scorer should skip the weight check: %v", err)
	}
}

func TestValidateSerperRequiresKey(t *testing.T) {
	cfg := validConfig()
	cfg.API.SearchBackend = "serper"
	cfg.API.SerperAPIKey = ""
	if err := Validate(cfg); err == nil {
		t.Error("serper backend without an API key must be rejected")
	}
	cfg.API.SerperAPIKey = "k"
	if err := Validate(cfg); err != nil {
		t.Errorf("unexpected: %v", err)
	}
}

func TestValidateURLCases(t *testing.T) {
	cases := []struct {
		url string
		ok  bool
	}{
		{"https://example.com/a", true},
		{"http://example.com", true},
		{"ftp://example.com", false},
		{"https://", false},
		{"http://localhost/x", false},
		{"http://127.0.0.1/x", false},
		{"http://192.168.0.1/x", false},
	}
	for _, tc := range cases {
		err := ValidateURL(tc.url)
		if (err == nil) != tc.ok {
			t.Errorf("ValidateURL(%q) err=%v, want ok=%v", tc.url, err, tc.ok)
		}
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "riptide.yaml")
	yaml := `
budget:
  max_pages: 77
spider:
  max_concurrent_global: 9
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Budget.MaxPages != 77 {
		t.Errorf("max_pages = %d, want file override", cfg.Budget.MaxPages)
	}
	if cfg.Spider.MaxConcurrentGlobal != 9 {
		t.Errorf("max_concurrent_global = %d", cfg.Spider.MaxConcurrentGlobal)
	}
	// Untouched keys keep their defaults.
	if cfg.Budget.MaxDepth != 10 {
		t.Errorf("max_depth = %d, want default 10", cfg.Budget.MaxDepth)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEARCH_BACKEND", "searxng")
	t.Setenv("REQUIRE_AUTH", "false")
	t.Setenv("AUTH_RATE_LIMIT_WINDOW_SECS", "120")
	t.Setenv("MAX_AUTH_ATTEMPTS_PER_MINUTE", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.SearchBackend != "searxng" {
		t.Errorf("search backend = %q", cfg.API.SearchBackend)
	}
	if cfg.API.RequireAuth {
		t.Error("REQUIRE_AUTH=false not applied")
	}
	if cfg.API.AuthRateLimitWindow != 120*time.Second {
		t.Errorf("auth window = %v, want 120s from the _SECS env form", cfg.API.AuthRateLimitWindow)
	}
	if cfg.API.MaxAuthAttemptsPerMinute != 5 {
		t.Errorf("max auth attempts = %d", cfg.API.MaxAuthAttemptsPerMinute)
	}
}

func TestWatcherHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "riptide.yaml")
	if err := os.WriteFile(path, []byte("api:\n  search_backend: none\nbudget:\n  max_pages: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if got := w.Current().Budget.MaxPages; got != 10 {
		t.Fatalf("initial max_pages = %d", got)
	}

	if err := os.WriteFile(path, []byte("api:\n  search_backend: none\nbudget:\n  max_pages: 20\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if w.Current().Budget.MaxPages == 20 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("watcher did not pick up the config change")
}
