package pagesync

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"token": "tk",
		"rate_limit_rps": 5.5,
		"retry_base_delay_seconds": 0.5,
		"on_conflict": "replace"
	}`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.Token != "tk" || cfg.RateLimitRPS != 5.5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Fatalf("RetryBaseDelay = %v, want 500ms", cfg.RetryBaseDelay)
	}
	if cfg.OnConflict != ConflictReplace {
		t.Fatalf("OnConflict = %q", cfg.OnConflict)
	}
	// Untouched fields keep their defaults.
	if cfg.APIVersion != "2025-09-03" || cfg.MaxConcurrent != 4 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadConfigFileRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, `{"token": "tk", "rate_limit": 5}`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("unknown key accepted")
	}
}

func TestLoadConfigFileRejectsWrongType(t *testing.T) {
	path := writeConfig(t, `{"rate_limit_rps": "fast"}`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("string rate accepted")
	}
}

func TestLoadConfigFileRejectsBadPolicy(t *testing.T) {
	path := writeConfig(t, `{"on_conflict": "merge"}`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("unknown conflict policy accepted")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PAGESYNC_TOKEN", "env-token")
	t.Setenv("PAGESYNC_RATE_LIMIT_RPS", "7")
	t.Setenv("PAGESYNC_MAX_CONCURRENT_UPLOADS", "2")
	t.Setenv("PAGESYNC_ON_CONFLICT", "replace")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.Token != "env-token" || cfg.RateLimitRPS != 7 || cfg.MaxConcurrent != 2 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.OnConflict != ConflictReplace {
		t.Fatalf("OnConflict = %q", cfg.OnConflict)
	}
}

func TestValidateRejectsInsecureBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://api.example.com/v1"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "insecure") {
		t.Fatalf("expected insecure base_url error, got %v", err)
	}

	cfg.BaseURL = "http://127.0.0.1:8080/v1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loopback http rejected: %v", err)
	}
}

func TestValidateRanges(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitRPS = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero rps accepted")
	}

	cfg = DefaultConfig()
	cfg.MinMatchRatio = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ratio above 1 accepted")
	}

	cfg = DefaultConfig()
	cfg.MaxConcurrent = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero concurrency accepted")
	}
}
