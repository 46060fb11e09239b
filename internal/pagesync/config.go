// Package pagesync ties the diff engine, upload pipeline, and API client
// into the page synchronization entry point.
package pagesync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Media types accepted for uploaded attachments.
var defaultUploadTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/svg+xml",
}

// Media types accepted for externally linked attachments.
var defaultExternalTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/svg+xml",
	"image/bmp",
	"image/tiff",
}

// ConflictPolicy selects what happens when the remote page changed between
// planning and execution.
type ConflictPolicy string

const (
	// ConflictFail aborts the sync and surfaces the conflict.
	ConflictFail ConflictPolicy = "fail"
	// ConflictReplace discards the plan and overwrites the whole page.
	ConflictReplace ConflictPolicy = "replace"
)

// Config carries every tunable knob. Zero values are filled in by
// DefaultConfig; the only required field is Token.
type Config struct {
	Token      string `json:"token"`
	BaseURL    string `json:"base_url"`
	APIVersion string `json:"api_version"`

	RateLimitRPS     float64       `json:"rate_limit_rps"`
	RateBurst        int           `json:"rate_burst"`
	RetryMaxAttempts int           `json:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `json:"-"`
	RetryMaxDelay    time.Duration `json:"-"`
	RetryJitter      bool          `json:"retry_jitter"`

	MinMatchRatio  float64        `json:"min_match_ratio"`
	OnConflict     ConflictPolicy `json:"on_conflict"`
	MaxFetchDepth  int            `json:"max_fetch_depth"`
	UploadEnabled  bool           `json:"upload_enabled"`
	MaxConcurrent  int            `json:"max_concurrent_uploads"`
	ChunkSizeBytes int            `json:"chunk_size_bytes"`
	MaxMediaBytes  int64          `json:"max_media_bytes"`

	AllowedUploadTypes   []string `json:"allowed_upload_types"`
	AllowedExternalTypes []string `json:"allowed_external_types"`

	StateDSN string `json:"state_dsn"`

	// Seconds in the JSON file; converted to durations after load.
	RetryBaseDelaySeconds float64 `json:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds  float64 `json:"retry_max_delay_seconds"`
}

// DefaultConfig returns the compiled-in defaults. The allowlist slices are
// fresh copies so one caller's mutation cannot leak into another's config.
func DefaultConfig() Config {
	return Config{
		BaseURL:              "https://api.notion.com/v1",
		APIVersion:           "2025-09-03",
		RateLimitRPS:         3.0,
		RateBurst:            10,
		RetryMaxAttempts:     5,
		RetryBaseDelay:       time.Second,
		RetryMaxDelay:        60 * time.Second,
		RetryJitter:          true,
		MinMatchRatio:        0.3,
		OnConflict:           ConflictFail,
		MaxFetchDepth:        4,
		UploadEnabled:        true,
		MaxConcurrent:        4,
		ChunkSizeBytes:       5 * 1024 * 1024,
		MaxMediaBytes:        5 * 1024 * 1024,
		AllowedUploadTypes:   append([]string(nil), defaultUploadTypes...),
		AllowedExternalTypes: append([]string(nil), defaultExternalTypes...),
	}
}

const configSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"token": {"type": "string"},
		"base_url": {"type": "string", "format": "uri"},
		"api_version": {"type": "string"},
		"rate_limit_rps": {"type": "number", "exclusiveMinimum": 0},
		"rate_burst": {"type": "integer", "minimum": 1},
		"retry_max_attempts": {"type": "integer", "minimum": 0},
		"retry_base_delay_seconds": {"type": "number", "minimum": 0},
		"retry_max_delay_seconds": {"type": "number", "minimum": 0},
		"retry_jitter": {"type": "boolean"},
		"min_match_ratio": {"type": "number", "minimum": 0, "maximum": 1},
		"on_conflict": {"enum": ["fail", "replace"]},
		"max_fetch_depth": {"type": "integer", "minimum": 1},
		"upload_enabled": {"type": "boolean"},
		"max_concurrent_uploads": {"type": "integer", "minimum": 1},
		"chunk_size_bytes": {"type": "integer", "minimum": 1},
		"max_media_bytes": {"type": "integer", "minimum": 1},
		"allowed_upload_types": {"type": "array", "items": {"type": "string"}},
		"allowed_external_types": {"type": "array", "items": {"type": "string"}},
		"state_dsn": {"type": "string"}
	}
}`

// LoadConfigFile reads a JSON config file, validates it against the
// embedded schema, and merges it over the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := validateConfigJSON(data); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.RetryBaseDelaySeconds > 0 {
		cfg.RetryBaseDelay = time.Duration(cfg.RetryBaseDelaySeconds * float64(time.Second))
	}
	if cfg.RetryMaxDelaySeconds > 0 {
		cfg.RetryMaxDelay = time.Duration(cfg.RetryMaxDelaySeconds * float64(time.Second))
	}
	return cfg, cfg.Validate()
}

func validateConfigJSON(data []byte) error {
	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchema))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("pagesync-config.json", schemaDoc); err != nil {
		return fmt.Errorf("register schema: %w", err)
	}
	schema, err := compiler.Compile("pagesync-config.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return schema.Validate(instance)
}

// ApplyEnv overlays PAGESYNC_* environment variables onto the config.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PAGESYNC_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("PAGESYNC_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("PAGESYNC_API_VERSION"); v != "" {
		c.APIVersion = v
	}
	if v := os.Getenv("PAGESYNC_STATE_DSN"); v != "" {
		c.StateDSN = v
	}
	if v := os.Getenv("PAGESYNC_ON_CONFLICT"); v != "" {
		c.OnConflict = ConflictPolicy(v)
	}
	if v := os.Getenv("PAGESYNC_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimitRPS = f
		}
	}
	if v := os.Getenv("PAGESYNC_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RetryMaxAttempts = n
		}
	}
	if v := os.Getenv("PAGESYNC_MAX_CONCURRENT_UPLOADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrent = n
		}
	}
}

// Validate rejects values that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("base_url uses insecure http for non-local host %q", host)
		}
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("rate_limit_rps must be > 0, got %v", c.RateLimitRPS)
	}
	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("retry_max_attempts must be >= 0, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0 {
		return fmt.Errorf("retry delays must be >= 0")
	}
	if c.MinMatchRatio < 0 || c.MinMatchRatio > 1 {
		return fmt.Errorf("min_match_ratio must be within [0,1], got %v", c.MinMatchRatio)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent_uploads must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.ChunkSizeBytes < 1 || c.MaxMediaBytes < 1 {
		return fmt.Errorf("media sizes must be >= 1")
	}
	switch c.OnConflict {
	case ConflictFail, ConflictReplace:
	default:
		return fmt.Errorf("on_conflict must be %q or %q, got %q", ConflictFail, ConflictReplace, c.OnConflict)
	}
	return nil
}

func typeSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}
