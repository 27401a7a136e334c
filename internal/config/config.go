package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	AnnoscopeAPIKey string

	// Claude classification
	AnthropicAPIKey     string
	AnthropicModel      string
	ClassifyMaxRetries  int
	ClassifyBatchTokens int

	// Positions backend; empty URL disables it
	PositionsURL    string
	PositionsAPIKey string

	// Scope persistence; empty URL keeps scopes in memory
	RedisURL string
	ScopeTTL time.Duration

	// Sessions
	SessionTTL time.Duration

	// Upload limits
	MaxUploadBytes int64

	// Chunking for position extraction
	DefaultChunkSize int

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		AnnoscopeAPIKey: os.Getenv("ANNOSCOPE_API_KEY"),

		AnthropicAPIKey:     os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:      envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		ClassifyMaxRetries:  envInt("CLASSIFY_MAX_RETRIES", 3),
		ClassifyBatchTokens: envInt("CLASSIFY_BATCH_TOKENS", 2000),

		PositionsURL:    os.Getenv("POSITIONS_URL"),
		PositionsAPIKey: os.Getenv("POSITIONS_API_KEY"),

		RedisURL: os.Getenv("REDIS_URL"),
		ScopeTTL: envDuration("SCOPE_TTL", 24*time.Hour),

		SessionTTL: envDuration("SESSION_TTL", 1*time.Hour),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		DefaultChunkSize: envInt("DEFAULT_CHUNK_SIZE", 1500),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.ClassifyMaxRetries < 0 {
		cfg.ClassifyMaxRetries = 0
	}
	if cfg.ClassifyBatchTokens <= 0 {
		cfg.ClassifyBatchTokens = 2000
	}
	if cfg.ScopeTTL <= 0 {
		cfg.ScopeTTL = 24 * time.Hour
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 1 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.DefaultChunkSize <= 0 {
		cfg.DefaultChunkSize = 1500
	}

	return cfg
}

// Validate checks required keys. Classification and positions are optional;
// their keys are only required once they are switched on.
func (c Config) Validate() error {
	if c.AnnoscopeAPIKey == "" {
		return fmt.Errorf("ANNOSCOPE_API_KEY is required")
	}
	if c.PositionsURL != "" && c.PositionsAPIKey == "" {
		return fmt.Errorf("POSITIONS_API_KEY is required when POSITIONS_URL is set")
	}
	return nil
}

// ClassificationEnabled reports whether an Anthropic key is configured.
func (c Config) ClassificationEnabled() bool {
	return c.AnthropicAPIKey != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
