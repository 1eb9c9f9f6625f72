// Package config loads gamerec configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. Environment variables use the GAMEREC_ prefix and a
// double underscore between nesting levels:
//
//	GAMEREC_SERVER__ADDR=:9090        -> server.addr
//	GAMEREC_EMBEDDING__PROVIDER=jina  -> embedding.provider
//	GAMEREC_DB_PATH=/data/games.db    -> database.path
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultDBPath is the database location used when none is configured.
const DefaultDBPath = "~/.gamerec/gamerec.db"

// Config is the complete application configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Ranking   RankingConfig   `koanf:"ranking"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig locates the snapshot database.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"notblank"`

	// KeepSnapshots is how many snapshots prepare retains. 0 keeps all.
	KeepSnapshots int `koanf:"keep_snapshots" validate:"gte=0"`
}

// CatalogConfig controls CSV ingestion and feature construction.
type CatalogConfig struct {
	CSVPath              string  `koanf:"csv_path"`
	MaxDescriptionTokens int     `koanf:"max_description_tokens" validate:"gte=1"`
	QualityPercentile    float64 `koanf:"quality_percentile" validate:"gt=0,lte=1"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider  string        `koanf:"provider" validate:"omitempty,oneof=local openai jina tei"`
	APIKey    string        `koanf:"api_key"`
	BaseURL   string        `koanf:"base_url" validate:"omitempty,url"`
	Model     string        `koanf:"model"`
	Dimension int           `koanf:"dimension" validate:"gte=1"`
	CacheSize int           `koanf:"cache_size" validate:"gte=0"`
	Timeout   time.Duration `koanf:"timeout"`

	// Preparation
	BatchSize int `koanf:"batch_size" validate:"gte=1"`
	Workers   int `koanf:"workers" validate:"gte=1"`

	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// RankingConfig tunes the hybrid ranking engine.
type RankingConfig struct {
	CandidateK   int           `koanf:"candidate_k" validate:"gte=1"`
	DefaultAlpha float64       `koanf:"default_alpha" validate:"gte=0,lte=1"`
	DefaultTopN  int           `koanf:"default_top_n" validate:"gte=1"`
	MaxTopN      int           `koanf:"max_top_n" validate:"gte=1"`
	CacheSize    int           `koanf:"cache_size"` // negative disables the cache
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"notblank"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"` // deadline for one recommendation, 0 disables
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit" validate:"gte=0"` // requests per window and IP, 0 disables
	RateWindow      time.Duration `koanf:"rate_window"`

	// WatchInterval is how often serve polls for a newer snapshot. 0 disables.
	WatchInterval time.Duration `koanf:"watch_interval"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ResolvedDBPath returns Database.Path with a leading "~/" expanded.
func (c *Config) ResolvedDBPath() (string, error) {
	return ExpandPath(c.Database.Path)
}

// ExpandPath expands a leading "~/" to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
