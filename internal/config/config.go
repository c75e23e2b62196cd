// Package config defines the top-level configuration for marketlens and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETLENS_* environment variables.
type Config struct {
	Upstream UpstreamConfig `toml:"upstream"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Archive  ArchiveConfig  `toml:"archive"`
	Embed    EmbedConfig    `toml:"embed"`
	Rerank   RerankConfig   `toml:"rerank"`
	Sync     SyncConfig     `toml:"sync"`
	Query    QueryConfig    `toml:"query"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// UpstreamConfig holds the market-source API endpoint and fetch limits.
type UpstreamConfig struct {
	ClobHost    string `toml:"clob_host"`
	MaxPages    int    `toml:"max_pages"`
	PageTimeout duration `toml:"page_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ArchiveConfig holds S3-compatible storage parameters for raw snapshot
// archiving. Disabled unless enabled is true.
type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EmbedConfig holds the embedding capability endpoint and model. The same
// model serves corpus and query embedding so both sides share one vector
// space.
type EmbedConfig struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	Model          string   `toml:"model"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	MaxRetries     int      `toml:"max_retries"`
}

// RerankConfig holds the judge capability endpoint and model.
type RerankConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	TopK           int    `toml:"top_k"`
}

// SyncConfig holds catalog synchronizer parameters.
type SyncConfig struct {
	Interval        duration `toml:"interval"`
	BackoffBase     duration `toml:"backoff_base"`
	BackoffCap      duration `toml:"backoff_cap"`
	DegradedAfter   int      `toml:"degraded_after"`
	LockTTL         duration `toml:"lock_ttl"`
}

// QueryConfig holds query pipeline parameters.
type QueryConfig struct {
	DefaultK         int      `toml:"default_k"`
	CandidateK       int      `toml:"candidate_k"`
	MaxInputChars    int      `toml:"max_input_chars"`
	SimilarityWeight float64  `toml:"similarity_weight"`
	RecencyWeight    float64  `toml:"recency_weight"`
	DedupeThreshold  float64  `toml:"dedupe_threshold"`
	CacheTTL         duration `toml:"cache_ttl"`
	DefaultTimeout   duration `toml:"default_timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Upstream: UpstreamConfig{
			ClobHost:    "https://clob.polymarket.com",
			MaxPages:    100,
			PageTimeout: duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketlens",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketlens-snapshots",
			ForcePathStyle: true,
		},
		Embed: EmbedConfig{
			BaseURL:        "https://api.openai.com/v1/embeddings",
			Model:          "text-embedding-3-small",
			TimeoutSeconds: 15,
			MaxRetries:     3,
		},
		Rerank: RerankConfig{
			BaseURL:        "https://api.openai.com/v1/chat/completions",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 5,
			TopK:           5,
		},
		Sync: SyncConfig{
			Interval:      duration{60 * time.Second},
			BackoffBase:   duration{1 * time.Second},
			BackoffCap:    duration{60 * time.Second},
			DegradedAfter: 3,
			LockTTL:       duration{30 * time.Second},
		},
		Query: QueryConfig{
			DefaultK:         5,
			CandidateK:       20,
			MaxInputChars:    2000,
			SimilarityWeight: 0.8,
			RecencyWeight:    0.2,
			DedupeThreshold:  0.9,
			CacheTTL:         duration{10 * time.Minute},
			DefaultTimeout:   duration{10 * time.Second},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:5173"},
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"sync.degraded", "sync.recovered", "sync.expired"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
	"sync":  true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sync, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Upstream
	if c.Upstream.ClobHost == "" {
		errs = append(errs, "upstream: clob_host must not be empty")
	}
	if c.Upstream.MaxPages < 1 {
		errs = append(errs, "upstream: max_pages must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			errs = append(errs, "archive: endpoint must not be empty when enabled")
		}
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must not be empty when enabled")
		}
	}

	// Embed
	if c.Embed.BaseURL == "" {
		errs = append(errs, "embed: base_url must not be empty")
	}
	if c.Embed.Model == "" {
		errs = append(errs, "embed: model must not be empty")
	}

	// Rerank
	if c.Rerank.BaseURL == "" {
		errs = append(errs, "rerank: base_url must not be empty")
	}
	if c.Rerank.TopK < 1 {
		errs = append(errs, "rerank: top_k must be >= 1")
	}

	// Sync
	if c.Sync.Interval.Duration <= 0 {
		errs = append(errs, "sync: interval must be positive")
	}
	if c.Sync.BackoffBase.Duration <= 0 || c.Sync.BackoffCap.Duration < c.Sync.BackoffBase.Duration {
		errs = append(errs, "sync: backoff_base must be positive and backoff_cap >= backoff_base")
	}
	if c.Sync.DegradedAfter < 1 {
		errs = append(errs, "sync: degraded_after must be >= 1")
	}

	// Query
	if c.Query.DefaultK < 1 {
		errs = append(errs, "query: default_k must be >= 1")
	}
	if c.Query.CandidateK < c.Query.DefaultK {
		errs = append(errs, "query: candidate_k must be >= default_k")
	}
	if w := c.Query.SimilarityWeight + c.Query.RecencyWeight; w <= 0 {
		errs = append(errs, "query: similarity_weight + recency_weight must be positive")
	}
	if c.Query.DedupeThreshold < 0 || c.Query.DedupeThreshold > 1 {
		errs = append(errs, fmt.Sprintf("query: dedupe_threshold must be in [0,1], got %v", c.Query.DedupeThreshold))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
