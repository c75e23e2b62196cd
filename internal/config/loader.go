package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETLENS_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETLENS_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Upstream ──
	setStr(&cfg.Upstream.ClobHost, "MARKETLENS_UPSTREAM_CLOB_HOST")
	setInt(&cfg.Upstream.MaxPages, "MARKETLENS_UPSTREAM_MAX_PAGES")
	setDuration(&cfg.Upstream.PageTimeout, "MARKETLENS_UPSTREAM_PAGE_TIMEOUT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MARKETLENS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARKETLENS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETLENS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETLENS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETLENS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETLENS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETLENS_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETLENS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETLENS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETLENS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MARKETLENS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETLENS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETLENS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETLENS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETLENS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETLENS_REDIS_TLS_ENABLED")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "MARKETLENS_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "MARKETLENS_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "MARKETLENS_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "MARKETLENS_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "MARKETLENS_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "MARKETLENS_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.UseSSL, "MARKETLENS_ARCHIVE_USE_SSL")
	setBool(&cfg.Archive.ForcePathStyle, "MARKETLENS_ARCHIVE_FORCE_PATH_STYLE")

	// ── Embed ──
	setStr(&cfg.Embed.BaseURL, "MARKETLENS_EMBED_BASE_URL")
	setStr(&cfg.Embed.APIKey, "MARKETLENS_EMBED_API_KEY")
	setStr(&cfg.Embed.Model, "MARKETLENS_EMBED_MODEL")
	setInt(&cfg.Embed.TimeoutSeconds, "MARKETLENS_EMBED_TIMEOUT_SECONDS")
	setInt(&cfg.Embed.MaxRetries, "MARKETLENS_EMBED_MAX_RETRIES")

	// ── Rerank ──
	setStr(&cfg.Rerank.BaseURL, "MARKETLENS_RERANK_BASE_URL")
	setStr(&cfg.Rerank.APIKey, "MARKETLENS_RERANK_API_KEY")
	setStr(&cfg.Rerank.Model, "MARKETLENS_RERANK_MODEL")
	setInt(&cfg.Rerank.TimeoutSeconds, "MARKETLENS_RERANK_TIMEOUT_SECONDS")
	setInt(&cfg.Rerank.TopK, "MARKETLENS_RERANK_TOP_K")

	// ── Sync ──
	setDuration(&cfg.Sync.Interval, "MARKETLENS_SYNC_INTERVAL")
	setDuration(&cfg.Sync.BackoffBase, "MARKETLENS_SYNC_BACKOFF_BASE")
	setDuration(&cfg.Sync.BackoffCap, "MARKETLENS_SYNC_BACKOFF_CAP")
	setInt(&cfg.Sync.DegradedAfter, "MARKETLENS_SYNC_DEGRADED_AFTER")
	setDuration(&cfg.Sync.LockTTL, "MARKETLENS_SYNC_LOCK_TTL")

	// ── Query ──
	setInt(&cfg.Query.DefaultK, "MARKETLENS_QUERY_DEFAULT_K")
	setInt(&cfg.Query.CandidateK, "MARKETLENS_QUERY_CANDIDATE_K")
	setInt(&cfg.Query.MaxInputChars, "MARKETLENS_QUERY_MAX_INPUT_CHARS")
	setFloat64(&cfg.Query.SimilarityWeight, "MARKETLENS_QUERY_SIMILARITY_WEIGHT")
	setFloat64(&cfg.Query.RecencyWeight, "MARKETLENS_QUERY_RECENCY_WEIGHT")
	setFloat64(&cfg.Query.DedupeThreshold, "MARKETLENS_QUERY_DEDUPE_THRESHOLD")
	setDuration(&cfg.Query.CacheTTL, "MARKETLENS_QUERY_CACHE_TTL")
	setDuration(&cfg.Query.DefaultTimeout, "MARKETLENS_QUERY_DEFAULT_TIMEOUT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MARKETLENS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MARKETLENS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETLENS_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MARKETLENS_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "MARKETLENS_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETLENS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETLENS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETLENS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETLENS_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MARKETLENS_MODE")
	setStr(&cfg.LogLevel, "MARKETLENS_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
