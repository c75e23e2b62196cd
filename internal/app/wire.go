package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/marketlens/internal/blob/s3"
	"github.com/alanyoungcy/marketlens/internal/cache/redis"
	"github.com/alanyoungcy/marketlens/internal/capability/embed"
	"github.com/alanyoungcy/marketlens/internal/capability/judge"
	"github.com/alanyoungcy/marketlens/internal/config"
	"github.com/alanyoungcy/marketlens/internal/domain"
	"github.com/alanyoungcy/marketlens/internal/index"
	"github.com/alanyoungcy/marketlens/internal/notify"
	"github.com/alanyoungcy/marketlens/internal/platform/polymarket"
	"github.com/alanyoungcy/marketlens/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Catalog    *postgres.CatalogStore
	Embeddings domain.EmbeddingStore

	// In-memory vector index; warmed from the embedding store on startup.
	Index *index.Index

	// Capability clients
	Embedder domain.Embedder
	Judge    domain.Judge

	// Redis-backed infrastructure
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	Bus         domain.SignalBus
	Results     domain.ResultCache

	// Upstream fetch + raw snapshot archiving
	Fetcher  *polymarket.ClobClient
	Archiver *s3blob.SnapshotArchiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.Catalog = postgres.NewCatalogStore(pgClient)
	deps.Embeddings = postgres.NewEmbeddingStore(pgClient)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Bus = redis.NewSignalBus(redisClient)
	deps.Results = redis.NewResultCache(redisClient)

	// --- Vector index ---
	deps.Index = index.New()

	// --- Capability clients ---
	deps.Embedder = embed.NewClient(embed.Config{
		BaseURL:        cfg.Embed.BaseURL,
		APIKey:         cfg.Embed.APIKey,
		Model:          cfg.Embed.Model,
		TimeoutSeconds: cfg.Embed.TimeoutSeconds,
		MaxRetries:     cfg.Embed.MaxRetries,
	})
	deps.Judge = judge.NewClient(judge.Config{
		BaseURL:        cfg.Rerank.BaseURL,
		APIKey:         cfg.Rerank.APIKey,
		Model:          cfg.Rerank.Model,
		TimeoutSeconds: cfg.Rerank.TimeoutSeconds,
	})

	// --- Upstream market source ---
	deps.Fetcher = polymarket.NewClobClient(
		cfg.Upstream.ClobHost,
		cfg.Upstream.MaxPages,
		cfg.Upstream.PageTimeout.Duration,
		logger,
	)

	// --- S3 snapshot archiving (optional) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewSnapshotArchiver(s3blob.NewWriter(s3Client), logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
