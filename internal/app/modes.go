package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketlens/internal/query"
	"github.com/alanyoungcy/marketlens/internal/rerank"
	"github.com/alanyoungcy/marketlens/internal/server"
	"github.com/alanyoungcy/marketlens/internal/server/handler"
	"github.com/alanyoungcy/marketlens/internal/server/ws"
	"github.com/alanyoungcy/marketlens/internal/service"
	catsync "github.com/alanyoungcy/marketlens/internal/sync"
)

// ServeMode answers match queries over HTTP without running a local catalog
// synchronizer. The index is warmed from stored embeddings; another instance
// in sync mode keeps the catalog fresh.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	syncer := a.buildSyncer(deps)
	if err := syncer.Warm(ctx); err != nil {
		a.logger.WarnContext(ctx, "index warm-up failed, serving lexical-only until embeddings load",
			slog.String("error", err.Error()),
		)
	}

	// No local sync loop runs, so the health handler gets no sync status.
	a.startHTTPServer(ctx, g, deps, nil)

	return g.Wait()
}

// SyncMode runs the catalog synchronizer loop without the HTTP surface.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sync mode")

	g, ctx := errgroup.WithContext(ctx)

	syncer := a.buildSyncer(deps)
	if err := syncer.Warm(ctx); err != nil {
		a.logger.WarnContext(ctx, "index warm-up failed",
			slog.String("error", err.Error()),
		)
	}

	g.Go(func() error {
		return syncer.Run(ctx)
	})

	return g.Wait()
}

// FullMode runs the synchronizer and the HTTP surface in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	syncer := a.buildSyncer(deps)
	if err := syncer.Warm(ctx); err != nil {
		a.logger.WarnContext(ctx, "index warm-up failed, first sync cycle will rebuild it",
			slog.String("error", err.Error()),
		)
	}

	g.Go(func() error {
		return syncer.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, syncer)
	}

	return g.Wait()
}

// buildSyncer wires the catalog synchronizer from the shared dependencies.
func (a *App) buildSyncer(deps *Dependencies) *catsync.Syncer {
	var archiver catsync.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	return catsync.New(
		deps.Fetcher,
		deps.Catalog,
		deps.Embeddings,
		deps.Index,
		deps.Embedder,
		deps.Locks,
		archiver,
		deps.Bus,
		deps.Notifier,
		catsync.Config{
			Interval:      a.cfg.Sync.Interval.Duration,
			BackoffBase:   a.cfg.Sync.BackoffBase.Duration,
			BackoffCap:    a.cfg.Sync.BackoffCap.Duration,
			DegradedAfter: a.cfg.Sync.DegradedAfter,
			LockTTL:       a.cfg.Sync.LockTTL.Duration,
		},
		a.logger,
	)
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. syncer may be nil when no local synchronizer runs; the
// health and status endpoints then omit sync state.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, syncer *catsync.Syncer) {
	startedAt := time.Now().UTC()

	pipeline := query.NewPipeline(deps.Embedder, deps.Index, deps.Catalog, query.Config{
		DefaultK:         a.cfg.Query.DefaultK,
		CandidateK:       a.cfg.Query.CandidateK,
		MaxInputChars:    a.cfg.Query.MaxInputChars,
		SimilarityWeight: a.cfg.Query.SimilarityWeight,
		RecencyWeight:    a.cfg.Query.RecencyWeight,
		DedupeThreshold:  a.cfg.Query.DedupeThreshold,
	}, a.logger)

	reranker := rerank.NewStage(deps.Judge, deps.Catalog, rerank.Config{
		TopK:    a.cfg.Rerank.TopK,
		Timeout: time.Duration(a.cfg.Rerank.TimeoutSeconds) * time.Second,
	}, a.logger)

	matchSvc := service.NewMatchService(pipeline, reranker, deps.Results, deps.Catalog, service.MatchConfig{
		CacheTTL:       a.cfg.Query.CacheTTL.Duration,
		DefaultTimeout: a.cfg.Query.DefaultTimeout.Duration,
		MaxInputChars:  a.cfg.Query.MaxInputChars,
	}, a.logger)

	catalogSvc := service.NewCatalogService(deps.Catalog, a.logger)

	// A nil *Syncer must stay a nil interface for the handlers' checks.
	var syncStatus handler.SyncStatus
	if syncer != nil {
		syncStatus = syncer
	}

	hub := ws.NewHub(deps.Bus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(syncStatus, startedAt, a.logger),
			Markets: handler.NewMarketHandler(catalogSvc, a.logger),
			Match:   handler.NewMatchHandler(matchSvc, a.logger),
			Status:  handler.NewStatusHandler(catalogSvc, syncStatus, a.cfg.Mode, startedAt, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
