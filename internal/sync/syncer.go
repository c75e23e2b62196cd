// Package sync implements the catalog synchronizer: the periodic loop that
// pulls the upstream market feed, applies it to the catalog store, tombstones
// vanished markets, and keeps the embedding index aligned with catalog text.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/alanyoungcy/marketlens/internal/domain"
	"github.com/alanyoungcy/marketlens/internal/notify"
	"github.com/alanyoungcy/marketlens/internal/platform/polymarket"
)

// CatalogChannel is the signal bus channel carrying catalog update events.
const CatalogChannel = "catalog.updated"

const applyLockKey = "sync-apply"

// Fetcher abstracts the upstream catalog client.
type Fetcher interface {
	FetchAllMarkets(ctx context.Context) (polymarket.FetchResult, error)
}

// CatalogWriter is the store surface the synchronizer needs: the shared read
// interface plus batch expiry, which only the synchronizer may invoke.
// ExpireAbsent returns the ids it tombstoned so the index can be refreshed.
type CatalogWriter interface {
	domain.CatalogStore
	ExpireAbsent(ctx context.Context, seen []string) ([]string, error)
}

// Archiver persists raw fetch pages; best-effort.
type Archiver interface {
	ArchiveFetch(ctx context.Context, pages [][]byte) int
}

// Config holds the synchronizer's timing parameters.
type Config struct {
	Interval      time.Duration
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	DegradedAfter int
	LockTTL       time.Duration
}

// Status is a point-in-time health snapshot of the synchronizer.
type Status struct {
	Degraded            bool      `json:"degraded"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSyncAt          time.Time `json:"last_sync_at"`
	LastError           string    `json:"last_error,omitempty"`
	MarketCount         int64     `json:"market_count"`
	IndexSize           int       `json:"index_size"`
	Epoch               uint64    `json:"epoch"`
}

// Syncer drives the sync loop. One Cycle is fetch, archive, apply under
// lock, expire absentees, reindex, publish. The distributed lock is held only
// around the catalog write, never across the network fetch.
type Syncer struct {
	fetcher    Fetcher
	catalog    CatalogWriter
	embeddings domain.EmbeddingStore
	index      domain.VectorIndex
	embedder   domain.Embedder
	locks      domain.LockManager
	archiver   Archiver
	bus        domain.SignalBus
	notifier   *notify.Notifier
	cfg        Config
	logger     *slog.Logger

	mu       sync.Mutex
	failures int
	degraded bool
	lastSync time.Time
	lastErr  error
}

// New wires a Syncer. archiver, bus, and notifier may be nil; the
// corresponding steps are skipped.
func New(
	fetcher Fetcher,
	catalog CatalogWriter,
	embeddings domain.EmbeddingStore,
	index domain.VectorIndex,
	embedder domain.Embedder,
	locks domain.LockManager,
	archiver Archiver,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	cfg Config,
	logger *slog.Logger,
) *Syncer {
	return &Syncer{
		fetcher:    fetcher,
		catalog:    catalog,
		embeddings: embeddings,
		index:      index,
		embedder:   embedder,
		locks:      locks,
		archiver:   archiver,
		bus:        bus,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger.With("component", "syncer"),
	}
}

// Run executes sync cycles until the context is cancelled. Failures back off
// exponentially with jitter up to the cap; a success resets to the base
// interval.
func (s *Syncer) Run(ctx context.Context) error {
	for {
		err := s.Cycle(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("sync cycle failed", "error", err, "consecutive_failures", s.Failures())
		}

		delay := s.nextDelay(err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Cycle runs one full synchronization pass.
func (s *Syncer) Cycle(ctx context.Context) error {
	start := time.Now()

	fetch, err := s.fetcher.FetchAllMarkets(ctx)
	if err != nil {
		s.recordFailure(ctx, err)
		return fmt.Errorf("sync: fetch: %w", err)
	}

	if s.archiver != nil {
		s.archiver.ArchiveFetch(ctx, fetch.Raw)
	}

	expired, err := s.apply(ctx, fetch)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.Info("apply lock held by another instance, skipping cycle")
			return nil
		}
		s.recordFailure(ctx, err)
		return err
	}

	s.reindex(ctx, fetch.Markets)
	s.retireFromIndex(ctx, expired)

	s.recordSuccess(ctx, len(fetch.Markets))
	s.publish(ctx, len(fetch.Markets), int64(len(expired)))

	s.logger.Info("sync cycle complete",
		"markets", len(fetch.Markets),
		"pages", fetch.Pages,
		"complete", fetch.Complete,
		"expired", len(expired),
		"epoch", s.catalog.Epoch(),
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// apply writes the fetched markets under the distributed lock and, when the
// fetch walked the whole feed, expires markets that vanished from it. It
// returns the ids of the markets it expired.
func (s *Syncer) apply(ctx context.Context, fetch polymarket.FetchResult) ([]string, error) {
	unlock, err := s.locks.Acquire(ctx, applyLockKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, err
		}
		return nil, fmt.Errorf("sync: acquire apply lock: %w", err)
	}
	defer unlock()

	if err := s.catalog.UpsertBatch(ctx, fetch.Markets); err != nil {
		return nil, fmt.Errorf("sync: apply batch: %w", err)
	}

	// Absence only means expiry when the fetch was complete; a truncated
	// cursor walk must not tombstone markets it never reached.
	if !fetch.Complete {
		return nil, nil
	}

	seen := make([]string, 0, len(fetch.Markets))
	for _, m := range fetch.Markets {
		seen = append(seen, m.ID)
	}
	expired, err := s.catalog.ExpireAbsent(ctx, seen)
	if err != nil {
		return nil, fmt.Errorf("sync: expire absent: %w", err)
	}
	if len(expired) > 0 && s.notifier != nil {
		_ = s.notifier.SyncExpired(ctx, int64(len(expired)))
	}
	return expired, nil
}

// retireFromIndex refreshes index entries for markets expired by upstream
// absence. reindex never sees these markets because they dropped out of the
// fetch, so without this pass the index would keep serving them under their
// old tradable status. The vector is kept so includeResolved lookups still
// find the market.
func (s *Syncer) retireFromIndex(ctx context.Context, ids []string) {
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		m, err := s.catalog.GetByID(ctx, id)
		if err != nil {
			s.logger.Warn("expired market lookup failed", "market_id", id, "error", err)
			continue
		}
		rec, err := s.embeddings.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn("embedding lookup failed", "market_id", id, "error", err)
			}
			// Nothing stored to keep; drop any live entry outright.
			_ = s.index.Remove(ctx, id)
			continue
		}
		if err := s.index.UpsertVector(ctx, m, rec.Vector); err != nil {
			s.logger.Warn("index retire failed", "market_id", id, "error", err)
		}
	}
}

// reindex brings the vector index in line with the catalog: tradable markets
// whose text changed (or whose embedding model changed) are re-embedded,
// unchanged ones get a metadata refresh, and terminal markets keep their
// stored vector so historical lookups still find them. Embedding-capability
// outages degrade to metadata-only refresh; the query path falls back to
// lexical retrieval anyway.
func (s *Syncer) reindex(ctx context.Context, markets []domain.Market) {
	embedderUp := true
	model := s.embedder.Model()

	for _, m := range markets {
		if ctx.Err() != nil {
			return
		}

		rec, err := s.embeddings.Get(ctx, m.ID)
		switch {
		case err == nil && !rec.Stale(model, m):
			if upErr := s.index.UpsertVector(ctx, m, rec.Vector); upErr != nil {
				s.logger.Warn("index refresh failed", "market_id", m.ID, "error", upErr)
			}
			continue
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			s.logger.Warn("embedding lookup failed", "market_id", m.ID, "error", err)
			continue
		}

		// New or stale text. Only tradable markets are worth embedding cost;
		// a terminal market without a vector will never be searched for.
		if !m.Status.Tradable() {
			if err == nil {
				if upErr := s.index.UpsertVector(ctx, m, rec.Vector); upErr != nil {
					s.logger.Warn("index refresh failed", "market_id", m.ID, "error", upErr)
				}
			}
			continue
		}
		if !embedderUp {
			continue
		}

		vector, embErr := s.embedder.Embed(ctx, domain.EmbeddingText(m))
		if embErr != nil {
			if errors.Is(embErr, domain.ErrEmbeddingUnavailable) {
				s.logger.Warn("embedding capability unavailable, skipping re-embed for this cycle", "error", embErr)
				embedderUp = false
				continue
			}
			s.logger.Warn("embed failed", "market_id", m.ID, "error", embErr)
			continue
		}

		newRec := domain.EmbeddingRecord{
			MarketID:   m.ID,
			Vector:     vector,
			SourceHash: domain.SourceHash(model, m),
			BuiltAt:    time.Now().UTC(),
		}
		if err := s.embeddings.Upsert(ctx, newRec); err != nil {
			s.logger.Warn("embedding store upsert failed", "market_id", m.ID, "error", err)
			continue
		}
		if err := s.index.UpsertVector(ctx, m, vector); err != nil {
			s.logger.Warn("index upsert failed", "market_id", m.ID, "error", err)
		}
	}
}

// Warm loads persisted embeddings into the index at startup so the service
// can answer queries before the first sync cycle completes.
func (s *Syncer) Warm(ctx context.Context) error {
	recs, err := s.embeddings.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("sync: warm index: %w", err)
	}
	loaded := 0
	for _, rec := range recs {
		m, err := s.catalog.GetByID(ctx, rec.MarketID)
		if err != nil {
			continue
		}
		if err := s.index.UpsertVector(ctx, m, rec.Vector); err != nil {
			continue
		}
		loaded++
	}
	s.logger.Info("index warmed from store", "vectors", loaded)
	return nil
}

// Status reports the synchronizer's health snapshot.
func (s *Syncer) Status(ctx context.Context) Status {
	s.mu.Lock()
	st := Status{
		Degraded:            s.degraded,
		ConsecutiveFailures: s.failures,
		LastSyncAt:          s.lastSync,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()

	if count, err := s.catalog.Count(ctx); err == nil {
		st.MarketCount = count
	}
	st.IndexSize = s.index.Size()
	st.Epoch = s.catalog.Epoch()
	return st
}

// Failures returns the current consecutive failure count.
func (s *Syncer) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Syncer) recordFailure(ctx context.Context, err error) {
	s.mu.Lock()
	s.failures++
	s.lastErr = err
	crossed := !s.degraded && s.failures >= s.cfg.DegradedAfter
	if crossed {
		s.degraded = true
	}
	failures := s.failures
	s.mu.Unlock()

	if crossed {
		s.logger.Error("sync degraded, serving last good catalog", "consecutive_failures", failures)
		if s.notifier != nil {
			_ = s.notifier.SyncDegraded(ctx, failures, err)
		}
	}
}

func (s *Syncer) recordSuccess(ctx context.Context, markets int) {
	s.mu.Lock()
	wasDegraded := s.degraded
	s.failures = 0
	s.degraded = false
	s.lastErr = nil
	s.lastSync = time.Now().UTC()
	s.mu.Unlock()

	if wasDegraded && s.notifier != nil {
		_ = s.notifier.SyncRecovered(ctx, markets)
	}
}

func (s *Syncer) publish(ctx context.Context, markets int, expired int64) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"epoch":   s.catalog.Epoch(),
		"markets": markets,
		"expired": expired,
		"at":      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, CatalogChannel, payload); err != nil {
		s.logger.Warn("catalog event publish failed", "error", err)
	}
}

// nextDelay picks the wait before the next cycle: the configured interval
// after a success, capped exponential backoff with jitter after failures.
func (s *Syncer) nextDelay(lastErr error) time.Duration {
	if lastErr == nil {
		return s.cfg.Interval
	}

	failures := s.Failures()
	if failures < 1 {
		failures = 1
	}
	delay := s.cfg.BackoffBase
	for i := 1; i < failures; i++ {
		if delay >= s.cfg.BackoffCap/2 {
			delay = s.cfg.BackoffCap
			break
		}
		delay *= 2
	}
	if delay > s.cfg.BackoffCap {
		delay = s.cfg.BackoffCap
	}
	// Full jitter in [delay/2, delay) keeps replicas from fetching in step.
	return delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
}
