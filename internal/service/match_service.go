// Package service contains the application services behind the HTTP and
// WebSocket surfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketlens/internal/domain"
	"github.com/alanyoungcy/marketlens/internal/query"
	"github.com/alanyoungcy/marketlens/internal/rerank"
)

// MatchConfig holds the service-level query settings. MaxInputChars must
// match the pipeline's limit so both sides derive the same fingerprint.
type MatchConfig struct {
	CacheTTL       time.Duration
	DefaultTimeout time.Duration
	MaxInputChars  int
}

// MatchResponse is the full answer to one match request.
type MatchResponse struct {
	// QueryID identifies this request in logs; unique even for cache hits.
	QueryID string `json:"query_id"`
	// Fingerprint is the cache key derived from the normalized input.
	Fingerprint string               `json:"fingerprint"`
	Results     []domain.MatchResult `json:"results"`
	// Degraded is true when the rerank capability did not contribute; the
	// results then carry score-derived confidence and nil explanations.
	Degraded bool `json:"degraded"`
	// Lexical is true when retrieval fell back to token matching.
	Lexical bool `json:"lexical"`
	// Cached is true when the response was served from the result cache.
	Cached bool   `json:"cached"`
	Epoch  uint64 `json:"epoch"`
}

// MatchService runs match queries: result cache in front, the query pipeline
// and rerank stage behind it.
type MatchService struct {
	pipeline *query.Pipeline
	reranker *rerank.Stage
	cache    domain.ResultCache
	catalog  domain.CatalogStore
	cfg      MatchConfig
	logger   *slog.Logger
}

// NewMatchService wires a MatchService. cache may be nil, disabling
// memoization.
func NewMatchService(
	pipeline *query.Pipeline,
	reranker *rerank.Stage,
	cache domain.ResultCache,
	catalog domain.CatalogStore,
	cfg MatchConfig,
	logger *slog.Logger,
) *MatchService {
	return &MatchService{
		pipeline: pipeline,
		reranker: reranker,
		cache:    cache,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger.With("component", "match_service"),
	}
}

// Match answers one content-to-market query. Cached entries are only valid at
// the current catalog epoch; any catalog change implicitly invalidates them.
func (s *MatchService) Match(ctx context.Context, text string, opts domain.QueryOptions) (MatchResponse, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	epoch := s.catalog.Epoch()
	queryID := uuid.NewString()

	// The cache key needs the normalized fingerprint, so normalization runs
	// before the pipeline. The pipeline normalizes again internally; the
	// operation is deterministic and cheap.
	if s.cache != nil {
		if normalized, err := query.Normalize(text, s.cfg.MaxInputChars); err == nil {
			fp := domain.FingerprintOf(normalized)
			if cached, err := s.cache.Get(ctx, fp, epoch); err == nil {
				s.logger.Debug("cache hit", "query_id", queryID, "fingerprint", fp, "epoch", epoch)
				return MatchResponse{
					QueryID:     queryID,
					Fingerprint: string(fp),
					Results:     cached,
					Cached:      true,
					Epoch:       epoch,
					Degraded:    anyNilExplanation(cached),
				}, nil
			} else if !errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn("result cache read failed", "error", err)
			}
		}
	}

	out, err := s.pipeline.Run(ctx, text, opts)
	if err != nil {
		return MatchResponse{}, fmt.Errorf("service: match: %w", err)
	}

	results, judged := s.reranker.Apply(ctx, out.Normalized, out.Results)

	resp := MatchResponse{
		QueryID:     queryID,
		Fingerprint: string(out.Fingerprint),
		Results:     results,
		Degraded:    !judged,
		Lexical:     out.Lexical,
		Epoch:       epoch,
	}

	// A cancelled request must not populate the cache with partial work.
	if s.cache != nil && ctx.Err() == nil {
		if err := s.cache.Put(ctx, out.Fingerprint, epoch, results, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("result cache write failed", "error", err)
		}
	}

	return resp, nil
}

func anyNilExplanation(results []domain.MatchResult) bool {
	for _, r := range results {
		if r.Explanation == nil {
			return true
		}
	}
	return false
}
