// Package rerank applies the judge capability to the ranked head of a match
// result set, attaching explanations and judged confidence. The stage never
// fails a query: when the judge is unavailable or slow, results pass through
// with nil explanations and score-derived confidence.
package rerank

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

// Config holds the stage's tunables.
type Config struct {
	// TopK bounds how many results are sent to the judge.
	TopK int
	// Timeout caps the judge call independently of the query deadline.
	Timeout time.Duration
}

// Stage wraps a domain.Judge with batching, a deadline, and degradation.
type Stage struct {
	judge   domain.Judge
	catalog domain.CatalogStore
	cfg     Config
	logger  *slog.Logger
}

// NewStage wires a rerank stage. A nil judge disables reranking entirely;
// Apply then returns its input untouched.
func NewStage(judge domain.Judge, catalog domain.CatalogStore, cfg Config, logger *slog.Logger) *Stage {
	return &Stage{
		judge:   judge,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger.With("component", "rerank"),
	}
}

// Apply reranks up to TopK results in one batched judge call and re-sorts by
// the judged relevance. The boolean reports whether judging succeeded; false
// means the results are the degraded pass-through.
func (s *Stage) Apply(ctx context.Context, queryText string, results []domain.MatchResult) ([]domain.MatchResult, bool) {
	if s.judge == nil || len(results) == 0 {
		return results, false
	}

	head := results
	if s.cfg.TopK > 0 && len(head) > s.cfg.TopK {
		head = head[:s.cfg.TopK]
	}

	summaries := make([]domain.CandidateSummary, 0, len(head))
	for _, r := range head {
		summary := domain.CandidateSummary{MarketID: r.MarketID, Title: r.Title}
		if s.catalog != nil {
			if m, err := s.catalog.GetByID(ctx, r.MarketID); err == nil && !m.CloseTime.IsZero() {
				summary.CloseTime = m.CloseTime.Format(time.RFC3339)
			}
		}
		summaries = append(summaries, summary)
	}

	judgeCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		judgeCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	judgments, err := s.judge.Judge(judgeCtx, queryText, summaries)
	if err != nil {
		s.logger.Warn("judge unavailable, returning score-ranked results", "error", err)
		return results, false
	}

	byID := make(map[string]domain.Judgment, len(judgments))
	for _, j := range judgments {
		byID[j.MarketID] = j
	}

	merged := make([]domain.MatchResult, len(results))
	copy(merged, results)
	for i := range merged[:len(head)] {
		j, ok := byID[merged[i].MarketID]
		if !ok {
			// The judge skipped this candidate; keep its retrieval score.
			continue
		}
		merged[i].RelevanceScore = j.Relevance
		merged[i].Confidence = j.Confidence
		if j.Explanation != "" {
			expl := j.Explanation
			merged[i].Explanation = &expl
		}
	}

	domain.SortMatches(merged)
	return merged, true
}
