package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

// Config holds the tunable parameters of the pipeline.
type Config struct {
	DefaultK         int
	CandidateK       int
	MaxInputChars    int
	SimilarityWeight float64
	RecencyWeight    float64
	DedupeThreshold  float64
}

// Outcome is the pipeline's terminal result for one query.
type Outcome struct {
	State       domain.QueryState
	Normalized  string
	Fingerprint domain.Fingerprint
	Results     []domain.MatchResult
	// Lexical is true when the embedding capability was unavailable and
	// retrieval fell back to token matching.
	Lexical bool
}

// Pipeline drives a query through its states: RECEIVED, NORMALIZED, EMBEDDED,
// CANDIDATES_FETCHED, FILTERED, RANKED, DONE. Embedding failure is not
// terminal; the pipeline degrades to lexical retrieval and continues. Only
// empty input or a retrieval failure produces FAILED.
type Pipeline struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	catalog  domain.CatalogStore
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewPipeline wires a query pipeline.
func NewPipeline(embedder domain.Embedder, index domain.VectorIndex, catalog domain.CatalogStore, cfg Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		embedder: embedder,
		index:    index,
		catalog:  catalog,
		cfg:      cfg,
		logger:   logger.With("component", "query_pipeline"),
		now:      time.Now,
	}
}

// Run executes the pipeline for one query. The returned Outcome carries the
// terminal state even on error.
func (p *Pipeline) Run(ctx context.Context, raw string, opts domain.QueryOptions) (Outcome, error) {
	out := Outcome{State: domain.QueryReceived}

	k := opts.K
	if k <= 0 {
		k = p.cfg.DefaultK
	}

	normalized, err := Normalize(raw, p.cfg.MaxInputChars)
	if err != nil {
		out.State = domain.QueryFailed
		return out, fmt.Errorf("query: normalize: %w", err)
	}
	out.State = domain.QueryNormalized
	out.Normalized = normalized
	out.Fingerprint = domain.FingerprintOf(normalized)

	candidates, lexical, err := p.retrieve(ctx, normalized, opts.IncludeResolved)
	if err != nil {
		out.State = domain.QueryFailed
		return out, err
	}
	out.Lexical = lexical
	if !lexical {
		out.State = domain.QueryEmbedded
	}
	out.State = domain.QueryCandidatesFetched

	candidates = p.dedupe(p.dropClosed(candidates))
	out.State = domain.QueryFiltered

	out.Results = p.rank(candidates, k)
	out.State = domain.QueryRanked

	out.State = domain.QueryDone
	return out, nil
}

// retrieve embeds the query and searches the vector index. When the embedder
// is down it falls back to lexical retrieval against the catalog; any other
// embedding error is terminal.
func (p *Pipeline) retrieve(ctx context.Context, normalized string, includeResolved bool) ([]domain.Candidate, bool, error) {
	vector, err := p.embedder.Embed(ctx, normalized)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
			return nil, false, fmt.Errorf("query: embed: %w", err)
		}
		p.logger.Warn("embedding unavailable, falling back to lexical retrieval", "error", err)
		candidates, lexErr := LexicalSearch(ctx, p.catalog, normalized, p.cfg.CandidateK, includeResolved)
		if lexErr != nil {
			return nil, true, lexErr
		}
		return candidates, true, nil
	}

	candidates, err := p.index.Search(ctx, vector, p.cfg.CandidateK, includeResolved)
	if err != nil {
		return nil, false, fmt.Errorf("query: index search: %w", err)
	}
	return candidates, false, nil
}

// dropClosed removes candidates whose close time already passed. Status
// filtering happens at the index, but a market can pass its close time before
// the next sync observes it; this catches that gap.
func (p *Pipeline) dropClosed(candidates []domain.Candidate) []domain.Candidate {
	now := p.now()
	kept := candidates[:0]
	for _, c := range candidates {
		if !c.Market.CloseTime.IsZero() && c.Market.CloseTime.Before(now) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// dedupe collapses near-duplicate candidates referring to the same underlying
// event. Each duplicate cluster keeps the soonest-closing market; a missing
// close time counts as latest.
func (p *Pipeline) dedupe(candidates []domain.Candidate) []domain.Candidate {
	if p.cfg.DedupeThreshold <= 0 || len(candidates) < 2 {
		return candidates
	}

	kept := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		dup := false
		for i, k := range kept {
			if TitleSimilarity(c.Market.Title, k.Market.Title) >= p.cfg.DedupeThreshold {
				if closesSooner(c.Market.CloseTime, k.Market.CloseTime) {
					kept[i] = c
				}
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return kept
}

func closesSooner(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	if b.IsZero() {
		return true
	}
	return a.Before(b)
}

// rank combines retrieval similarity with close-time recency, truncates to k,
// and assigns deterministic ranks. Confidence at this stage is score-derived;
// the rerank stage may replace it with a judged value.
func (p *Pipeline) rank(candidates []domain.Candidate, k int) []domain.MatchResult {
	now := p.now()
	results := make([]domain.MatchResult, 0, len(candidates))
	for _, c := range candidates {
		score := clamp01(p.cfg.SimilarityWeight*clamp01(c.Similarity) +
			p.cfg.RecencyWeight*recencyScore(now, c.Market.CloseTime))
		results = append(results, domain.MatchResult{
			MarketID:       c.Market.ID,
			Title:          c.Market.Title,
			RelevanceScore: score,
			Confidence:     score,
		})
	}

	domain.SortMatches(results)
	if len(results) > k {
		results = results[:k]
		for i := range results {
			results[i].Rank = i + 1
		}
	}
	return results
}

// recencyScore maps a close time onto [0,1]: markets closing soonest score
// highest, anything a year or more out scores zero, and a missing close time
// is neutral.
func recencyScore(now, closeTime time.Time) float64 {
	if closeTime.IsZero() {
		return 0.5
	}
	until := closeTime.Sub(now)
	if until <= 0 {
		return 1
	}
	const horizon = 365 * 24 * time.Hour
	if until >= horizon {
		return 0
	}
	return 1 - float64(until)/float64(horizon)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
