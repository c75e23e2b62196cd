package domain

import "context"

// Embedder is the embedding capability. The same capability (and model) must
// serve both the corpus side and the query side so vectors share one space.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model identifies the embedding model; it participates in SourceHash so
	// model upgrades invalidate stored vectors.
	Model() string
}

// CandidateSummary is the compact market view sent to the judge capability.
type CandidateSummary struct {
	MarketID  string `json:"market_id"`
	Title     string `json:"title"`
	CloseTime string `json:"close_time"`
}

// Judgment is the judge capability's verdict on one candidate.
type Judgment struct {
	MarketID    string  `json:"market_id"`
	Relevance   float64 `json:"relevance"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// Judge is the re-ranking capability: one batched call covering all
// candidates for a query. On error the caller degrades to score-only
// confidence rather than failing the query.
type Judge interface {
	Judge(ctx context.Context, queryText string, candidates []CandidateSummary) ([]Judgment, error)
}
