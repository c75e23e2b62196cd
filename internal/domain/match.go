package domain

import "sort"

// MatchResult is one ranked, explained market match for a query. Results live
// only as long as the result cache TTL; they are never persisted.
type MatchResult struct {
	MarketID       string  `json:"market_id"`
	Title          string  `json:"title"`
	RelevanceScore float64 `json:"relevance_score"`
	Confidence     float64 `json:"confidence"`
	// Explanation is nil when the rerank capability was unavailable and the
	// result was produced in degraded mode.
	Explanation *string `json:"explanation"`
	Rank        int     `json:"rank"`
}

// SortMatches orders results by descending relevance score, ties broken by
// descending confidence, then ascending market id, and rewrites the 1-based
// Rank field. The ordering is fully deterministic.
func SortMatches(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].MarketID < results[j].MarketID
	})
	for i := range results {
		results[i].Rank = i + 1
	}
}

// Candidate is an intermediate retrieval hit flowing through the query
// pipeline before ranking and reranking.
type Candidate struct {
	Market     Market
	Similarity float64
}
