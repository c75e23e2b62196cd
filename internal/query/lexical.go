package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

// lexicalLimit caps how many catalog rows the fallback scans. The tradable
// set is ordered by close time, so the soonest-closing markets are always in
// scope even when the catalog is larger than the window.
const lexicalLimit = 2000

// LexicalSearch is the degraded retrieval path used when the embedding
// capability is down. It scores tradable markets by token overlap between the
// normalized query and the market's title and description.
func LexicalSearch(ctx context.Context, store domain.CatalogStore, normalized string, k int, includeResolved bool) ([]domain.Candidate, error) {
	terms := Tokens(normalized)
	if len(terms) == 0 || k <= 0 {
		return nil, nil
	}

	markets, err := store.ListActive(ctx, domain.ListOpts{Limit: lexicalLimit})
	if err != nil {
		return nil, fmt.Errorf("query: lexical retrieval: %w", err)
	}

	querySet := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		querySet[t] = struct{}{}
	}

	candidates := make([]domain.Candidate, 0, k)
	for _, m := range markets {
		if !includeResolved && !m.Status.Tradable() {
			continue
		}
		score := overlapScore(querySet, m)
		if score <= 0 {
			continue
		}
		candidates = append(candidates, domain.Candidate{Market: m, Similarity: score})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Market.ID < candidates[j].Market.ID
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// overlapScore is the fraction of query terms present in the market's text.
// Title hits count double: a query term in the title is a much stronger
// signal than one buried in the description.
func overlapScore(querySet map[string]struct{}, m domain.Market) float64 {
	titleNorm, err := Normalize(m.Title, 0)
	if err != nil {
		return 0
	}
	titleSet := make(map[string]struct{})
	for _, t := range Tokens(titleNorm) {
		titleSet[t] = struct{}{}
	}
	descSet := make(map[string]struct{})
	if descNorm, err := Normalize(m.Description, 0); err == nil {
		for _, t := range Tokens(descNorm) {
			descSet[t] = struct{}{}
		}
	}

	var hits float64
	for term := range querySet {
		if _, ok := titleSet[term]; ok {
			hits += 2
			continue
		}
		if _, ok := descSet[term]; ok {
			hits++
		}
	}
	return hits / float64(2*len(querySet))
}
