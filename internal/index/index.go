// Package index provides an in-memory exact cosine-similarity index over
// market embeddings. The catalog is small enough (tens of thousands of
// vectors) that a brute-force scan under a read lock outperforms an
// approximate structure while returning exact neighbors.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

type entry struct {
	market domain.Market
	// vec is unit-normalized at insert time so a search is a single dot
	// product per entry.
	vec blas32.Vector
}

// Index implements domain.VectorIndex with an exact, mutex-guarded scan.
type Index struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty Index.
func New() *Index {
	return &Index{entries: make(map[string]entry)}
}

// Load bulk-inserts persisted embedding records against their markets. Used
// once at startup to warm the index; records whose market is missing from the
// catalog are skipped.
func (ix *Index) Load(markets []domain.Market, recs []domain.EmbeddingRecord) int {
	byID := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	loaded := 0
	for _, rec := range recs {
		m, ok := byID[rec.MarketID]
		if !ok {
			continue
		}
		v, err := normalize(rec.Vector)
		if err != nil {
			continue
		}
		ix.entries[rec.MarketID] = entry{market: m, vec: v}
		loaded++
	}
	return loaded
}

// UpsertVector inserts or replaces the vector for a market. Passing the same
// vector with updated market metadata refreshes the entry's status and close
// time without changing search geometry.
func (ix *Index) UpsertVector(_ context.Context, m domain.Market, vector []float32) error {
	v, err := normalize(vector)
	if err != nil {
		return fmt.Errorf("index: upsert %s: %w", m.ID, err)
	}

	ix.mu.Lock()
	ix.entries[m.ID] = entry{market: m, vec: v}
	ix.mu.Unlock()
	return nil
}

// Search returns up to k candidates ordered by descending cosine similarity.
// Markets in terminal states are excluded unless includeResolved is set.
func (ix *Index) Search(_ context.Context, vector []float32, k int, includeResolved bool) ([]domain.Candidate, error) {
	if k <= 0 {
		return nil, nil
	}
	q, err := normalize(vector)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}

	ix.mu.RLock()
	candidates := make([]domain.Candidate, 0, len(ix.entries))
	for _, e := range ix.entries {
		if !includeResolved && !e.market.Status.Tradable() {
			continue
		}
		if e.vec.N != q.N {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Market:     e.market,
			Similarity: float64(blas32.Dot(q, e.vec)),
		})
	}
	ix.mu.RUnlock()

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

// Remove deletes a market's entry. Removing an absent entry is not an error.
func (ix *Index) Remove(_ context.Context, marketID string) error {
	ix.mu.Lock()
	delete(ix.entries, marketID)
	ix.mu.Unlock()
	return nil
}

// Size returns the number of indexed vectors.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// normalize copies the vector and scales it to unit length.
func normalize(vector []float32) (blas32.Vector, error) {
	if len(vector) == 0 {
		return blas32.Vector{}, fmt.Errorf("empty vector")
	}
	data := make([]float32, len(vector))
	copy(data, vector)

	v := blas32.Vector{N: len(data), Inc: 1, Data: data}
	norm := blas32.Nrm2(v)
	if norm == 0 {
		return blas32.Vector{}, fmt.Errorf("zero-norm vector")
	}
	blas32.Scal(1/norm, v)
	return v, nil
}
