package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// CatalogStore persists market listings. It is the exclusive owner of Market
// records; only the catalog synchronizer writes to it. Every successful
// upsert advances the store's monotonic catalog epoch, which the result cache
// uses for invalidation.
type CatalogStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	// ListActive returns active and paused markets ordered by close_time
	// ascending; soonest-closing markets are weighted higher in ranking.
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	ListSince(ctx context.Context, since time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
	// Epoch returns the current catalog epoch. It increases monotonically
	// with every successful upsert.
	Epoch() uint64
}

// EmbeddingStore persists embedding records durably so the index survives
// restarts without a full re-embed.
type EmbeddingStore interface {
	Upsert(ctx context.Context, rec EmbeddingRecord) error
	Get(ctx context.Context, marketID string) (EmbeddingRecord, error)
	ListAll(ctx context.Context) ([]EmbeddingRecord, error)
	Remove(ctx context.Context, marketID string) error
}

// VectorIndex is the read path over embedded markets. Search returns up to k
// candidates ordered by descending cosine similarity, restricted to tradable
// markets unless includeResolved is set.
type VectorIndex interface {
	UpsertVector(ctx context.Context, market Market, vector []float32) error
	Search(ctx context.Context, vector []float32, k int, includeResolved bool) ([]Candidate, error)
	Remove(ctx context.Context, marketID string) error
	Size() int
}
