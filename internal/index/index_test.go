package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

func market(id string, status domain.MarketStatus) domain.Market {
	return domain.Market{
		ID:        id,
		Title:     "market " + id,
		Status:    status,
		CloseTime: time.Now().Add(24 * time.Hour),
	}
}

func TestSearchOrdersByCosineSimilarity(t *testing.T) {
	ix := New()
	ctx := context.Background()

	require.NoError(t, ix.UpsertVector(ctx, market("a", domain.MarketStatusActive), []float32{1, 0, 0}))
	require.NoError(t, ix.UpsertVector(ctx, market("b", domain.MarketStatusActive), []float32{1, 1, 0}))
	require.NoError(t, ix.UpsertVector(ctx, market("c", domain.MarketStatusActive), []float32{0, 1, 0}))

	got, err := ix.Search(ctx, []float32{1, 0, 0}, 3, false)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "a", got[0].Market.ID)
	assert.Equal(t, "b", got[1].Market.ID)
	assert.Equal(t, "c", got[2].Market.ID)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
	assert.InDelta(t, 0.7071, got[1].Similarity, 1e-3)
	assert.InDelta(t, 0.0, got[2].Similarity, 1e-6)
}

func TestSearchScaleInvariant(t *testing.T) {
	ix := New()
	ctx := context.Background()

	require.NoError(t, ix.UpsertVector(ctx, market("a", domain.MarketStatusActive), []float32{2, 0, 0}))

	got, err := ix.Search(ctx, []float32{100, 0, 0}, 1, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
}

func TestSearchFiltersTerminalStatuses(t *testing.T) {
	ix := New()
	ctx := context.Background()

	require.NoError(t, ix.UpsertVector(ctx, market("active", domain.MarketStatusActive), []float32{1, 0}))
	require.NoError(t, ix.UpsertVector(ctx, market("paused", domain.MarketStatusPaused), []float32{1, 0}))
	require.NoError(t, ix.UpsertVector(ctx, market("resolved", domain.MarketStatusResolved), []float32{1, 0}))
	require.NoError(t, ix.UpsertVector(ctx, market("expired", domain.MarketStatusExpired), []float32{1, 0}))

	got, err := ix.Search(ctx, []float32{1, 0}, 10, false)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.Market.ID)
	}
	assert.ElementsMatch(t, []string{"active", "paused"}, ids)

	all, err := ix.Search(ctx, []float32{1, 0}, 10, true)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSearchTruncatesToK(t *testing.T) {
	ix := New()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, ix.UpsertVector(ctx, market(id, domain.MarketStatusActive), []float32{1, 0}))
	}

	got, err := ix.Search(ctx, []float32{1, 0}, 2, false)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	// Equal similarities break ties by ascending market id.
	assert.Equal(t, "a", got[0].Market.ID)
	assert.Equal(t, "b", got[1].Market.ID)
}

func TestUpsertReplacesExistingVector(t *testing.T) {
	ix := New()
	ctx := context.Background()

	require.NoError(t, ix.UpsertVector(ctx, market("a", domain.MarketStatusActive), []float32{1, 0}))
	require.NoError(t, ix.UpsertVector(ctx, market("a", domain.MarketStatusActive), []float32{0, 1}))
	assert.Equal(t, 1, ix.Size())

	got, err := ix.Search(ctx, []float32{0, 1}, 1, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
}

func TestUpsertRejectsDegenerateVectors(t *testing.T) {
	ix := New()
	ctx := context.Background()

	assert.Error(t, ix.UpsertVector(ctx, market("a", domain.MarketStatusActive), nil))
	assert.Error(t, ix.UpsertVector(ctx, market("a", domain.MarketStatusActive), []float32{0, 0, 0}))
	assert.Equal(t, 0, ix.Size())
}

func TestRemove(t *testing.T) {
	ix := New()
	ctx := context.Background()

	require.NoError(t, ix.UpsertVector(ctx, market("a", domain.MarketStatusActive), []float32{1, 0}))
	require.NoError(t, ix.Remove(ctx, "a"))
	require.NoError(t, ix.Remove(ctx, "a"))
	assert.Equal(t, 0, ix.Size())
}

func TestLoadSkipsOrphanedRecords(t *testing.T) {
	ix := New()

	markets := []domain.Market{market("a", domain.MarketStatusActive)}
	recs := []domain.EmbeddingRecord{
		{MarketID: "a", Vector: []float32{1, 0}},
		{MarketID: "gone", Vector: []float32{0, 1}},
	}

	loaded := ix.Load(markets, recs)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, ix.Size())
}
