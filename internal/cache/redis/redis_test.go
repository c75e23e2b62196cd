package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestResultCacheRoundTrip(t *testing.T) {
	cache := NewResultCache(newTestClient(t))
	ctx := context.Background()

	expl := "clear match"
	results := []domain.MatchResult{
		{MarketID: "m1", Title: "first", RelevanceScore: 0.9, Confidence: 0.8, Explanation: &expl, Rank: 1},
		{MarketID: "m2", Title: "second", RelevanceScore: 0.5, Confidence: 0.5, Rank: 2},
	}
	fp := domain.FingerprintOf("will it rain")

	require.NoError(t, cache.Put(ctx, fp, 7, results, time.Minute))

	got, err := cache.Get(ctx, fp, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, results[0].MarketID, got[0].MarketID)
	require.NotNil(t, got[0].Explanation)
	assert.Equal(t, "clear match", *got[0].Explanation)
	assert.Nil(t, got[1].Explanation)
}

func TestResultCacheMissOnUnknownFingerprint(t *testing.T) {
	cache := NewResultCache(newTestClient(t))

	_, err := cache.Get(context.Background(), domain.FingerprintOf("nothing"), 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResultCacheEpochIsolation(t *testing.T) {
	cache := NewResultCache(newTestClient(t))
	ctx := context.Background()

	fp := domain.FingerprintOf("query")
	results := []domain.MatchResult{{MarketID: "m1", Rank: 1}}
	require.NoError(t, cache.Put(ctx, fp, 1, results, time.Minute))

	// Same fingerprint at a newer epoch misses; the old entry is unreachable.
	_, err := cache.Get(ctx, fp, 2)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	got, err := cache.Get(ctx, fp, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestResultCacheExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cache := NewResultCache(client)
	ctx := context.Background()

	fp := domain.FingerprintOf("query")
	require.NoError(t, cache.Put(ctx, fp, 1, []domain.MatchResult{{MarketID: "m1", Rank: 1}}, time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err = cache.Get(ctx, fp, 1)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLockManagerMutualExclusion(t *testing.T) {
	client := newTestClient(t)
	lm := NewLockManager(client)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "sync-apply", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "sync-apply", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))

	unlock()
	unlock() // safe to call twice

	unlock2, err := lm.Acquire(ctx, "sync-apply", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(newTestClient(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := rl.Allow(ctx, "client-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := rl.Allow(ctx, "client-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	// A different key has its own window.
	allowed, err = rl.Allow(ctx, "client-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}
