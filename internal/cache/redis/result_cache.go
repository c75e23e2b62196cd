package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

// ResultCache implements domain.ResultCache. Entries are keyed by both the
// query fingerprint and the catalog epoch, so a catalog change makes every
// older entry unreachable without an explicit flush; Redis TTLs reclaim the
// orphans.
type ResultCache struct {
	rdb *redis.Client
}

// NewResultCache creates a ResultCache backed by the given Client.
func NewResultCache(c *Client) *ResultCache {
	return &ResultCache{rdb: c.Underlying()}
}

func resultKey(fp domain.Fingerprint, epoch uint64) string {
	return fmt.Sprintf("match:%d:%s", epoch, fp)
}

// Get returns the cached results for a fingerprint at the given epoch, or
// domain.ErrNotFound on a miss.
func (rc *ResultCache) Get(ctx context.Context, fp domain.Fingerprint, epoch uint64) ([]domain.MatchResult, error) {
	data, err := rc.rdb.Get(ctx, resultKey(fp, epoch)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get match results: %w", err)
	}

	var results []domain.MatchResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("redis: unmarshal match results: %w", err)
	}
	return results, nil
}

// Put stores results under the (fingerprint, epoch) key with the given TTL.
func (rc *ResultCache) Put(ctx context.Context, fp domain.Fingerprint, epoch uint64, results []domain.MatchResult, ttl time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("redis: marshal match results: %w", err)
	}
	if err := rc.rdb.Set(ctx, resultKey(fp, epoch), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set match results: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ResultCache = (*ResultCache)(nil)
