package domain

import (
	"context"
	"time"
)

// ResultCache memoizes query results keyed by (fingerprint, catalog epoch).
// An entry stored under an older epoch is invisible to readers at the current
// epoch, so any catalog change is an implicit cache-wide invalidation. The
// cache is volatile by design; everything in it is reconstructible.
type ResultCache interface {
	Get(ctx context.Context, fp Fingerprint, epoch uint64) ([]MatchResult, error)
	Put(ctx context.Context, fp Fingerprint, epoch uint64, results []MatchResult, ttl time.Duration) error
}

// RateLimiter provides distributed rate limiting for the match endpoint.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking; the synchronizer holds a lock
// only while applying a batch of upserts, never during the network fetch.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub for catalog and health events consumed by the
// WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
