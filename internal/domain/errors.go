package domain

import "errors"

var (
	// ErrNotFound is returned when a market id is unknown to the catalog.
	ErrNotFound = errors.New("not found")
	// ErrEmptyInput is returned when query text normalizes to nothing.
	ErrEmptyInput = errors.New("empty input")
	// ErrUpstreamUnavailable is returned when the market source fetch fails.
	ErrUpstreamUnavailable = errors.New("upstream market source unavailable")
	// ErrEmbeddingUnavailable is returned when the embedding capability is
	// down; the query pipeline degrades to lexical retrieval instead of
	// surfacing it.
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")
	// ErrRerankUnavailable is returned when the judge capability fails; the
	// rerank stage degrades to score-derived confidence instead of surfacing
	// it.
	ErrRerankUnavailable = errors.New("rerank capability unavailable")
	// ErrStaleIndex marks an embedding record whose source hash no longer
	// matches the market text. Internal only: triggers re-embedding, never
	// reaches a caller.
	ErrStaleIndex = errors.New("stale embedding record")
	// ErrLockHeld is returned when the sync apply lock is already taken.
	ErrLockHeld = errors.New("lock already held")
)
