package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// QueryState tracks a single query's progress through the pipeline.
type QueryState string

const (
	QueryReceived          QueryState = "RECEIVED"
	QueryNormalized        QueryState = "NORMALIZED"
	QueryEmbedded          QueryState = "EMBEDDED"
	QueryCandidatesFetched QueryState = "CANDIDATES_FETCHED"
	QueryFiltered          QueryState = "FILTERED"
	QueryRanked            QueryState = "RANKED"
	QueryDone              QueryState = "DONE"
	QueryFailed            QueryState = "FAILED"
)

// QueryOptions is the caller-facing configuration for one match query.
type QueryOptions struct {
	// K is the number of results to return (default from config).
	K int
	// IncludeResolved widens retrieval to resolved/expired markets for
	// historical lookup.
	IncludeResolved bool
	// Timeout bounds the whole query including the rerank call.
	Timeout time.Duration
}

// Fingerprint is the deterministic cache key derived from normalized query
// text. Two inputs that normalize identically share a fingerprint.
type Fingerprint string

// FingerprintOf hashes normalized text into a Fingerprint.
func FingerprintOf(normalized string) Fingerprint {
	sum := sha256.Sum256([]byte(normalized))
	return Fingerprint(hex.EncodeToString(sum[:]))
}
