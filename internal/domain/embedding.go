package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// EmbeddingRecord is the vector representation of one market's semantic
// content. Owned by the embedding index; Market is a read-only upstream.
type EmbeddingRecord struct {
	MarketID   string
	Vector     []float32
	SourceHash string
	BuiltAt    time.Time
}

// EmbeddingText is the canonical text a market is embedded from.
func EmbeddingText(m Market) string {
	return m.Title + "\n" + m.Description
}

// SourceHash hashes the text that produced a vector, with the embedding model
// name mixed in so a model upgrade invalidates every record and forces
// re-embedding through normal sync cycles.
func SourceHash(model string, m Market) string {
	sum := sha256.Sum256([]byte(model + "\x00" + EmbeddingText(m)))
	return hex.EncodeToString(sum[:])
}

// Stale reports whether the record was built from different text (or a
// different model) than the market currently carries.
func (r EmbeddingRecord) Stale(model string, m Market) bool {
	return r.SourceHash != SourceHash(model, m)
}
