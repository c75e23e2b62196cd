package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

// EmbeddingStore implements domain.EmbeddingStore on PostgreSQL. Vectors are
// stored as REAL[] so the in-memory index can be rebuilt on startup without
// re-embedding the whole catalog.
type EmbeddingStore struct {
	pool *pgxpool.Pool
}

// NewEmbeddingStore creates an EmbeddingStore backed by the given client.
func NewEmbeddingStore(client *Client) *EmbeddingStore {
	return &EmbeddingStore{pool: client.Pool()}
}

// Upsert writes an embedding record, replacing any existing vector for the
// market.
func (s *EmbeddingStore) Upsert(ctx context.Context, rec domain.EmbeddingRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO embeddings (market_id, vector, source_hash, built_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (market_id) DO UPDATE SET
			vector      = EXCLUDED.vector,
			source_hash = EXCLUDED.source_hash,
			built_at    = EXCLUDED.built_at`,
		rec.MarketID, rec.Vector, rec.SourceHash, rec.BuiltAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert embedding %s: %w", rec.MarketID, err)
	}
	return nil
}

// Get fetches the embedding record for a market, returning domain.ErrNotFound
// when none exists.
func (s *EmbeddingStore) Get(ctx context.Context, marketID string) (domain.EmbeddingRecord, error) {
	var rec domain.EmbeddingRecord
	err := s.pool.QueryRow(ctx,
		`SELECT market_id, vector, source_hash, built_at FROM embeddings WHERE market_id = $1`,
		marketID,
	).Scan(&rec.MarketID, &rec.Vector, &rec.SourceHash, &rec.BuiltAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EmbeddingRecord{}, domain.ErrNotFound
		}
		return domain.EmbeddingRecord{}, fmt.Errorf("postgres: get embedding %s: %w", marketID, err)
	}
	return rec, nil
}

// ListAll streams every stored embedding record. Used once at startup to warm
// the in-memory index.
func (s *EmbeddingStore) ListAll(ctx context.Context) ([]domain.EmbeddingRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, vector, source_hash, built_at FROM embeddings ORDER BY market_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list embeddings: %w", err)
	}
	defer rows.Close()

	var recs []domain.EmbeddingRecord
	for rows.Next() {
		var rec domain.EmbeddingRecord
		if err := rows.Scan(&rec.MarketID, &rec.Vector, &rec.SourceHash, &rec.BuiltAt); err != nil {
			return nil, fmt.Errorf("postgres: scan embedding row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate embedding rows: %w", err)
	}
	return recs, nil
}

// Remove deletes the embedding for a market. Removing an absent record is
// not an error.
func (s *EmbeddingStore) Remove(ctx context.Context, marketID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM embeddings WHERE market_id = $1`, marketID); err != nil {
		return fmt.Errorf("postgres: remove embedding %s: %w", marketID, err)
	}
	return nil
}
