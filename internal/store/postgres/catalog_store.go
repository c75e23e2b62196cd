package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

const marketCols = `id, title, description, slug, category, status, close_time, created_at, last_updated`

// Terminal statuses never revert: a resolved or expired market keeps its
// status even when a later sync pass carries stale upstream data.
const upsertMarketSQL = `
	INSERT INTO markets (id, title, description, slug, category, status, close_time, created_at, last_updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	ON CONFLICT (id) DO UPDATE SET
		title        = EXCLUDED.title,
		description  = EXCLUDED.description,
		slug         = EXCLUDED.slug,
		category     = EXCLUDED.category,
		status       = CASE
			WHEN markets.status IN ('resolved', 'expired') THEN markets.status
			ELSE EXCLUDED.status
		END,
		close_time   = EXCLUDED.close_time,
		last_updated = NOW()`

// CatalogStore implements domain.CatalogStore on PostgreSQL. It also carries
// the process-lifetime catalog epoch: a monotonic counter bumped on every
// successful write, used by the result cache for invalidation.
type CatalogStore struct {
	pool  *pgxpool.Pool
	epoch atomic.Uint64
}

// NewCatalogStore creates a CatalogStore backed by the given client. The
// epoch starts at 1 so a zero value can never collide with a live epoch.
func NewCatalogStore(client *Client) *CatalogStore {
	s := &CatalogStore{pool: client.Pool()}
	s.epoch.Store(1)
	return s
}

// Upsert inserts or updates a single market and advances the catalog epoch.
func (s *CatalogStore) Upsert(ctx context.Context, m domain.Market) error {
	_, err := s.pool.Exec(ctx, upsertMarketSQL,
		m.ID, m.Title, m.Description, m.Slug, string(m.Category), string(m.Status), nullableTime(m.CloseTime),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	s.epoch.Add(1)
	return nil
}

// UpsertBatch writes all markets in one round trip using a pgx batch. The
// epoch advances once per batch, not per row, so a full sync pass invalidates
// cached results exactly once.
func (s *CatalogStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(upsertMarketSQL,
			m.ID, m.Title, m.Description, m.Slug, string(m.Category), string(m.Status), nullableTime(m.CloseTime),
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range markets {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: batch upsert market %s: %w", markets[i].ID, err)
		}
	}

	s.epoch.Add(1)
	return nil
}

// GetByID fetches a single market, returning domain.ErrNotFound when absent.
func (s *CatalogStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListActive returns tradable (active and paused) markets ordered by close
// time ascending, soonest first. NULL close times sort last.
func (s *CatalogStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE status IN ('active', 'paused')
		 ORDER BY close_time ASC NULLS LAST, id ASC
		 LIMIT $1 OFFSET $2`,
		limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

// ListSince returns markets whose last_updated is at or after since, in
// update order. The synchronizer uses this to find records needing re-embed.
func (s *CatalogStore) ListSince(ctx context.Context, since time.Time) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE last_updated >= $1
		 ORDER BY last_updated ASC, id ASC`,
		since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return collectMarkets(rows)
}

// Count returns the total number of market records.
func (s *CatalogStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

// Epoch returns the current catalog epoch.
func (s *CatalogStore) Epoch() uint64 {
	return s.epoch.Load()
}

// ExpireAbsent marks every tradable market whose id is NOT in seen as
// expired, and returns the expired ids so callers can retire the matching
// index entries. The synchronizer calls this only after a complete upstream
// pagination; a partial fetch must never expire markets that simply fell
// outside the fetched pages.
func (s *CatalogStore) ExpireAbsent(ctx context.Context, seen []string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE markets SET status = 'expired', last_updated = NOW()
		 WHERE status IN ('active', 'paused') AND NOT (id = ANY($1))
		 RETURNING id`,
		seen)
	if err != nil {
		return nil, fmt.Errorf("postgres: expire absent markets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate expired ids: %w", err)
	}
	if len(ids) > 0 {
		s.epoch.Add(1)
	}
	return ids, nil
}

// nullableTime maps a zero time to SQL NULL so unknown close times sort last
// under ListActive's NULLS LAST instead of as year one.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m         domain.Market
		category  string
		status    string
		closeTime *time.Time
	)
	err := row.Scan(&m.ID, &m.Title, &m.Description, &m.Slug,
		&category, &status, &closeTime, &m.CreatedAt, &m.LastUpdated)
	if err != nil {
		return domain.Market{}, err
	}
	m.Category = domain.MarketCategory(category)
	m.Status = domain.MarketStatus(status)
	if closeTime != nil {
		m.CloseTime = *closeTime
	}
	return m, nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market row: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate market rows: %w", err)
	}
	return markets, nil
}
