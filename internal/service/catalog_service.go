package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

// CatalogService is the read surface over the market catalog used by the
// HTTP handlers.
type CatalogService struct {
	store  domain.CatalogStore
	logger *slog.Logger
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(store domain.CatalogStore, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: logger.With("component", "catalog_service"),
	}
}

// Get returns one market by id.
func (s *CatalogService) Get(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: get market: %w", err)
	}
	return m, nil
}

// ListActive returns tradable markets ordered soonest-closing first.
func (s *CatalogService) ListActive(ctx context.Context, limit, offset int) ([]domain.Market, error) {
	markets, err := s.store.ListActive(ctx, domain.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("service: list markets: %w", err)
	}
	return markets, nil
}

// Stats summarizes the catalog for the status endpoint.
type Stats struct {
	MarketCount int64  `json:"market_count"`
	Epoch       uint64 `json:"epoch"`
}

// Stats returns catalog counters.
func (s *CatalogService) Stats(ctx context.Context) (Stats, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("service: catalog stats: %w", err)
	}
	return Stats{MarketCount: count, Epoch: s.store.Epoch()}, nil
}
