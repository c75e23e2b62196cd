package domain

import "time"

// MarketStatus represents the lifecycle state of a market listing.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusPaused   MarketStatus = "paused"
	MarketStatusResolved MarketStatus = "resolved"
	MarketStatusExpired  MarketStatus = "expired"
)

// MarketCategory is a coarse topical tag attached by the upstream source.
type MarketCategory string

const (
	CategoryPolitics MarketCategory = "politics"
	CategorySports   MarketCategory = "sports"
	CategoryCrypto   MarketCategory = "crypto"
	CategoryScience  MarketCategory = "science"
	CategoryOther    MarketCategory = "other"
)

// Market represents one tradable prediction-market listing. Records are
// created on first sync observation and mutated only by the catalog
// synchronizer; they are never deleted, only marked resolved or expired so
// historical explanations keep resolving.
type Market struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Slug        string         `json:"slug"`
	Category    MarketCategory `json:"category"`
	Status      MarketStatus   `json:"status"`
	CloseTime   time.Time      `json:"close_time"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Tradable reports whether the market can currently appear in default match
// results.
func (s MarketStatus) Tradable() bool {
	return s == MarketStatusActive || s == MarketStatusPaused
}

// Terminal reports whether the status is a tombstone state.
func (s MarketStatus) Terminal() bool {
	return s == MarketStatusResolved || s == MarketStatusExpired
}

// CanTransition reports whether a status change is allowed. Transitions only
// move forward (active→paused→resolved, active→expired), with the single
// exception of active↔paused.
func (s MarketStatus) CanTransition(to MarketStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case MarketStatusActive, MarketStatusPaused:
		return to == MarketStatusActive || to == MarketStatusPaused ||
			to == MarketStatusResolved || to == MarketStatusExpired
	default:
		return false
	}
}

// NormalizeCategory maps free-form upstream category labels onto the known
// set, defaulting to CategoryOther.
func NormalizeCategory(raw string) MarketCategory {
	switch MarketCategory(raw) {
	case CategoryPolitics, CategorySports, CategoryCrypto, CategoryScience:
		return MarketCategory(raw)
	default:
		return CategoryOther
	}
}
