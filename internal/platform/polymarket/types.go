package polymarket

import (
	"strings"
	"time"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

// APIMarket is the wire representation of a market on the CLOB /markets
// endpoint. Only the fields the catalog cares about are mapped.
type APIMarket struct {
	ConditionID string `json:"condition_id"`
	Question    string `json:"question"`
	Title       string `json:"title"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MarketSlug  string `json:"market_slug"`
	Category    string `json:"category"`
	EndDateISO  string `json:"end_date_iso"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
	Archived    bool   `json:"archived"`
}

// marketsPage is one page of the cursor-paginated /markets response.
type marketsPage struct {
	Data       []APIMarket `json:"data"`
	NextCursor string      `json:"next_cursor"`
	Count      int         `json:"count"`
}

// DisplayTitle picks the best available human-readable title. Upstream
// records are inconsistent about which field carries it.
func (m APIMarket) DisplayTitle() string {
	for _, s := range []string{m.Question, m.Title, m.Name, m.Description, m.MarketSlug} {
		if t := strings.TrimSpace(s); t != "" {
			return t
		}
	}
	return m.ConditionID
}

// Current reports whether the market is still listed upstream. Closed and
// archived markets are carried in the feed but no longer tradable.
func (m APIMarket) Current() bool {
	return !m.Closed && !m.Archived
}

// ToDomain maps the wire record to a domain Market. Status is derived from
// the closed/archived/active flags; a malformed end date leaves CloseTime
// zero rather than failing the whole page.
func (m APIMarket) ToDomain() domain.Market {
	status := domain.MarketStatusActive
	switch {
	case m.Archived:
		status = domain.MarketStatusExpired
	case m.Closed:
		status = domain.MarketStatusResolved
	case !m.Active:
		status = domain.MarketStatusPaused
	}

	var closeTime time.Time
	if m.EndDateISO != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDateISO); err == nil {
			closeTime = t
		}
	}

	return domain.Market{
		ID:          m.ConditionID,
		Title:       m.DisplayTitle(),
		Description: strings.TrimSpace(m.Description),
		Slug:        m.MarketSlug,
		Category:    domain.NormalizeCategory(strings.ToLower(m.Category)),
		Status:      status,
		CloseTime:   closeTime,
	}
}
