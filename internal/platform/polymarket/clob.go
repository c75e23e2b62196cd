// Package polymarket implements the upstream catalog client for the
// Polymarket CLOB (Central Limit Order Book) REST API.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

const (
	// initialCursor is the base64 cursor for the first page ("0").
	initialCursor = "MA=="
	// endCursor is the base64 cursor the API returns on the last page ("-1").
	endCursor = "LTE="
)

// ClobClient pages through the CLOB /markets endpoint. The endpoint is
// public; no authentication is required for catalog reads.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	maxPages   int
	logger     *slog.Logger
}

// NewClobClient creates a catalog client for the given CLOB host, e.g.
// "https://clob.polymarket.com". maxPages caps a single fetch so a cursor
// loop upstream cannot spin forever; pageTimeout bounds each page request.
func NewClobClient(baseURL string, maxPages int, pageTimeout time.Duration, logger *slog.Logger) *ClobClient {
	if maxPages <= 0 {
		maxPages = 100
	}
	if pageTimeout <= 0 {
		pageTimeout = 30 * time.Second
	}
	return &ClobClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: pageTimeout},
		maxPages:   maxPages,
		logger:     logger.With("component", "polymarket_clob"),
	}
}

// FetchResult is the outcome of one full catalog fetch.
type FetchResult struct {
	Markets []domain.Market
	// Complete is true only when the cursor walk reached the terminal
	// cursor. A fetch truncated by the page cap must not be treated as the
	// full catalog; expiring absent markets on a partial fetch would
	// tombstone listings that were simply never paged.
	Complete bool
	Pages    int
	// Raw holds the undecoded page bodies in fetch order, for archival.
	Raw [][]byte
}

// FetchAllMarkets walks the cursor-paginated /markets endpoint from the
// beginning and returns every listed market mapped to the domain model.
func (c *ClobClient) FetchAllMarkets(ctx context.Context) (FetchResult, error) {
	var result FetchResult
	cursor := initialCursor

	for result.Pages < c.maxPages {
		page, raw, err := c.fetchPage(ctx, cursor)
		if err != nil {
			return result, fmt.Errorf("polymarket/clob: page %d: %w", result.Pages+1, err)
		}
		result.Pages++
		result.Raw = append(result.Raw, raw)

		for _, api := range page.Data {
			if api.ConditionID == "" {
				continue
			}
			result.Markets = append(result.Markets, api.ToDomain())
		}

		if page.NextCursor == "" || page.NextCursor == endCursor {
			result.Complete = true
			return result, nil
		}
		cursor = page.NextCursor
	}

	c.logger.Warn("market fetch hit page cap before terminal cursor",
		"pages", result.Pages, "markets", len(result.Markets))
	return result, nil
}

func (c *ClobClient) fetchPage(ctx context.Context, cursor string) (marketsPage, []byte, error) {
	u := c.baseURL + "/markets?next_cursor=" + url.QueryEscape(cursor)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return marketsPage{}, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return marketsPage{}, nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return marketsPage{}, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return marketsPage{}, nil, fmt.Errorf("%w: HTTP %d", domain.ErrUpstreamUnavailable, resp.StatusCode)
		}
		return marketsPage{}, nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var page marketsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return marketsPage{}, nil, fmt.Errorf("decode page: %w", err)
	}
	return page, body, nil
}
