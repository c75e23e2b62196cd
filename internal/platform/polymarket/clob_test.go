package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestFetchAllMarketsPaginates(t *testing.T) {
	pages := map[string]marketsPage{
		initialCursor: {
			Data: []APIMarket{
				{ConditionID: "m1", Question: "Will it rain?", Active: true},
				{ConditionID: "m2", Title: "Election winner", Active: true},
			},
			NextCursor: "Mg==",
		},
		"Mg==": {
			Data: []APIMarket{
				{ConditionID: "m3", Question: "BTC above 100k?", Active: true, Category: "crypto"},
			},
			NextCursor: endCursor,
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("next_cursor")
		page, ok := pages[cursor]
		require.True(t, ok, "unexpected cursor %q", cursor)
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, 100, time.Second, discardLogger())
	got, err := client.FetchAllMarkets(context.Background())
	require.NoError(t, err)

	assert.True(t, got.Complete)
	assert.Equal(t, 2, got.Pages)
	assert.Len(t, got.Raw, 2)
	require.Len(t, got.Markets, 3)
	assert.Equal(t, "m1", got.Markets[0].ID)
	assert.Equal(t, "Will it rain?", got.Markets[0].Title)
	assert.Equal(t, domain.CategoryCrypto, got.Markets[2].Category)
}

func TestFetchAllMarketsPageCapMarksIncomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Always hand back another page; the client must stop at the cap.
		page := marketsPage{
			Data:       []APIMarket{{ConditionID: "m", Question: "q", Active: true}},
			NextCursor: "bmV4dA==",
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, 3, time.Second, discardLogger())
	got, err := client.FetchAllMarkets(context.Background())
	require.NoError(t, err)

	assert.False(t, got.Complete)
	assert.Equal(t, 3, got.Pages)
}

func TestFetchAllMarketsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, 100, time.Second, discardLogger())
	_, err := client.FetchAllMarkets(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamUnavailable))
}

func TestFetchAllMarketsSkipsRecordsWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := marketsPage{
			Data: []APIMarket{
				{ConditionID: "", Question: "orphan"},
				{ConditionID: "m1", Question: "kept", Active: true},
			},
			NextCursor: endCursor,
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer srv.Close()

	client := NewClobClient(srv.URL, 100, time.Second, discardLogger())
	got, err := client.FetchAllMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Markets, 1)
	assert.Equal(t, "m1", got.Markets[0].ID)
}

func TestAPIMarketToDomainStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		in   APIMarket
		want domain.MarketStatus
	}{
		{"active", APIMarket{ConditionID: "a", Active: true}, domain.MarketStatusActive},
		{"paused", APIMarket{ConditionID: "b", Active: false}, domain.MarketStatusPaused},
		{"closed", APIMarket{ConditionID: "c", Closed: true}, domain.MarketStatusResolved},
		{"archived", APIMarket{ConditionID: "d", Archived: true, Closed: true}, domain.MarketStatusExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.ToDomain().Status)
		})
	}
}

func TestAPIMarketDisplayTitlePreference(t *testing.T) {
	m := APIMarket{ConditionID: "x", MarketSlug: "slug", Description: "desc"}
	assert.Equal(t, "desc", m.DisplayTitle())

	m.Title = "title"
	assert.Equal(t, "title", m.DisplayTitle())

	m.Question = "question"
	assert.Equal(t, "question", m.DisplayTitle())

	empty := APIMarket{ConditionID: "x"}
	assert.Equal(t, "x", empty.DisplayTitle())
}

func TestAPIMarketToDomainCloseTime(t *testing.T) {
	m := APIMarket{ConditionID: "a", Active: true, EndDateISO: "2026-12-31T00:00:00Z"}
	got := m.ToDomain()
	assert.Equal(t, 2026, got.CloseTime.Year())

	bad := APIMarket{ConditionID: "b", Active: true, EndDateISO: "not-a-date"}
	assert.True(t, bad.ToDomain().CloseTime.IsZero())
}
