package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlens/internal/domain"
	"github.com/alanyoungcy/marketlens/internal/query"
	"github.com/alanyoungcy/marketlens/internal/rerank"
	"github.com/alanyoungcy/marketlens/internal/service"
	catsync "github.com/alanyoungcy/marketlens/internal/sync"
)

type stubCatalog struct {
	markets map[string]domain.Market
	active  []domain.Market
	epoch   uint64
}

func (s *stubCatalog) Upsert(context.Context, domain.Market) error        { return nil }
func (s *stubCatalog) UpsertBatch(context.Context, []domain.Market) error { return nil }
func (s *stubCatalog) GetByID(_ context.Context, id string) (domain.Market, error) {
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}
func (s *stubCatalog) ListActive(context.Context, domain.ListOpts) ([]domain.Market, error) {
	return s.active, nil
}
func (s *stubCatalog) ListSince(context.Context, time.Time) ([]domain.Market, error) {
	return nil, nil
}
func (s *stubCatalog) Count(context.Context) (int64, error) { return int64(len(s.markets)), nil }
func (s *stubCatalog) Epoch() uint64                        { return s.epoch }

type stubIndex struct {
	candidates []domain.Candidate
}

func (s *stubIndex) UpsertVector(context.Context, domain.Market, []float32) error { return nil }
func (s *stubIndex) Remove(context.Context, string) error                         { return nil }
func (s *stubIndex) Size() int                                                    { return len(s.candidates) }
func (s *stubIndex) Search(context.Context, []float32, int, bool) ([]domain.Candidate, error) {
	return s.candidates, nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 0}, nil }
func (stubEmbedder) Model() string                                    { return "test-model" }

type stubJudge struct{}

func (stubJudge) Judge(_ context.Context, _ string, candidates []domain.CandidateSummary) ([]domain.Judgment, error) {
	out := make([]domain.Judgment, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.Judgment{MarketID: c.MarketID, Relevance: 0.8, Confidence: 0.8, Explanation: "relevant"})
	}
	return out, nil
}

type stubSync struct {
	status catsync.Status
}

func (s *stubSync) Status(context.Context) catsync.Status { return s.status }

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func newMatchHandler(t *testing.T, cat *stubCatalog, ix *stubIndex) *MatchHandler {
	t.Helper()
	logger := testLogger()
	p := query.NewPipeline(stubEmbedder{}, ix, cat, query.Config{
		DefaultK:         5,
		CandidateK:       20,
		SimilarityWeight: 0.8,
		RecencyWeight:    0.2,
		DedupeThreshold:  0.9,
	}, logger)
	stage := rerank.NewStage(stubJudge{}, cat, rerank.Config{TopK: 5, Timeout: time.Second}, logger)
	svc := service.NewMatchService(p, stage, nil, cat, service.MatchConfig{
		DefaultTimeout: 5 * time.Second,
	}, logger)
	return NewMatchHandler(svc, logger)
}

func TestMatchReturnsRankedResults(t *testing.T) {
	cat := &stubCatalog{epoch: 1}
	ix := &stubIndex{candidates: []domain.Candidate{
		{Market: domain.Market{ID: "m1", Title: "Will it rain tomorrow?", Status: domain.MarketStatusActive, CloseTime: time.Now().Add(24 * time.Hour)}, Similarity: 0.9},
	}}
	h := newMatchHandler(t, cat, ix)

	req := httptest.NewRequest(http.MethodPost, "/api/match", strings.NewReader(`{"text":"rain forecast"}`))
	rec := httptest.NewRecorder()
	h.Match(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp service.MatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "m1", resp.Results[0].MarketID)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, uint64(1), resp.Epoch)
}

func TestMatchEmptyTextIsBadRequest(t *testing.T) {
	h := newMatchHandler(t, &stubCatalog{epoch: 1}, &stubIndex{})

	req := httptest.NewRequest(http.MethodPost, "/api/match", strings.NewReader(`{"text":"!!!"}`))
	rec := httptest.NewRecorder()
	h.Match(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatchInvalidBodyIsBadRequest(t *testing.T) {
	h := newMatchHandler(t, &stubCatalog{epoch: 1}, &stubIndex{})

	req := httptest.NewRequest(http.MethodPost, "/api/match", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	h.Match(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMarketNotFound(t *testing.T) {
	svc := service.NewCatalogService(&stubCatalog{markets: map[string]domain.Market{}}, testLogger())
	h := NewMarketHandler(svc, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)

	req := httptest.NewRequest(http.MethodGet, "/api/markets/unknown", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMarketsEmptyIsNotNull(t *testing.T) {
	svc := service.NewCatalogService(&stubCatalog{}, testLogger())
	h := NewMarketHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	rec := httptest.NewRecorder()
	h.ListMarkets(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Markets []domain.Market `json:"markets"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Markets)
	assert.Equal(t, 0, body.Count)
}

func TestHealthDegradedStillOK(t *testing.T) {
	h := NewHealthHandler(&stubSync{status: catsync.Status{Degraded: true, ConsecutiveFailures: 4}}, time.Now(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestHealthWithoutSyncer(t *testing.T) {
	h := NewHealthHandler(nil, time.Now(), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotContains(t, body, "sync")
}
