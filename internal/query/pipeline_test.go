package query

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) { return s.vec, s.err }
func (s *stubEmbedder) Model() string                                    { return "stub-model" }

type stubIndex struct {
	candidates []domain.Candidate
	err        error
	gotK       int
}

func (s *stubIndex) UpsertVector(context.Context, domain.Market, []float32) error { return nil }
func (s *stubIndex) Remove(context.Context, string) error                         { return nil }
func (s *stubIndex) Size() int                                                    { return len(s.candidates) }
func (s *stubIndex) Search(_ context.Context, _ []float32, k int, _ bool) ([]domain.Candidate, error) {
	s.gotK = k
	return s.candidates, s.err
}

type stubCatalog struct {
	markets []domain.Market
}

func (s *stubCatalog) Upsert(context.Context, domain.Market) error       { return nil }
func (s *stubCatalog) UpsertBatch(context.Context, []domain.Market) error { return nil }
func (s *stubCatalog) GetByID(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (s *stubCatalog) ListActive(context.Context, domain.ListOpts) ([]domain.Market, error) {
	return s.markets, nil
}
func (s *stubCatalog) ListSince(context.Context, time.Time) ([]domain.Market, error) {
	return nil, nil
}
func (s *stubCatalog) Count(context.Context) (int64, error) { return int64(len(s.markets)), nil }
func (s *stubCatalog) Epoch() uint64                        { return 1 }

func testConfig() Config {
	return Config{
		DefaultK:         5,
		CandidateK:       20,
		MaxInputChars:    4000,
		SimilarityWeight: 0.8,
		RecencyWeight:    0.2,
		DedupeThreshold:  0.9,
	}
}

func activeMarket(id, title string, closeIn time.Duration) domain.Market {
	return domain.Market{
		ID:        id,
		Title:     title,
		Status:    domain.MarketStatusActive,
		CloseTime: time.Now().Add(closeIn),
	}
}

func newTestPipeline(e domain.Embedder, ix domain.VectorIndex, cat domain.CatalogStore, cfg Config) *Pipeline {
	return NewPipeline(e, ix, cat, cfg, slog.New(slog.DiscardHandler))
}

func TestRunHappyPath(t *testing.T) {
	ix := &stubIndex{candidates: []domain.Candidate{
		{Market: activeMarket("m1", "Will it rain in Boston?", 48 * time.Hour), Similarity: 0.95},
		{Market: activeMarket("m2", "Fed cuts rates in March", 30 * 24 * time.Hour), Similarity: 0.60},
	}}
	p := newTestPipeline(&stubEmbedder{vec: []float32{1, 0}}, ix, &stubCatalog{}, testConfig())

	out, err := p.Run(context.Background(), "Rain forecast for Boston", domain.QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.QueryDone, out.State)
	assert.False(t, out.Lexical)
	assert.Equal(t, 20, ix.gotK)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "m1", out.Results[0].MarketID)
	assert.Equal(t, 1, out.Results[0].Rank)
	assert.Equal(t, 2, out.Results[1].Rank)
	assert.Greater(t, out.Results[0].RelevanceScore, out.Results[1].RelevanceScore)
	for _, r := range out.Results {
		assert.Equal(t, r.RelevanceScore, r.Confidence, "pre-judge confidence derives from the relevance score")
	}
}

func TestRunFingerprintStableAcrossSpacing(t *testing.T) {
	p := newTestPipeline(&stubEmbedder{vec: []float32{1}}, &stubIndex{}, &stubCatalog{}, testConfig())

	a, err := p.Run(context.Background(), "Will   it RAIN?", domain.QueryOptions{})
	require.NoError(t, err)
	b, err := p.Run(context.Background(), "will it rain", domain.QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Equal(t, a.Normalized, b.Normalized)
}

func TestRunEmptyInputFails(t *testing.T) {
	p := newTestPipeline(&stubEmbedder{}, &stubIndex{}, &stubCatalog{}, testConfig())

	out, err := p.Run(context.Background(), "  ?!  ", domain.QueryOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmptyInput))
	assert.Equal(t, domain.QueryFailed, out.State)
}

func TestRunLexicalFallback(t *testing.T) {
	cat := &stubCatalog{markets: []domain.Market{
		activeMarket("m1", "Will it rain in Boston tomorrow", 24 * time.Hour),
		activeMarket("m2", "Champions league final winner", 24 * time.Hour),
	}}
	embedder := &stubEmbedder{err: domain.ErrEmbeddingUnavailable}
	p := newTestPipeline(embedder, &stubIndex{}, cat, testConfig())

	out, err := p.Run(context.Background(), "rain boston", domain.QueryOptions{})
	require.NoError(t, err)

	assert.Equal(t, domain.QueryDone, out.State)
	assert.True(t, out.Lexical)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "m1", out.Results[0].MarketID)
}

func TestRunPollTextPrefersElectionMarket(t *testing.T) {
	cat := &stubCatalog{markets: []domain.Market{
		activeMarket("election", "Will Candidate X win the 2026 presidential election?", 90 * 24 * time.Hour),
		activeMarket("weather", "Will it rain in Boston tomorrow?", 24 * time.Hour),
	}}
	p := newTestPipeline(&stubEmbedder{err: domain.ErrEmbeddingUnavailable}, &stubIndex{}, cat, testConfig())

	out, err := p.Run(context.Background(), "New poll shows Candidate X leading the presidential election race", domain.QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "election", out.Results[0].MarketID)
}

func TestRunDedupesNearIdenticalTitles(t *testing.T) {
	ix := &stubIndex{candidates: []domain.Candidate{
		{Market: activeMarket("m1", "Will Bitcoin reach $100k in 2026?", 24 * time.Hour), Similarity: 0.9},
		{Market: activeMarket("m2", "Will Bitcoin reach $100k in 2026", 24 * time.Hour), Similarity: 0.89},
		{Market: activeMarket("m3", "Will Ethereum flip Bitcoin?", 24 * time.Hour), Similarity: 0.5},
	}}
	p := newTestPipeline(&stubEmbedder{vec: []float32{1}}, ix, &stubCatalog{}, testConfig())

	out, err := p.Run(context.Background(), "bitcoin 100k", domain.QueryOptions{})
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, "m1", out.Results[0].MarketID)
	assert.Equal(t, "m3", out.Results[1].MarketID)
}

func TestRunDedupeKeepsSoonestClosing(t *testing.T) {
	base := time.Now()
	ix := &stubIndex{candidates: []domain.Candidate{
		{Market: domain.Market{ID: "late", Title: "Will Bitcoin reach $100k in 2026?", Status: domain.MarketStatusActive, CloseTime: base.Add(30 * 24 * time.Hour)}, Similarity: 0.9},
		{Market: domain.Market{ID: "soon", Title: "Will Bitcoin reach $100k in 2026", Status: domain.MarketStatusActive, CloseTime: base.Add(24 * time.Hour)}, Similarity: 0.85},
	}}
	p := newTestPipeline(&stubEmbedder{vec: []float32{1}}, ix, &stubCatalog{}, testConfig())

	out, err := p.Run(context.Background(), "bitcoin 100k", domain.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "soon", out.Results[0].MarketID)
}

func TestRunDropsPastCloseTime(t *testing.T) {
	ix := &stubIndex{candidates: []domain.Candidate{
		{Market: activeMarket("gone", "Already closed market", -time.Hour), Similarity: 0.95},
		{Market: activeMarket("open", "Still open market", 24 * time.Hour), Similarity: 0.5},
	}}
	p := newTestPipeline(&stubEmbedder{vec: []float32{1}}, ix, &stubCatalog{}, testConfig())

	out, err := p.Run(context.Background(), "market", domain.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "open", out.Results[0].MarketID)
}

func TestRunTruncatesToK(t *testing.T) {
	var candidates []domain.Candidate
	titles := []string{"alpha one", "beta two", "gamma three", "delta four", "epsilon five", "zeta six"}
	for i, title := range titles {
		candidates = append(candidates, domain.Candidate{
			Market:     activeMarket(title[:1], title, 24*time.Hour),
			Similarity: 0.9 - float64(i)*0.1,
		})
	}
	p := newTestPipeline(&stubEmbedder{vec: []float32{1}}, &stubIndex{candidates: candidates}, &stubCatalog{}, testConfig())

	out, err := p.Run(context.Background(), "anything", domain.QueryOptions{K: 3})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	for i, r := range out.Results {
		assert.Equal(t, i+1, r.Rank)
	}
}

func TestRunDeterministicTieBreak(t *testing.T) {
	ix := &stubIndex{candidates: []domain.Candidate{
		{Market: activeMarket("b", "second market", 24 * time.Hour), Similarity: 0.7},
		{Market: activeMarket("a", "first market", 24 * time.Hour), Similarity: 0.7},
	}}
	p := newTestPipeline(&stubEmbedder{vec: []float32{1}}, ix, &stubCatalog{}, testConfig())

	out, err := p.Run(context.Background(), "market", domain.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "a", out.Results[0].MarketID)
	assert.Equal(t, "b", out.Results[1].MarketID)
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("  Will BTC hit $100k?!  ", 0)
	require.NoError(t, err)
	assert.Equal(t, "will btc hit 100k", got)

	_, err = Normalize("???", 0)
	assert.True(t, errors.Is(err, domain.ErrEmptyInput))

	got, err = Normalize("one two three four", 7)
	require.NoError(t, err)
	assert.Equal(t, "one two", got)
}

func TestNormalizeStripsMarkupAndURLs(t *testing.T) {
	got, err := Normalize(`<p>Candidate X <b>leads</b></p> https://example.com/poll in new poll`, 0)
	require.NoError(t, err)
	assert.Equal(t, "candidate x leads in new poll", got)
}

func TestNormalizeWindowsLongInput(t *testing.T) {
	lead := "Candidate X takes the lead."
	filler := strings.Repeat("Some meandering commentary without substance follows here. ", 10)
	dense := "The poll shows 52 percent support."

	got, err := Normalize(lead+" "+filler+dense, 120)
	require.NoError(t, err)
	assert.Contains(t, got, "candidate x takes the lead")
	assert.Contains(t, got, "52 percent")
	assert.LessOrEqual(t, len(got), 120)
}

func TestNormalizeTruncatesAtRuneBoundary(t *testing.T) {
	// Byte 11 of "münchen wählt …" lands inside the two-byte ä.
	got, err := Normalize("münchen wählt übermorgen neu", 11)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), 11)
	assert.True(t, strings.HasPrefix(got, "münchen"))
}

func TestTitleSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TitleSimilarity("same title", "same title"))
	assert.GreaterOrEqual(t, TitleSimilarity("Will it rain tomorrow?", "will it rain tomorrow"), 0.9)
	assert.Less(t, TitleSimilarity("bitcoin price prediction", "presidential election winner"), 0.3)
}

func TestRecencyScore(t *testing.T) {
	now := time.Now()
	soon := recencyScore(now, now.Add(24*time.Hour))
	far := recencyScore(now, now.Add(300*24*time.Hour))
	assert.Greater(t, soon, far)
	assert.Equal(t, 0.5, recencyScore(now, time.Time{}))
	assert.Equal(t, 0.0, recencyScore(now, now.Add(400*24*time.Hour)))
}
