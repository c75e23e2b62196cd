package rerank

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

type stubJudge struct {
	judgments []domain.Judgment
	err       error
	gotQuery  string
	gotBatch  []domain.CandidateSummary
	delay     time.Duration
}

func (s *stubJudge) Judge(ctx context.Context, queryText string, candidates []domain.CandidateSummary) ([]domain.Judgment, error) {
	s.gotQuery = queryText
	s.gotBatch = candidates
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.judgments, s.err
}

func inputResults() []domain.MatchResult {
	return []domain.MatchResult{
		{MarketID: "m1", Title: "first", RelevanceScore: 0.9, Confidence: 0.9, Rank: 1},
		{MarketID: "m2", Title: "second", RelevanceScore: 0.7, Confidence: 0.7, Rank: 2},
		{MarketID: "m3", Title: "third", RelevanceScore: 0.5, Confidence: 0.5, Rank: 3},
	}
}

func newStage(j domain.Judge, cfg Config) *Stage {
	return NewStage(j, nil, cfg, slog.New(slog.DiscardHandler))
}

func TestApplyMergesJudgmentsAndResorts(t *testing.T) {
	judge := &stubJudge{judgments: []domain.Judgment{
		{MarketID: "m1", Relevance: 0.2, Confidence: 0.9, Explanation: "weak link"},
		{MarketID: "m2", Relevance: 0.95, Confidence: 0.85, Explanation: "direct match"},
		{MarketID: "m3", Relevance: 0.4, Confidence: 0.6, Explanation: "partial"},
	}}
	stage := newStage(judge, Config{TopK: 5, Timeout: time.Second})

	got, judged := stage.Apply(context.Background(), "query text", inputResults())
	require.True(t, judged)
	require.Len(t, got, 3)

	assert.Equal(t, "m2", got[0].MarketID)
	assert.Equal(t, 1, got[0].Rank)
	require.NotNil(t, got[0].Explanation)
	assert.Equal(t, "direct match", *got[0].Explanation)
	assert.Equal(t, "query text", judge.gotQuery)
	assert.Len(t, judge.gotBatch, 3)
}

func TestApplyBatchesOnlyTopK(t *testing.T) {
	judge := &stubJudge{judgments: []domain.Judgment{
		{MarketID: "m1", Relevance: 0.9, Confidence: 0.9, Explanation: "top"},
	}}
	stage := newStage(judge, Config{TopK: 1, Timeout: time.Second})

	got, judged := stage.Apply(context.Background(), "q", inputResults())
	require.True(t, judged)
	assert.Len(t, judge.gotBatch, 1)

	// Results beyond TopK keep their retrieval scores and nil explanations.
	require.Len(t, got, 3)
	for _, r := range got[1:] {
		assert.Nil(t, r.Explanation)
	}
}

func TestApplyDegradesOnJudgeError(t *testing.T) {
	judge := &stubJudge{err: domain.ErrRerankUnavailable}
	stage := newStage(judge, Config{TopK: 5, Timeout: time.Second})

	in := inputResults()
	got, judged := stage.Apply(context.Background(), "q", in)
	require.False(t, judged)
	assert.Equal(t, in, got)
	for _, r := range got {
		assert.Nil(t, r.Explanation)
	}
}

func TestApplyDegradesOnTimeout(t *testing.T) {
	judge := &stubJudge{delay: 200 * time.Millisecond}
	stage := newStage(judge, Config{TopK: 5, Timeout: 10 * time.Millisecond})

	in := inputResults()
	got, judged := stage.Apply(context.Background(), "q", in)
	require.False(t, judged)
	assert.Equal(t, in, got)
}

func TestApplyKeepsScoreForSkippedCandidates(t *testing.T) {
	judge := &stubJudge{judgments: []domain.Judgment{
		{MarketID: "m2", Relevance: 0.99, Confidence: 0.9, Explanation: "only one judged"},
	}}
	stage := newStage(judge, Config{TopK: 5, Timeout: time.Second})

	got, judged := stage.Apply(context.Background(), "q", inputResults())
	require.True(t, judged)
	assert.Equal(t, "m2", got[0].MarketID)

	var m1 domain.MatchResult
	for _, r := range got {
		if r.MarketID == "m1" {
			m1 = r
		}
	}
	assert.Equal(t, 0.9, m1.RelevanceScore)
	assert.Nil(t, m1.Explanation)
}

func TestApplyNilJudgePassesThrough(t *testing.T) {
	stage := newStage(nil, Config{TopK: 5})
	in := inputResults()
	got, judged := stage.Apply(context.Background(), "q", in)
	assert.False(t, judged)
	assert.Equal(t, in, got)
}
