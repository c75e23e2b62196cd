// Package judge implements the re-ranking capability against an
// OpenAI-compatible chat completions endpoint. One call judges a whole
// candidate batch; per-candidate calls would multiply latency past the
// rerank deadline.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/marketlens/internal/domain"
)

const systemPrompt = `You judge how relevant prediction markets are to a piece of content.
Given the content and a numbered list of candidate markets, respond with JSON only:
{"judgments":[{"market_id":"...","relevance":0.0,"confidence":0.0,"explanation":"..."}]}
relevance and confidence are in [0,1]. explanation is one short sentence tying
the content to the market. Include every candidate exactly once.`

const defaultTimeout = 5 * time.Second

// Config captures the settings for the judge endpoint.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// Client implements domain.Judge over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a judge client. There is no retry loop: the rerank
// stage runs under a hard deadline and degrades gracefully on failure, so a
// slow retry is worse than an immediate error.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type judgmentPayload struct {
	Judgments []domain.Judgment `json:"judgments"`
}

// Judge sends one batched relevance request and returns the parsed verdicts.
// All failures wrap domain.ErrRerankUnavailable; the caller decides whether
// to degrade.
func (c *Client) Judge(ctx context.Context, queryText string, candidates []domain.CandidateSummary) ([]domain.Judgment, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	userPrompt, err := buildUserPrompt(queryText, candidates)
	if err != nil {
		return nil, fmt.Errorf("judge: %w: %v", domain.ErrRerankUnavailable, err)
	}

	content, err := c.completeJSON(ctx, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("judge: %w: %v", domain.ErrRerankUnavailable, err)
	}

	var parsed judgmentPayload
	if err := decodeModelJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("judge: %w: parse payload: %v", domain.ErrRerankUnavailable, err)
	}

	for i := range parsed.Judgments {
		parsed.Judgments[i].Relevance = clamp01(parsed.Judgments[i].Relevance)
		parsed.Judgments[i].Confidence = clamp01(parsed.Judgments[i].Confidence)
		parsed.Judgments[i].Explanation = strings.TrimSpace(parsed.Judgments[i].Explanation)
	}
	return parsed.Judgments, nil
}

func buildUserPrompt(queryText string, candidates []domain.CandidateSummary) (string, error) {
	encoded, err := json.Marshal(candidates)
	if err != nil {
		return "", fmt.Errorf("encode candidates: %w", err)
	}
	var b strings.Builder
	b.WriteString("Content:\n")
	b.WriteString(queryText)
	b.WriteString("\n\nCandidate markets:\n")
	b.Write(encoded)
	return b.String(), nil
}

func (c *Client) completeJSON(ctx context.Context, userPrompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("api error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("empty completion")
	}
	return decoded.Choices[0].Message.Content, nil
}

// decodeModelJSON tolerates the formatting quirks models produce around JSON:
// markdown code fences and leading or trailing prose.
func decodeModelJSON(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return fmt.Errorf("empty payload")
	}

	if err := json.Unmarshal([]byte(trimmed), target); err == nil {
		return nil
	}

	trimmed = stripCodeFence(trimmed)
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	return json.Unmarshal([]byte(trimmed), target)
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(strings.TrimLeft(s, " \t\r\n"), "json")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
