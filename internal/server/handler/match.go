package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketlens/internal/domain"
	"github.com/alanyoungcy/marketlens/internal/service"
)

// maxRequestBody bounds the match request body; query text is capped far
// below this anyway.
const maxRequestBody = 1 << 20

// MatchHandler serves content-to-market match queries.
type MatchHandler struct {
	svc    *service.MatchService
	logger *slog.Logger
}

// NewMatchHandler creates a MatchHandler.
func NewMatchHandler(svc *service.MatchService, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "match")),
	}
}

// matchRequest is the POST /api/match request body.
type matchRequest struct {
	Text            string `json:"text"`
	K               int    `json:"k"`
	IncludeResolved bool   `json:"include_resolved"`
	TimeoutMs       int    `json:"timeout_ms"`
}

// Match handles POST /api/match.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errKindBadRequest, "invalid request body")
		return
	}

	opts := domain.QueryOptions{
		K:               req.K,
		IncludeResolved: req.IncludeResolved,
	}
	if req.TimeoutMs > 0 {
		opts.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	resp, err := h.svc.Match(r.Context(), req.Text, opts)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmptyInput):
			writeError(w, http.StatusBadRequest, errKindEmptyInput, "query text is empty")
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, errKindTimeout, "query timed out")
		default:
			h.logger.ErrorContext(r.Context(), "match query failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, errKindInternal, "match query failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
