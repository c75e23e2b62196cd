package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	catsync "github.com/alanyoungcy/marketlens/internal/sync"
)

// SyncStatus reports the synchronizer's health.
type SyncStatus interface {
	Status(ctx context.Context) catsync.Status
}

// HealthHandler serves liveness and readiness information.
type HealthHandler struct {
	sync      SyncStatus
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. sync may be nil in serve-only
// deployments without a local synchronizer.
func NewHealthHandler(sync SyncStatus, startedAt time.Time, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		sync:      sync,
		startedAt: startedAt,
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health. A degraded synchronizer answers 200
// with degraded=true: the service still serves queries from the last good
// catalog, so it remains ready.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.sync != nil {
		st := h.sync.Status(r.Context())
		body["sync"] = st
		if st.Degraded {
			body["status"] = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, body)
}
