package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketlens/internal/service"
)

// StatusHandler serves operational counters for dashboards.
type StatusHandler struct {
	catalog   *service.CatalogService
	sync      SyncStatus
	mode      string
	startedAt time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(catalog *service.CatalogService, sync SyncStatus, mode string, startedAt time.Time, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		catalog:   catalog,
		sync:      sync,
		mode:      mode,
		startedAt: startedAt,
		logger:    logger.With(slog.String("handler", "status")),
	}
}

// GetStatus handles GET /api/status.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if stats, err := h.catalog.Stats(r.Context()); err == nil {
		body["catalog"] = stats
	} else {
		h.logger.WarnContext(r.Context(), "catalog stats failed", slog.String("error", err.Error()))
	}

	if h.sync != nil {
		body["sync"] = h.sync.Status(r.Context())
	}

	writeJSON(w, http.StatusOK, body)
}
