package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketlens/internal/domain"
	"github.com/alanyoungcy/marketlens/internal/service"
)

// MarketHandler serves read access to the market catalog.
type MarketHandler struct {
	svc    *service.CatalogService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc *service.CatalogService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		svc:    svc,
		logger: logger.With(slog.String("handler", "market")),
	}
}

// ListMarkets handles GET /api/markets. Results are tradable markets ordered
// soonest-closing first.
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.svc.ListActive(r.Context(), opts.Limit, opts.Offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, errKindInternal, "failed to list markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"markets": markets,
		"count":   len(markets),
	})
}

// GetMarket handles GET /api/markets/{id}.
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, errKindBadRequest, "market id is required")
		return
	}

	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, errKindNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get market failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, errKindInternal, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, m)
}
