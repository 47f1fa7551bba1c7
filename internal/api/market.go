package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/stock-watchlist/internal/calendar"
	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/mohamedkhairy/stock-watchlist/internal/quote"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// StatusReporter reports the market state at an instant
type StatusReporter interface {
	Status(ctx context.Context, t time.Time) calendar.Status
}

// ActivityTracker records client activity for the adaptive poll interval
type ActivityTracker interface {
	Touch()
}

// MarketHandler handles market data endpoints
type MarketHandler struct {
	calendar StatusReporter
	quotes   quote.Source
	names    quote.NameLookup
	indices  []string
	activity ActivityTracker
	now      func() time.Time
}

// NewMarketHandler creates a new market handler. names and activity may be
// nil.
func NewMarketHandler(cal StatusReporter, quotes quote.Source, names quote.NameLookup, indices []string, activity ActivityTracker) *MarketHandler {
	return &MarketHandler{
		calendar: cal,
		quotes:   quotes,
		names:    names,
		indices:  indices,
		activity: activity,
		now:      time.Now,
	}
}

// GetStatus handles GET /api/v1/market/status
func (h *MarketHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.calendar.Status(r.Context(), h.now()))
}

// GetIndices handles GET /api/v1/market/indices. Indices the feed did not
// return are left out.
func (h *MarketHandler) GetIndices(w http.ResponseWriter, r *http.Request) {
	snapshots := h.quotes.FetchSnapshots(r.Context(), h.indices)

	out := make([]models.Snapshot, 0, len(h.indices))
	for _, code := range h.indices {
		if s, ok := snapshots[models.NormalizeCode(code)]; ok {
			out = append(out, s)
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"indices": out,
		"count":   len(out),
	})
}

// GetStockName handles GET /api/v1/stocks/{code}/name
func (h *MarketHandler) GetStockName(w http.ResponseWriter, r *http.Request) {
	code := models.NormalizeCode(mux.Vars(r)["code"])
	if code == "" {
		respondWithError(w, http.StatusBadRequest, models.ErrInvalidCode.Error())
		return
	}
	if h.names == nil {
		respondWithError(w, http.StatusNotFound, "Name lookup unavailable")
		return
	}

	name, err := h.names.LookupName(r.Context(), code)
	if err != nil || name == "" {
		logger.Warn("Stock name not found",
			logger.String("code", code),
			logger.ErrorField(err),
		)
		respondWithError(w, http.StatusNotFound, "Stock name not found")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"code": code,
		"name": name,
	})
}

// RecordActivity handles POST /api/v1/activity
func (h *MarketHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	if h.activity != nil {
		h.activity.Touch()
	}
	w.WriteHeader(http.StatusNoContent)
}
