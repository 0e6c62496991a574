package handler

import (
	"log/slog"
	"net/http"

	"github.com/tippinbit/tippind/internal/domain"
)

// PriceService defines what the price handler requires from the poller.
type PriceService interface {
	Latest() (domain.PriceSample, error)
}

// PriceHandler serves the public BTC/USD price endpoint.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given price source.
func NewPriceHandler(prices PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logger}
}

// GetPrice returns the most recent BTC/USD sample. The response is cacheable
// for five minutes, matching the upstream refresh cadence. A daemon that has
// never fetched a price responds 503 rather than inventing one.
// GET /api/price
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	sample, err := h.prices.Latest()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "price unavailable")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, sample)
}
