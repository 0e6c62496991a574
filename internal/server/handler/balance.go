package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tippinbit/tippind/internal/collateral"
	"github.com/tippinbit/tippind/internal/domain"
)

// BalanceService defines what the balance handler requires from the monitor.
type BalanceService interface {
	Enabled() bool
	Snapshot() domain.BalanceSnapshot
	Refetch(ctx context.Context) error
}

// BalanceHandler serves the wallet MUSD balance endpoint.
type BalanceHandler struct {
	balances BalanceService
	logger   *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler backed by the given monitor.
func NewBalanceHandler(balances BalanceService, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{balances: balances, logger: logger}
}

// balanceResponse reports the displayed balance. Balance is null, not zero,
// when no poll has succeeded yet: zero is a real balance, absence is not.
type balanceResponse struct {
	Balance    *string `json:"balance"`
	BalanceUSD *string `json:"balanceUsd"`
	Available  bool    `json:"available"`
	PolledAt   string  `json:"polledAt,omitempty"`
}

// GetBalance returns the wallet's displayed MUSD balance, including any
// optimistic decrement from an in-flight transfer.
// GET /api/balance
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	if !h.balances.Enabled() {
		writeJSON(w, http.StatusOK, balanceResponse{Available: false})
		return
	}

	snap := h.balances.Snapshot()
	resp := balanceResponse{Available: snap.Available}
	if !snap.PolledAt.IsZero() {
		resp.PolledAt = snap.PolledAt.UTC().Format(time.RFC3339)
	}
	if displayed := snap.Displayed(); displayed != nil {
		raw := displayed.String()
		usd := collateral.FormatUSD(displayed)
		resp.Balance = &raw
		resp.BalanceUSD = &usd
	}

	writeJSON(w, http.StatusOK, resp)
}

// RefreshBalance forces an immediate re-poll, clearing any optimistic
// override.
// POST /api/balance/refresh
func (h *BalanceHandler) RefreshBalance(w http.ResponseWriter, r *http.Request) {
	if !h.balances.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "balance monitoring is not configured")
		return
	}

	if err := h.balances.Refetch(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.ErrorContext(r.Context(), "handler: balance refresh failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to refresh balance")
		return
	}

	h.GetBalance(w, r)
}
