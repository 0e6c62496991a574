package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/tippinbit/tippind/internal/borrow"
	"github.com/tippinbit/tippind/internal/collateral"
	"github.com/tippinbit/tippind/internal/domain"
	"github.com/tippinbit/tippind/internal/username"
)

// BorrowService defines what the borrow handler requires from the flow
// manager.
type BorrowService interface {
	Enabled() bool
	Start(tipAmount *big.Int, recipient, message string) (borrow.Status, error)
	Get(id string) (borrow.Status, error)
	Retry(id string) (borrow.Status, error)
	Cancel(id string) (borrow.Status, error)
}

// CollateralReader reports the wallet's BTC collateral balance for capacity
// sizing.
type CollateralReader interface {
	CollateralBalance(ctx context.Context) (*big.Int, error)
}

// BorrowHandler serves the borrowing-flow endpoints.
type BorrowHandler struct {
	flows      BorrowService
	usernames  UsernameService
	collateral CollateralReader
	prices     PriceService
	calc       collateral.Config
	logger     *slog.Logger
}

// NewBorrowHandler creates a BorrowHandler. collateralReader may be nil when
// the daemon runs without chain access; the capacity endpoint then responds
// 503.
func NewBorrowHandler(flows BorrowService, usernames UsernameService, collateralReader CollateralReader,
	prices PriceService, calc collateral.Config, logger *slog.Logger) *BorrowHandler {
	return &BorrowHandler{
		flows:      flows,
		usernames:  usernames,
		collateral: collateralReader,
		prices:     prices,
		calc:       calc,
		logger:     logger,
	}
}

// startBorrowRequest is the JSON body for starting a flow. Recipient is
// either a wallet address or a claimed username (with or without "@").
type startBorrowRequest struct {
	AmountUSD string `json:"amount"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

// StartBorrow sizes the collateral and launches a borrowing flow.
// POST /api/borrow
func (h *BorrowHandler) StartBorrow(w http.ResponseWriter, r *http.Request) {
	var req startBorrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	amount, err := collateral.ParseUSD(req.AmountUSD)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := username.ValidateTipMessage(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	message := username.SanitizeMessage(req.Message)

	recipient, err := h.resolveRecipient(r.Context(), req.Recipient)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "recipient username not found")
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to resolve recipient")
		}
		return
	}

	status, err := h.flows.Start(amount, recipient, message)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBorrowingDisabled):
			writeError(w, http.StatusServiceUnavailable, "borrowing is not yet enabled")
		case errors.Is(err, domain.ErrPriceUnavailable), errors.Is(err, domain.ErrPriceStale):
			writeError(w, http.StatusServiceUnavailable, "no fresh price available")
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: start borrow failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to start borrow flow")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, status)
}

// GetBorrow returns the current status of a flow.
// GET /api/borrow/{id}
func (h *BorrowHandler) GetBorrow(w http.ResponseWriter, r *http.Request) {
	h.respondFlow(w, r, func(id string) (borrow.Status, error) {
		return h.flows.Get(id)
	})
}

// RetryBorrow re-dispatches the failed step of a flow.
// POST /api/borrow/{id}/retry
func (h *BorrowHandler) RetryBorrow(w http.ResponseWriter, r *http.Request) {
	h.respondFlow(w, r, func(id string) (borrow.Status, error) {
		return h.flows.Retry(id)
	})
}

// CancelBorrow stops a flow from progressing. Confirmed steps stay
// confirmed; cancellation never issues reversing transactions.
// POST /api/borrow/{id}/cancel
func (h *BorrowHandler) CancelBorrow(w http.ResponseWriter, r *http.Request) {
	h.respondFlow(w, r, func(id string) (borrow.Status, error) {
		return h.flows.Cancel(id)
	})
}

// capacityResponse reports how large a tip the wallet's BTC could back at
// the current price.
type capacityResponse struct {
	MaxTipUSD     string  `json:"maxTipUsd"`
	CollateralBTC string  `json:"collateralBtc"`
	PriceUSD      float64 `json:"priceUsd"`
	Enabled       bool    `json:"enabled"`
}

// BorrowCapacity reports the maximum tip the wallet's collateral supports.
// GET /api/borrow/capacity
func (h *BorrowHandler) BorrowCapacity(w http.ResponseWriter, r *http.Request) {
	if h.collateral == nil {
		writeError(w, http.StatusServiceUnavailable, "chain access is not configured")
		return
	}

	sample, err := h.prices.Latest()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "price unavailable")
		return
	}

	balance, err := h.collateral.CollateralBalance(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: collateral balance failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "failed to read collateral balance")
		return
	}

	maxTip := h.calc.MaxTipFromCollateral(balance, sample.PriceScaled)
	writeJSON(w, http.StatusOK, capacityResponse{
		MaxTipUSD:     collateral.FormatUSD(maxTip),
		CollateralBTC: collateral.FormatBTC(balance),
		PriceUSD:      sample.PriceUSD,
		Enabled:       h.flows.Enabled(),
	})
}

func (h *BorrowHandler) respondFlow(w http.ResponseWriter, r *http.Request, op func(string) (borrow.Status, error)) {
	id := r.PathValue("id")

	status, err := op(id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "borrow flow not found")
		case errors.Is(err, domain.ErrFlowActive):
			writeError(w, http.StatusConflict, "flow is still running")
		default:
			h.logger.ErrorContext(r.Context(), "handler: borrow flow op failed",
				slog.String("flow_id", id),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "borrow flow operation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// resolveRecipient turns a username into its wallet address, passing raw
// addresses through untouched.
func (h *BorrowHandler) resolveRecipient(ctx context.Context, recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if strings.HasPrefix(recipient, "0x") || strings.HasPrefix(recipient, "0X") {
		if err := username.ValidateAddress(recipient); err != nil {
			return "", err
		}
		return recipient, nil
	}

	claimed, err := h.usernames.Lookup(ctx, recipient)
	if err != nil {
		return "", err
	}
	return claimed.WalletAddress, nil
}
