package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tippinbit/tippind/internal/domain"
	"github.com/tippinbit/tippind/internal/payurl"
	"github.com/tippinbit/tippind/internal/username"
)

// UsernameService defines what the username handler requires from the
// service layer.
type UsernameService interface {
	Claim(ctx context.Context, req username.ClaimRequest) (domain.ClaimedUsername, error)
	Lookup(ctx context.Context, name string) (domain.ClaimedUsername, error)
}

// UsernameHandler serves the username claim and lookup endpoints.
type UsernameHandler struct {
	usernames UsernameService
	baseURL   string
	logger    *slog.Logger
}

// NewUsernameHandler creates a UsernameHandler. baseURL is the public origin
// used when building payment links for claimed names.
func NewUsernameHandler(usernames UsernameService, baseURL string, logger *slog.Logger) *UsernameHandler {
	return &UsernameHandler{
		usernames: usernames,
		baseURL:   baseURL,
		logger:    logger,
	}
}

// claimRequest is the JSON body of a claim attempt.
type claimRequest struct {
	Username        string `json:"username"`
	WalletAddress   string `json:"walletAddress"`
	Message         string `json:"message"`
	Signature       string `json:"signature"`
	ThankYouMessage string `json:"thankyouMessage"`
}

// claimResponse confirms a successful claim and includes the shareable
// payment link.
type claimResponse struct {
	Success       bool   `json:"success"`
	Username      string `json:"username"`
	WalletAddress string `json:"walletAddress"`
	PayURL        string `json:"payUrl"`
}

// ClaimUsername records a username for a wallet after verifying the wallet's
// signature over the claim message.
// POST /api/username
func (h *UsernameHandler) ClaimUsername(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	claimed, err := h.usernames.Claim(r.Context(), username.ClaimRequest{
		Username:        req.Username,
		WalletAddress:   req.WalletAddress,
		Message:         req.Message,
		Signature:       req.Signature,
		ThankYouMessage: req.ThankYouMessage,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "signature verification failed")
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "username is already taken")
		default:
			h.logger.ErrorContext(r.Context(), "handler: claim username failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to claim username")
		}
		return
	}

	payURL, err := payurl.ForUsername(h.baseURL, claimed.Username, payurl.Options{})
	if err != nil {
		payURL = ""
	}

	writeJSON(w, http.StatusOK, claimResponse{
		Success:       true,
		Username:      claimed.Username,
		WalletAddress: claimed.WalletAddress,
		PayURL:        payURL,
	})
}

// LookupUsername resolves a username to its wallet address and thank-you
// message. Lookups for "@alice" and "alice" return the same record.
// GET /api/username?username=alice
func (h *UsernameHandler) LookupUsername(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("username")
	if name == "" {
		writeError(w, http.StatusBadRequest, "username parameter is required")
		return
	}

	claimed, err := h.usernames.Lookup(r.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "username not found")
		default:
			h.logger.ErrorContext(r.Context(), "handler: lookup username failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to look up username")
		}
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, claimed)
}
