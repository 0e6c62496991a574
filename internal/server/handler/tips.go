package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tippinbit/tippind/internal/domain"
)

// TipService defines what the tips handler requires from the journal.
type TipService interface {
	GetByID(ctx context.Context, id string) (domain.Tip, error)
	ListRecent(ctx context.Context, limit, offset int) ([]domain.Tip, error)
	Count(ctx context.Context) (int64, error)
}

// TipsHandler serves the completed-tip journal endpoints.
type TipsHandler struct {
	tips   TipService
	logger *slog.Logger
}

// NewTipsHandler creates a TipsHandler backed by the given journal.
func NewTipsHandler(tips TipService, logger *slog.Logger) *TipsHandler {
	return &TipsHandler{tips: tips, logger: logger}
}

// listTipsResponse wraps the list endpoint output with metadata.
type listTipsResponse struct {
	Tips   []domain.Tip `json:"tips"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// ListTips returns recent completed tips, newest first.
// GET /api/tips?limit=50&offset=0
func (h *TipsHandler) ListTips(w http.ResponseWriter, r *http.Request) {
	if h.tips == nil {
		writeError(w, http.StatusServiceUnavailable, "tip journal is not configured")
		return
	}
	opts := parseListOpts(r)

	tips, err := h.tips.ListRecent(r.Context(), opts.Limit, opts.Offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list tips failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list tips")
		return
	}

	total, err := h.tips.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count tips failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count tips")
		return
	}

	if tips == nil {
		tips = []domain.Tip{}
	}
	writeJSON(w, http.StatusOK, listTipsResponse{
		Tips:   tips,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetTip returns one journaled tip.
// GET /api/tips/{id}
func (h *TipsHandler) GetTip(w http.ResponseWriter, r *http.Request) {
	if h.tips == nil {
		writeError(w, http.StatusServiceUnavailable, "tip journal is not configured")
		return
	}
	id := r.PathValue("id")

	tip, err := h.tips.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tip not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get tip failed",
			slog.String("tip_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get tip")
		return
	}

	writeJSON(w, http.StatusOK, tip)
}
