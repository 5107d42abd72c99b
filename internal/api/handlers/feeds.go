package handlers

import (
	"log/slog"
	"net/http"

	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
)

// FeedsHandler accepts bank and obligation feeds.
type FeedsHandler struct {
	*Base
	ws *service.Workspace
}

// NewFeedsHandler creates a new feeds handler.
func NewFeedsHandler(ws *service.Workspace, logger *slog.Logger) *FeedsHandler {
	return &FeedsHandler{
		Base: NewBase(logger),
		ws:   ws,
	}
}

// Load handles POST /api/feeds.
func (h *FeedsHandler) Load(w http.ResponseWriter, r *http.Request) {
	feed, err := service.ReadFeed(r.Body)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
		return
	}

	if err := h.ws.LoadFeed(feed); err != nil {
		h.WriteDomainError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.FeedLoadedResponse{
		Counterparties: len(feed.Counterparties),
		BankRecords:    len(feed.BankRecords),
		Obligations:    len(feed.Obligations),
	})
}

// BankRecords handles GET /api/bank-records?unmatched=true.
func (h *FeedsHandler) BankRecords(w http.ResponseWriter, r *http.Request) {
	if ParseBoolParam(r, "unmatched", false) {
		h.WriteJSON(w, http.StatusOK, h.ws.UnmatchedBankRecords())
		return
	}
	h.WriteJSON(w, http.StatusOK, h.ws.BankRecords())
}

// Obligations handles GET /api/obligations?open=true.
func (h *FeedsHandler) Obligations(w http.ResponseWriter, r *http.Request) {
	if ParseBoolParam(r, "open", false) {
		h.WriteJSON(w, http.StatusOK, h.ws.UnmatchedObligations())
		return
	}
	h.WriteJSON(w, http.StatusOK, h.ws.Obligations())
}
