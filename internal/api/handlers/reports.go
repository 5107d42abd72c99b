package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
)

// ReportsHandler handles discrepancy and balance requests.
type ReportsHandler struct {
	*Base
	ws *service.Workspace
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(ws *service.Workspace, logger *slog.Logger) *ReportsHandler {
	return &ReportsHandler{
		Base: NewBase(logger),
		ws:   ws,
	}
}

// Discrepancies handles GET /api/discrepancies.
func (h *ReportsHandler) Discrepancies(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.ws.Discrepancies())
}

// Balance handles GET /api/counterparties/{id}/balance.
func (h *ReportsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.WriteJSON(w, http.StatusOK, h.ws.CounterpartyBalance(id))
}

// Invariants handles GET /api/invariants.
func (h *ReportsHandler) Invariants(w http.ResponseWriter, r *http.Request) {
	violations := h.ws.CheckInvariants()
	if violations == nil {
		violations = []string{}
	}
	h.WriteJSON(w, http.StatusOK, dto.InvariantsResponse{
		OK:         len(violations) == 0,
		Violations: violations,
	})
}

// Stats handles GET /api/stats.
func (h *ReportsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ws.Stats(r.Context())
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	if stats == nil {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("stats"))
		return
	}
	h.WriteJSON(w, http.StatusOK, stats)
}
