package handlers

import (
	"log/slog"
	"net/http"

	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
	"github.com/eshaffer321/reconcile-backend/internal/domain/alias"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// AliasesHandler handles counterparty and alias requests.
type AliasesHandler struct {
	*Base
	ws *service.Workspace
}

// NewAliasesHandler creates a new aliases handler.
func NewAliasesHandler(ws *service.Workspace, logger *slog.Logger) *AliasesHandler {
	return &AliasesHandler{
		Base: NewBase(logger),
		ws:   ws,
	}
}

// Counterparties handles GET /api/counterparties.
func (h *AliasesHandler) Counterparties(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.ws.Counterparties())
}

// List handles GET /api/aliases - optionally filtered by counterparty_id.
func (h *AliasesHandler) List(w http.ResponseWriter, r *http.Request) {
	aliases := h.ws.Aliases(r.URL.Query().Get("counterparty_id"))
	if aliases == nil {
		aliases = []model.Alias{}
	}
	h.WriteJSON(w, http.StatusOK, dto.AliasListResponse{Aliases: aliases})
}

// Create handles POST /api/aliases.
func (h *AliasesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.AddAliasRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}
	if req.CounterpartyID == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("counterparty_id is required"))
		return
	}

	a, err := h.ws.AddAlias(r.Context(), req.CounterpartyID, req.Text, req.Actor)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, a)
}

// Resolve handles GET /api/resolve?raw=...
func (h *AliasesHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("raw")
	if raw == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("raw is required"))
		return
	}

	candidate, ok := h.ws.Resolve(raw)
	h.WriteJSON(w, http.StatusOK, dto.ResolveResponse{
		Raw:       raw,
		Resolved:  ok,
		Candidate: candidate,
	})
}

// Suggest handles POST /api/aliases/suggestions.
func (h *AliasesHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req dto.SuggestAliasesRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	suggestions, err := h.ws.SuggestAliases(req.CounterpartyID, req.Texts)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []alias.Suggestion{}
	}
	h.WriteJSON(w, http.StatusOK, dto.SuggestionListResponse{
		CounterpartyID: req.CounterpartyID,
		Suggestions:    suggestions,
	})
}

// Conflicts handles GET /api/aliases/conflicts.
func (h *AliasesHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := h.ws.AliasConflicts()
	if conflicts == nil {
		conflicts = []string{}
	}
	h.WriteJSON(w, http.StatusOK, conflicts)
}
