package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
	"github.com/eshaffer321/reconcile-backend/internal/domain/allocator"
	"github.com/eshaffer321/reconcile-backend/internal/domain/engine"
	"github.com/eshaffer321/reconcile-backend/internal/domain/model"
)

// MatchesHandler handles match lifecycle requests.
type MatchesHandler struct {
	*Base
	ws *service.Workspace
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(ws *service.Workspace, logger *slog.Logger) *MatchesHandler {
	return &MatchesHandler{
		Base: NewBase(logger),
		ws:   ws,
	}
}

// List handles GET /api/matches - lists matches in creation order.
func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	params := dto.DefaultMatchListParams()
	params.IncludeReversed = ParseBoolParam(r, "include_reversed", false)
	params.OpenOnly = ParseBoolParam(r, "open_only", false)
	params.Limit = ParseIntParam(r, "limit", params.Limit)
	params.Offset = ParseIntParam(r, "offset", params.Offset)

	// Validate limits
	if params.Limit <= 0 || params.Limit > 500 {
		params.Limit = 50
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	all := h.ws.Matches(params.IncludeReversed)
	filtered := make([]*model.Match, 0, len(all))
	for _, m := range all {
		if params.OpenOnly && m.Balance.IsZero() {
			continue
		}
		filtered = append(filtered, m)
	}

	page := []*model.Match{}
	if params.Offset < len(filtered) {
		end := params.Offset + params.Limit
		if end > len(filtered) {
			end = len(filtered)
		}
		page = filtered[params.Offset:end]
	}

	h.WriteJSON(w, http.StatusOK, dto.MatchListResponse{
		Matches:    page,
		TotalCount: len(filtered),
		Limit:      params.Limit,
		Offset:     params.Offset,
	})
}

// Get handles GET /api/matches/{id}.
func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.ws.Match(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, m)
}

// Commit handles POST /api/matches.
func (h *MatchesHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req dto.CommitMatchRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	m, err := h.ws.Commit(r.Context(), engine.CommitRequest{
		BankRecordIDs: req.BankRecordIDs,
		ObligationIDs: req.ObligationIDs,
		Allocations:   req.Allocations,
		Strategy:      allocator.Strategy(req.Strategy),
		Actor:         req.Actor,
	})
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, m)
}

// Extend handles POST /api/matches/{id}/extend.
func (h *MatchesHandler) Extend(w http.ResponseWriter, r *http.Request) {
	var req dto.ExtendMatchRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	m, err := h.ws.Extend(r.Context(), chi.URLParam(r, "id"), engine.ExtendRequest{
		BankRecordIDs: req.BankRecordIDs,
		ObligationIDs: req.ObligationIDs,
		Allocations:   req.Allocations,
		Strategy:      allocator.Strategy(req.Strategy),
		Actor:         req.Actor,
	})
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, m)
}

// Reverse handles POST /api/matches/{id}/reverse.
func (h *MatchesHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req dto.ReverseMatchRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	m, err := h.ws.Reverse(r.Context(), chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, m)
}

// History handles GET /api/matches/{id}/history.
func (h *MatchesHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ws.History(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.HistoryResponse{Entries: entries})
}

// HistorySince handles GET /api/history?since=RFC3339.
func (h *MatchesHandler) HistorySince(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("since must be an RFC3339 timestamp"))
			return
		}
		since = parsed
	}

	entries := h.ws.HistorySince(since)
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	h.WriteJSON(w, http.StatusOK, dto.HistoryResponse{Entries: entries})
}
