package handlers

import (
	"context"
	"net/http"

	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
)

// HealthChecker reports the state of the reconciliation workspace.
type HealthChecker interface {
	Health(ctx context.Context) (service.Health, error)
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	*Base
	checker HealthChecker
}

// NewHealthHandler creates a new health handler. A nil checker reports only liveness.
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{
		Base:    NewBase(nil),
		checker: checker,
	}
}

// ServeHTTP handles the health check request. An unreachable database
// answers 503 so load balancers take the instance out.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		h.WriteJSON(w, http.StatusOK, dto.NewHealthResponse("ok"))
		return
	}

	state, err := h.checker.Health(r.Context())

	response := dto.NewHealthResponse("ok")
	response.Persistent = state.Persistent
	response.SchemaVersion = state.SchemaVersion
	response.BankRecords = state.BankRecords
	response.Obligations = state.Obligations
	response.LiveMatches = state.LiveMatches

	if err != nil {
		response.Status = "unavailable"
		response.Error = err.Error()
		h.WriteJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	h.WriteJSON(w, http.StatusOK, response)
}
