package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconcile-backend/internal/api/dto"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
)

// AutoMatchHandler runs the auto-matcher, inline or as a background job.
type AutoMatchHandler struct {
	*Base
	ws   *service.Workspace
	jobs *service.JobRunner
}

// NewAutoMatchHandler creates a new auto-match handler.
func NewAutoMatchHandler(ws *service.Workspace, jobs *service.JobRunner, logger *slog.Logger) *AutoMatchHandler {
	return &AutoMatchHandler{
		Base: NewBase(logger),
		ws:   ws,
		jobs: jobs,
	}
}

// Run handles POST /api/auto-match - runs inline and returns the report.
// A client disconnect cancels the run; the partial report is still returned.
func (h *AutoMatchHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.ws.AutoMatch(r.Context())
	if err != nil {
		h.WriteDomainError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, report)
}

// StartJob handles POST /api/auto-match/jobs.
func (h *AutoMatchHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := h.jobs.Start(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrJobRunning) {
			h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
			return
		}
		h.WriteDomainError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusAccepted, dto.StartJobResponse{
		JobID:  jobID,
		Status: string(service.StatusPending),
	})
}

// ListJobs handles GET /api/auto-match/jobs.
func (h *AutoMatchHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, h.jobs.List())
}

// GetJob handles GET /api/auto-match/jobs/{jobId}.
func (h *AutoMatchHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(chi.URLParam(r, "jobId"))
	if err != nil {
		h.writeJobError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /api/auto-match/jobs/{jobId}.
func (h *AutoMatchHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if err := h.jobs.Cancel(jobID); err != nil {
		h.writeJobError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": "cancelling",
	})
}

func (h *AutoMatchHandler) writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrJobNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("job"))
		return
	}
	h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
}
