package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/reconcile-backend/internal/domain/matcher"
)

// JobStatus represents the current state of an auto-match job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// ErrJobRunning is returned when an auto-match run is already in progress.
var ErrJobRunning = errors.New("auto-match already running")

// ErrJobNotFound is returned for an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// Job is a background auto-match run.
type Job struct {
	ID          string          `json:"id"`
	Status      JobStatus       `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Report      *matcher.Report `json:"report,omitempty"`
	Error       string          `json:"error,omitempty"`

	cancelFunc context.CancelFunc
	done       chan struct{}
}

// AutoMatcher runs one auto-match pass. Implemented by Workspace.
type AutoMatcher interface {
	AutoMatch(ctx context.Context) (*matcher.Report, error)
}

// JobRunner runs auto-match passes in the background, one at a time.
type JobRunner struct {
	target AutoMatcher
	logger *slog.Logger
	now    func() time.Time

	jobs      map[string]*Job
	jobsMutex sync.RWMutex

	// Only one run at a time: matches committed by one run change the
	// candidates of the next.
	runLock sync.Mutex
}

// NewJobRunner creates a runner for the given target.
func NewJobRunner(target AutoMatcher, logger *slog.Logger) *JobRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRunner{
		target: target,
		logger: logger.With("system", "jobs"),
		now:    time.Now,
		jobs:   make(map[string]*Job),
	}
}

// Start launches an auto-match run and returns its job id.
// Note: the passed context is not the parent of the run. Background runs use
// context.Background() so they outlive the HTTP request; use Cancel to stop one.
func (r *JobRunner) Start(_ context.Context) (string, error) {
	if !r.runLock.TryLock() {
		return "", ErrJobRunning
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:         uuid.NewString(),
		Status:     StatusPending,
		StartedAt:  r.now(),
		cancelFunc: cancel,
		done:       make(chan struct{}),
	}

	r.jobsMutex.Lock()
	r.jobs[job.ID] = job
	r.jobsMutex.Unlock()

	go r.run(jobCtx, job)

	r.logger.Info("auto-match job started", "job_id", job.ID)
	return job.ID, nil
}

// Get returns a snapshot of a job.
func (r *JobRunner) Get(jobID string) (Job, error) {
	r.jobsMutex.RLock()
	defer r.jobsMutex.RUnlock()

	job, exists := r.jobs[jobID]
	if !exists {
		return Job{}, fmt.Errorf("%s: %w", jobID, ErrJobNotFound)
	}
	return job.snapshot(), nil
}

// List returns snapshots of all jobs, newest first.
func (r *JobRunner) List() []Job {
	r.jobsMutex.RLock()
	defer r.jobsMutex.RUnlock()

	jobs := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
	return jobs
}

// Cancel stops a pending or running job. The run finishes the record it is on
// and the job completes with a partial report.
func (r *JobRunner) Cancel(jobID string) error {
	r.jobsMutex.RLock()
	job, exists := r.jobs[jobID]
	r.jobsMutex.RUnlock()

	if !exists {
		return fmt.Errorf("%s: %w", jobID, ErrJobNotFound)
	}

	r.jobsMutex.RLock()
	status := job.Status
	r.jobsMutex.RUnlock()
	if status != StatusPending && status != StatusRunning {
		return fmt.Errorf("job cannot be cancelled: status=%s", status)
	}

	job.cancelFunc()
	r.logger.Info("auto-match job cancelled", "job_id", jobID)
	return nil
}

// Wait blocks until the job finishes or ctx is done.
func (r *JobRunner) Wait(ctx context.Context, jobID string) (Job, error) {
	r.jobsMutex.RLock()
	job, exists := r.jobs[jobID]
	r.jobsMutex.RUnlock()
	if !exists {
		return Job{}, fmt.Errorf("%s: %w", jobID, ErrJobNotFound)
	}

	select {
	case <-job.done:
		return r.Get(jobID)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (r *JobRunner) CleanupOldJobs(maxAge time.Duration) int {
	r.jobsMutex.Lock()
	defer r.jobsMutex.Unlock()

	cutoff := r.now().Add(-maxAge)
	removed := 0
	for id, job := range r.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Debug("cleaned up old auto-match jobs", "removed", removed)
	}
	return removed
}

func (r *JobRunner) run(ctx context.Context, job *Job) {
	defer close(job.done)
	defer r.runLock.Unlock()
	defer job.cancelFunc()

	r.setStatus(job, StatusRunning)

	report, err := r.target.AutoMatch(ctx)

	r.jobsMutex.Lock()
	defer r.jobsMutex.Unlock()

	now := r.now()
	job.CompletedAt = &now
	job.Report = report

	switch {
	case err != nil:
		job.Status = StatusFailed
		job.Error = err.Error()
		r.logger.Error("auto-match job failed", "job_id", job.ID, "error", err)
	case report != nil && report.Partial:
		job.Status = StatusCancelled
		r.logger.Info("auto-match job stopped early",
			"job_id", job.ID,
			"matched", len(report.Matched),
			"unmatched", len(report.Unmatched))
	default:
		job.Status = StatusCompleted
		r.logger.Info("auto-match job completed",
			"job_id", job.ID,
			"matched", len(report.Matched),
			"queued", len(report.Queued),
			"unmatched", len(report.Unmatched))
	}
}

func (r *JobRunner) setStatus(job *Job, status JobStatus) {
	r.jobsMutex.Lock()
	defer r.jobsMutex.Unlock()
	job.Status = status
}

// snapshot copies the exported fields. Caller holds jobsMutex.
func (j *Job) snapshot() Job {
	out := Job{
		ID:        j.ID,
		Status:    j.Status,
		StartedAt: j.StartedAt,
		Report:    j.Report,
		Error:     j.Error,
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
