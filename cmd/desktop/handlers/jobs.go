package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
	"github.com/wahabsharif/premierspaces-app/backend/internal/services"
)

// JobCreator creates jobs, online or queued.
type JobCreator interface {
	Create(ctx context.Context, job *models.Job) (*services.CreateResult, error)
	Pending(ctx context.Context) ([]*models.Job, error)
}

// CostRecorder records costs against jobs.
type CostRecorder interface {
	Create(ctx context.Context, cost *models.Cost) (*services.CostResult, error)
	ForJob(ctx context.Context, jobID string) ([]*models.Cost, error)
}

// JobHandler handles job and cost creation.
type JobHandler struct {
	jobs  JobCreator
	costs CostRecorder
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobs JobCreator, costs CostRecorder) *JobHandler {
	return &JobHandler{jobs: jobs, costs: costs}
}

// CreateJob handles POST /jobs
// 201 when the server accepted the job, 202 when it was queued offline.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var job models.Job
	if !decode(w, r, &job) {
		return
	}
	res, err := h.jobs.Create(r.Context(), &job)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// LocalJobs handles GET /jobs/local
// It returns jobs stored on the device that still wait for a sync.
func (h *JobHandler) LocalJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.Pending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// CreateCost handles POST /jobs/{jobID}/costs
func (h *JobHandler) CreateCost(w http.ResponseWriter, r *http.Request) {
	var cost models.Cost
	if !decode(w, r, &cost) {
		return
	}
	cost.JobID = chi.URLParam(r, "jobID")

	res, err := h.costs.Create(r.Context(), &cost)
	if err != nil {
		if res != nil {
			// Stored locally; the server refused it.
			writeJSON(w, statusFor(codeOf(err)), map[string]interface{}{
				"cost":  res.Cost,
				"error": errorBody{Code: string(codeOf(err)), Message: err.Error()},
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListCosts handles GET /jobs/{jobID}/costs
func (h *JobHandler) ListCosts(w http.ResponseWriter, r *http.Request) {
	costs, err := h.costs.ForJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if costs == nil {
		costs = []*models.Cost{}
	}
	writeJSON(w, http.StatusOK, costs)
}
