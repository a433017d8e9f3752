package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"feedbacker/internal/scheduler"
	"feedbacker/internal/store"
	"feedbacker/pkg/api"

	"github.com/google/uuid"
)

// SubmitJob handles POST /jobs.
// It validates the submission and hands it to the scheduler. A full queue
// turns into 503 so callers know to back off rather than queue forever.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.RepoURL == "" || req.Revision == "" {
		h.httpError(w, "repo_url and revision are required", http.StatusBadRequest)
		return
	}

	kinds := make([]store.AnalysisKind, 0, len(req.Analyses))
	for _, name := range req.Analyses {
		k := store.AnalysisKind(name)
		if !store.KnownAnalysis(k) {
			h.httpError(w, "Unknown analysis kind: "+name, http.StatusBadRequest)
			return
		}
		kinds = append(kinds, k)
	}

	id, err := h.sched.Submit(r.Context(), scheduler.JobSpec{
		RepoURL:  req.RepoURL,
		Revision: req.Revision,
		Analyses: kinds,
	})
	if errors.Is(err, store.ErrOverloaded) {
		w.Header().Set("Retry-After", "1")
		h.httpError(w, "Queue is full", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		h.httpError(w, "Failed to submit job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusAccepted, api.SubmitJobResponse{JobID: id.String()})
}

// GetJob handles GET /jobs/{id}.
// Succeeded jobs include their persisted result.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.sched.Status(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.httpError(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	resp := jobToResponse(job)
	if job.State == store.JobStateSucceeded {
		result, err := h.store.GetResult(ctx, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Failed to load result", http.StatusInternalServerError)
			return
		}
		if result != nil {
			resp.Result = resultToResponse(result)
		}
	}

	h.respondJson(w, http.StatusOK, resp)
}

// CancelJob handles DELETE /jobs/{id}.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	if h.sched.Cancel(id) {
		h.respondJson(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
		return
	}

	// Not live: distinguish a finished job from an unknown one.
	job, err := h.sched.Status(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.httpError(w, "Failed to load job", http.StatusInternalServerError)
		return
	}
	h.httpError(w, "Job already finished: "+string(job.State), http.StatusConflict)
}

func jobToResponse(job *store.Job) *api.JobResponse {
	analyses := make([]string, len(job.Analyses))
	for i, k := range job.Analyses {
		analyses[i] = string(k)
	}
	return &api.JobResponse{
		ID:          job.ID.String(),
		RepoURL:     job.RepoURL,
		Revision:    job.Revision,
		Analyses:    analyses,
		State:       string(job.State),
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
		NextRetryAt: job.NextRetryAt,
		Error:       job.LastError,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		FinishedAt:  job.FinishedAt,
	}
}

func resultToResponse(result *store.AnalysisResult) *api.ResultResponse {
	findings := make([]api.Finding, len(result.Findings))
	for i, f := range result.Findings {
		findings[i] = api.Finding{
			Severity: string(f.Severity),
			RuleID:   f.RuleID,
			Message:  f.Message,
			File:     f.File,
			Line:     f.Line,
		}
	}
	return &api.ResultResponse{
		Attempt:   result.Attempt,
		Passed:    result.Passed,
		Findings:  findings,
		CreatedAt: result.CreatedAt,
	}
}
