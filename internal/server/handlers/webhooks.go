package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"feedbacker/internal/scheduler"
	"feedbacker/internal/store"
	"feedbacker/pkg/api"
)

// PushWebhook handles POST /webhooks/push.
// Each push event turns into one job for the pushed revision, running the
// server's default analysis set.
func (h *Handlers) PushWebhook(w http.ResponseWriter, r *http.Request) {
	var payload api.PushWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.httpError(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	// Branch deletions push a zero commit; nothing to analyze.
	if payload.Deleted {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if payload.Repository.SSHURL == "" || payload.After == "" {
		h.httpError(w, "Payload missing repository ssh_url or after revision", http.StatusBadRequest)
		return
	}

	id, err := h.sched.Submit(r.Context(), scheduler.JobSpec{
		RepoURL:  payload.Repository.SSHURL,
		Revision: payload.After,
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
