package handlers

import (
	"net/http"

	"feedbacker/pkg/api"
)

// GetStats handles GET /stats.
// It reports durable per-state job counts plus the live queue occupancy.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountJobsByState(r.Context())
	if err != nil {
		h.httpError(w, "Failed to count jobs", http.StatusInternalServerError)
		return
	}

	jobs := make(map[string]int64, len(counts))
	for state, n := range counts {
		jobs[string(state)] = n
	}

	h.respondJson(w, http.StatusOK, api.StatsResponse{
		Jobs:       jobs,
		QueueDepth: h.sched.QueueDepth(),
		Accepting:  h.sched.Accepting(),
	})
}
