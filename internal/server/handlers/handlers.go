// Package handlers contains HTTP handlers for the feedbacker API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"feedbacker/internal/scheduler"
	"feedbacker/internal/store"
	"feedbacker/pkg/api"

	"github.com/google/uuid"
)

// Scheduler is the subset of the job scheduler the API needs.
type Scheduler interface {
	Submit(ctx context.Context, spec scheduler.JobSpec) (uuid.UUID, error)
	Status(ctx context.Context, id uuid.UUID) (*store.Job, error)
	Cancel(id uuid.UUID) bool
	QueueDepth() int
	Accepting() bool
}

// StatsStore combines the store interfaces needed by the read-only endpoints.
type StatsStore interface {
	store.ResultStore
	CountJobsByState(ctx context.Context) (map[store.JobState]int64, error)
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	sched Scheduler
	store StatsStore
}

// New creates a new Handlers instance.
func New(sched Scheduler, st StatsStore) *Handlers {
	return &Handlers{sched: sched, store: st}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
