package store

import (
	"context"

	"github.com/google/uuid"
)

// JobStore handles the persistence of jobs and their state transitions.
// Every transition is written through SaveTransition so a process restart
// can observe where each job stopped.
type JobStore interface {
	// CreateJob inserts a new job in its initial state.
	CreateJob(ctx context.Context, job *Job) error

	// GetJob returns a job by its ID, or ErrNotFound.
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)

	// SaveTransition persists the job's current state, attempt counter,
	// retry schedule and last error.
	SaveTransition(ctx context.Context, job *Job) error

	// CountJobsByState returns the number of jobs per state.
	CountJobsByState(ctx context.Context) (map[JobState]int64, error)

	// ListUnfinishedJobs returns jobs not yet in a terminal state, oldest
	// first. Used to resume work after a restart.
	ListUnfinishedJobs(ctx context.Context) ([]*Job, error)
}

// ResultStore handles durable analysis results.
type ResultStore interface {
	// UpsertResult writes the result and marks the job succeeded in a
	// single transaction. Re-delivering the same (job, attempt) pair is a
	// no-op success, so the scheduler may retry after an ambiguous failure.
	UpsertResult(ctx context.Context, result *AnalysisResult) error

	// GetResult returns the latest persisted result for a job, or ErrNotFound.
	GetResult(ctx context.Context, jobID uuid.UUID) (*AnalysisResult, error)
}

// Store combines the repositories with connection lifecycle.
type Store interface {
	JobStore
	ResultStore
	Ping(ctx context.Context) error
	Close() error
}
