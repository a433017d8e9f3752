package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"feedbacker/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// CreateJob inserts a new job in its initial state.
func (s *Store) CreateJob(ctx context.Context, job *store.Job) error {
	query := `
		INSERT INTO jobs (id, repo_url, revision, analyses, state, attempt, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.RepoURL, job.Revision, pq.Array(analysesToStrings(job.Analyses)),
		job.State, job.Attempt, job.MaxAttempts, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns a job by its ID.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	query := `
		SELECT id, repo_url, revision, analyses, state, attempt, max_attempts,
		       next_retry_at, last_error, created_at, started_at, finished_at
		FROM jobs
		WHERE id = $1
	`

	var job store.Job
	var analyses []string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.RepoURL, &job.Revision, pq.Array(&analyses),
		&job.State, &job.Attempt, &job.MaxAttempts,
		&job.NextRetryAt, &job.LastError, &job.CreatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}

	job.Analyses = stringsToAnalyses(analyses)
	return &job, nil
}

// SaveTransition persists the job's current state, attempt counter, retry
// schedule and last error. started_at is set on the first transition out of
// pending; finished_at is set when the state is terminal.
func (s *Store) SaveTransition(ctx context.Context, job *store.Job) error {
	query := `
		UPDATE jobs
		SET state = $2,
		    attempt = $3,
		    next_retry_at = $4,
		    last_error = $5,
		    started_at = CASE WHEN $2 <> 'pending' THEN COALESCE(started_at, NOW()) ELSE started_at END,
		    finished_at = CASE WHEN $6 THEN NOW() ELSE finished_at END
		WHERE id = $1
	`

	res, err := s.db.ExecContext(ctx, query,
		job.ID, job.State, job.Attempt, job.NextRetryAt, job.LastError, job.State.Terminal(),
	)
	if err != nil {
		return fmt.Errorf("failed to save transition for job %s: %w", job.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CountJobsByState returns the number of jobs per state.
func (s *Store) CountJobsByState(ctx context.Context) (map[store.JobState]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[store.JobState]int64)
	for rows.Next() {
		var state store.JobState
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[state] = count
	}
	return counts, rows.Err()
}

// ListUnfinishedJobs returns jobs not yet in a terminal state, oldest first.
func (s *Store) ListUnfinishedJobs(ctx context.Context) ([]*store.Job, error) {
	query := `
		SELECT id, repo_url, revision, analyses, state, attempt, max_attempts,
		       next_retry_at, last_error, created_at, started_at, finished_at
		FROM jobs
		WHERE state NOT IN ('succeeded', 'failed', 'cancelled')
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*store.Job
	for rows.Next() {
		var job store.Job
		var analyses []string
		if err := rows.Scan(
			&job.ID, &job.RepoURL, &job.Revision, pq.Array(&analyses),
			&job.State, &job.Attempt, &job.MaxAttempts,
			&job.NextRetryAt, &job.LastError, &job.CreatedAt, &job.StartedAt, &job.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan unfinished job: %w", err)
		}
		job.Analyses = stringsToAnalyses(analyses)
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

func analysesToStrings(kinds []store.AnalysisKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func stringsToAnalyses(names []string) []store.AnalysisKind {
	out := make([]store.AnalysisKind, len(names))
	for i, n := range names {
		out[i] = store.AnalysisKind(n)
	}
	return out
}
