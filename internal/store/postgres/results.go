package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"feedbacker/internal/store"

	"github.com/google/uuid"
)

// UpsertResult writes the analysis result and marks the job succeeded in a
// single transaction, so a reader never observes a succeeded job without a
// result row. Re-delivering the same (job_id, attempt) pair is a no-op
// success: the scheduler retries this step after failures whose actual
// outcome is unknown.
func (s *Store) UpsertResult(ctx context.Context, result *store.AnalysisResult) error {
	findings, err := json.Marshal(result.Findings)
	if err != nil {
		return fmt.Errorf("failed to marshal findings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_results (job_id, attempt, passed, findings)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id, attempt) DO NOTHING
	`, result.JobID, result.Attempt, result.Passed, findings)
	if err != nil {
		return fmt.Errorf("failed to insert result for job %s: %w", result.JobID, err)
	}

	// Clearing last_error and next_retry_at here keeps a job that succeeded
	// after transient retries from reporting a stale failure.
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET state = $2,
		    last_error = NULL,
		    next_retry_at = NULL,
		    finished_at = COALESCE(finished_at, NOW())
		WHERE id = $1
	`, result.JobID, store.JobStateSucceeded)
	if err != nil {
		return fmt.Errorf("failed to mark job %s succeeded: %w", result.JobID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result for job %s: %w", result.JobID, err)
	}
	return nil
}

// GetResult returns the latest persisted result for a job.
func (s *Store) GetResult(ctx context.Context, jobID uuid.UUID) (*store.AnalysisResult, error) {
	query := `
		SELECT job_id, attempt, passed, findings, created_at
		FROM analysis_results
		WHERE job_id = $1
		ORDER BY attempt DESC
		LIMIT 1
	`

	var result store.AnalysisResult
	var findings []byte
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&result.JobID, &result.Attempt, &result.Passed, &findings, &result.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result for job %s: %w", jobID, err)
	}

	if err := json.Unmarshal(findings, &result.Findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings for job %s: %w", jobID, err)
	}
	return &result, nil
}
