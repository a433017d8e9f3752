// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the server.
package api

import "time"

// SubmitJobRequest is the request body for submitting a feedback job.
type SubmitJobRequest struct {
	RepoURL  string   `json:"repo_url"`
	Revision string   `json:"revision"`
	// Analyses selects which analysis steps run. Empty means the server's
	// configured default set.
	Analyses []string `json:"analyses,omitempty"`
}

// SubmitJobResponse is the response body after submitting a job.
type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

// JobResponse is the response body for job status queries.
type JobResponse struct {
	ID          string     `json:"id"`
	RepoURL     string     `json:"repo_url"`
	Revision    string     `json:"revision"`
	Analyses    []string   `json:"analyses"`
	State       string     `json:"state"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	// Result is included once the job has succeeded.
	Result *ResultResponse `json:"result,omitempty"`
}

// ResultResponse carries the outcome of a finished analysis.
type ResultResponse struct {
	Attempt   int       `json:"attempt"`
	Passed    bool      `json:"passed"`
	Findings  []Finding `json:"findings"`
	CreatedAt time.Time `json:"created_at"`
}

// Finding is a single analysis finding.
type Finding struct {
	Severity string `json:"severity"`
	RuleID   string `json:"rule_id"`
	Message  string `json:"message"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// StatsResponse is the response body for the admin stats endpoint.
type StatsResponse struct {
	Jobs       map[string]int64 `json:"jobs"`
	QueueDepth int              `json:"queue_depth"`
	Accepting  bool             `json:"accepting"`
}

// PushWebhookPayload is the subset of a git push event the server consumes.
type PushWebhookPayload struct {
	Repository struct {
		SSHURL string `json:"ssh_url"`
	} `json:"repository"`
	After   string `json:"after"`
	Deleted bool   `json:"deleted"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
