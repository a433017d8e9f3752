// Package store contains the database layer for feedbacker.
package store

import (
	"time"

	"github.com/google/uuid"
)

// JobState represents the lifecycle state of a job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateFetching  JobState = "fetching"
	JobStateRunning   JobState = "running"
	JobStateStoring   JobState = "storing"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCancelled JobState = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// validNext maps each state to the states reachable from it. Cancelled is
// reachable from every non-terminal state; Fetching re-enters itself on retry.
var validNext = map[JobState][]JobState{
	JobStatePending:  {JobStateFetching, JobStateCancelled},
	JobStateFetching: {JobStateFetching, JobStateRunning, JobStateFailed, JobStateCancelled},
	JobStateRunning:  {JobStateStoring, JobStateFailed, JobStateCancelled},
	JobStateStoring:  {JobStateSucceeded, JobStateFailed, JobStateCancelled},
}

// ValidTransition reports whether a job may move from one state to another.
func ValidTransition(from, to JobState) bool {
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AnalysisKind identifies one analysis step. The set is closed; there is no
// plugin loading.
type AnalysisKind string

const (
	// AnalysisSecrets scans the working copy for leaked credentials.
	AnalysisSecrets AnalysisKind = "secrets"
	// AnalysisCommand runs the configured external check against the working copy.
	AnalysisCommand AnalysisKind = "command"
)

// KnownAnalysis reports whether k names a supported analysis step.
func KnownAnalysis(k AnalysisKind) bool {
	return k == AnalysisSecrets || k == AnalysisCommand
}

// Job represents one unit of work: analyze one repository revision.
type Job struct {
	ID          uuid.UUID
	RepoURL     string
	Revision    string
	Analyses    []AnalysisKind
	State       JobState
	Attempt     int
	MaxAttempts int
	NextRetryAt *time.Time
	LastError   *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// Severity of a finding. Any finding of SeverityError fails the job's
// overall pass signal.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Finding is one reported observation from an analysis step.
type Finding struct {
	Severity Severity `json:"severity"`
	RuleID   string   `json:"rule_id"`
	Message  string   `json:"message"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
}

// AnalysisResult is the immutable outcome of one successful runner
// invocation. Findings are ordered by file, line, then rule id.
type AnalysisResult struct {
	JobID     uuid.UUID
	Attempt   int
	Passed    bool
	Findings  []Finding
	CreatedAt time.Time
}
