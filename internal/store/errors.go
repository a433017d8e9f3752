package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a job or result does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOverloaded is returned by submit when the queue is full.
	// The caller must back off.
	ErrOverloaded = errors.New("scheduler overloaded")
)

// ErrorKind classifies pipeline failures. The kind decides whether the
// scheduler retries the attempt or fails the job immediately.
type ErrorKind string

const (
	// KindAuth means the transport credentials were rejected. Not retryable.
	KindAuth ErrorKind = "auth"
	// KindNetwork covers transient transport failures. Retryable.
	KindNetwork ErrorKind = "network"
	// KindRevisionNotFound means the job references a revision the remote
	// does not have. The job is malformed; not retryable.
	KindRevisionNotFound ErrorKind = "revision_not_found"
	// KindTimeout means an analysis step exceeded its deadline. The outcome
	// is ambiguous, so it must never be treated as success. Not retryable.
	KindTimeout ErrorKind = "timeout"
	// KindPersistence covers store write failures. Retryable a bounded
	// number of times.
	KindPersistence ErrorKind = "persistence"
	// KindRunFailed means an analysis step broke before producing a
	// result (tool missing, runtime error). Not retryable.
	KindRunFailed ErrorKind = "run_failed"
	// KindCancelled means the job was cancelled by the caller.
	KindCancelled ErrorKind = "cancelled"
)

// PipelineError carries the failure classification through the scheduler.
type PipelineError struct {
	Kind ErrorKind
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Retryable reports whether the scheduler may re-run the attempt.
func (e *PipelineError) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindPersistence
}

// NewPipelineError wraps err with a kind.
func NewPipelineError(kind ErrorKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

// KindOf extracts the classification from err. Unclassified errors and
// context cancellation map to sensible defaults so callers can always
// record a kind on the job.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindRunFailed
}

// Retryable reports whether err carries a retryable classification.
// Unclassified errors are never retried.
func Retryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
