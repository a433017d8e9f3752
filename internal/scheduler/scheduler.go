// Package scheduler contains the orchestration core: it accepts jobs,
// bounds concurrent execution and drives each job through
// fetch -> run -> store with retries and crash-safe state transitions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"feedbacker/internal/fetcher"
	"feedbacker/internal/store"

	"github.com/google/uuid"
)

// Fetcher materializes a repository revision into dest.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL, revision, dest string) (*fetcher.WorkingCopy, error)
}

// Runner executes the analysis steps against a working copy.
type Runner interface {
	Run(ctx context.Context, workDir string, kinds []store.AnalysisKind) (*store.AnalysisResult, error)
}

// Store is the durable side of the scheduler.
type Store interface {
	store.JobStore
	store.ResultStore
}

// Config holds scheduler settings, passed at construction.
type Config struct {
	Workers         int
	QueueCapacity   int
	WorkDir         string
	FetchTimeout    time.Duration
	AnalysisTimeout time.Duration
	Retry           RetryPolicy
	// StoreAttempts bounds retries of the result write.
	StoreAttempts int
	// DefaultAnalyses applies when a submission names no analysis set.
	DefaultAnalyses []store.AnalysisKind
}

// JobSpec describes one submission.
type JobSpec struct {
	RepoURL  string
	Revision string
	Analyses []store.AnalysisKind
}

// jobEntry tracks one live (queued or in-flight) job. The live table and
// queue are the only state shared across workers; both are guarded by a
// single mutex / channel pair.
type jobEntry struct {
	cancel    context.CancelFunc // nil while still queued
	cancelled bool
}

// Scheduler is the orchestration core. Create with New, drive with Run.
type Scheduler struct {
	cfg     Config
	store   Store
	fetcher Fetcher
	runner  Runner
	log     *slog.Logger

	// slots bounds accepted-but-unfinished jobs at QueueCapacity+Workers;
	// a slot is held from Submit until the job reaches a terminal state.
	slots chan struct{}
	queue chan *store.Job

	mu   sync.Mutex
	live map[uuid.UUID]*jobEntry

	accepting atomic.Bool
	done      chan struct{}
}

// New creates a Scheduler. It does not start workers; call Run.
func New(cfg Config, st Store, f Fetcher, r Runner, log *slog.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 16
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseBackoff <= 0 {
		cfg.Retry.BaseBackoff = 5 * time.Second
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = 2 * time.Minute
	}
	if cfg.StoreAttempts <= 0 {
		cfg.StoreAttempts = 3
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 2 * time.Minute
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 10 * time.Minute
	}

	capacity := cfg.QueueCapacity + cfg.Workers
	s := &Scheduler{
		cfg:     cfg,
		store:   st,
		fetcher: f,
		runner:  r,
		log:     log,
		slots:   make(chan struct{}, capacity),
		queue:   make(chan *store.Job, capacity),
		live:    make(map[uuid.UUID]*jobEntry),
		done:    make(chan struct{}),
	}
	s.accepting.Store(true)
	return s
}

// Run starts the worker pool and blocks until ctx is cancelled. In-flight
// jobs are drained before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler starting", "workers", s.cfg.Workers, "queue_capacity", s.cfg.QueueCapacity)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx)
		}()
	}

	<-ctx.Done()
	s.accepting.Store(false)
	s.log.Info("scheduler stopping, draining in-flight jobs")
	wg.Wait()
	close(s.done)
	return ctx.Err()
}

// Done returns a channel that is closed when the scheduler has fully stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.process(job)
			<-s.slots
		}
	}
}

// Submit accepts a job for processing. When the queue is full it fails fast
// with store.ErrOverloaded instead of blocking.
func (s *Scheduler) Submit(ctx context.Context, spec JobSpec) (uuid.UUID, error) {
	if spec.RepoURL == "" || spec.Revision == "" {
		return uuid.Nil, fmt.Errorf("repository URL and revision are required")
	}
	analyses := spec.Analyses
	if len(analyses) == 0 {
		analyses = s.cfg.DefaultAnalyses
	}
	if len(analyses) == 0 {
		return uuid.Nil, fmt.Errorf("no analyses requested and no default analysis set configured")
	}
	for _, k := range analyses {
		if !store.KnownAnalysis(k) {
			return uuid.Nil, fmt.Errorf("unknown analysis kind %q", k)
		}
	}

	if !s.accepting.Load() {
		return uuid.Nil, store.ErrOverloaded
	}
	select {
	case s.slots <- struct{}{}:
	default:
		return uuid.Nil, store.ErrOverloaded
	}

	job := &store.Job{
		ID:          uuid.New(),
		RepoURL:     spec.RepoURL,
		Revision:    spec.Revision,
		Analyses:    analyses,
		State:       store.JobStatePending,
		MaxAttempts: s.cfg.Retry.MaxAttempts,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		<-s.slots
		return uuid.Nil, store.NewPipelineError(store.KindPersistence, err)
	}

	s.mu.Lock()
	s.live[job.ID] = &jobEntry{}
	s.mu.Unlock()

	s.queue <- job // cannot block: the slot is held

	s.log.Info("job submitted", "job_id", job.ID, "repo", job.RepoURL, "revision", job.Revision)
	return job.ID, nil
}

// Status returns the durable job record. Every transition is persisted, so
// the store is the single source of truth.
func (s *Scheduler) Status(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return s.store.GetJob(ctx, id)
}

// Cancel requests cancellation of a queued or in-flight job. It returns
// false when the job is unknown or already terminal; cancelling after the
// result has been committed is a no-op.
func (s *Scheduler) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	entry, ok := s.live[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	entry.cancelled = true
	cancel := entry.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.log.Info("job cancellation requested", "job_id", id)
	return true
}

// QueueDepth reports the number of accepted jobs not yet finished.
func (s *Scheduler) QueueDepth() int {
	return len(s.slots)
}

// Accepting reports whether Submit currently admits work.
func (s *Scheduler) Accepting() bool {
	return s.accepting.Load()
}

// Recover re-enqueues jobs the store still holds in a non-terminal state,
// typically after a crash. It must be called before serving traffic. Jobs
// whose retry budget was already spent are failed rather than re-run, so a
// restart never grants an extra attempt. When the queue cannot hold every
// recovered job at once, the remainder is admitted in the background as
// capacity frees.
func (s *Scheduler) Recover(ctx context.Context) error {
	jobs, err := s.store.ListUnfinishedJobs(ctx)
	if err != nil {
		return fmt.Errorf("listing unfinished jobs: %w", err)
	}

	for i, job := range jobs {
		if s.failIfExhausted(job) {
			continue
		}
		select {
		case s.slots <- struct{}{}:
		default:
			rest := jobs[i:]
			s.log.Warn("queue full during recovery, deferring remainder", "deferred", len(rest))
			go s.recoverDeferred(rest)
			return nil
		}
		s.enqueueRecovered(job)
	}
	return nil
}

// recoverDeferred admits recovered jobs the initial pass could not seat,
// blocking until a slot frees for each.
func (s *Scheduler) recoverDeferred(jobs []*store.Job) {
	for _, job := range jobs {
		if s.failIfExhausted(job) {
			continue
		}
		s.slots <- struct{}{}
		s.enqueueRecovered(job)
	}
}

// failIfExhausted terminally fails a recovered job whose durable attempt
// counter already reached the policy max. Re-running it would push the
// counter past the budget.
func (s *Scheduler) failIfExhausted(job *store.Job) bool {
	if job.Attempt < job.MaxAttempts {
		return false
	}
	if job.LastError == nil {
		msg := "interrupted with no retry budget left"
		job.LastError = &msg
	}
	job.State = store.JobStateFailed
	job.NextRetryAt = nil
	if err := s.persist(job); err != nil {
		s.log.Warn("failed to persist exhausted recovered job", "job_id", job.ID, "error", err)
	}
	s.log.Warn("recovered job had no attempts left, failing", "job_id", job.ID, "attempt", job.Attempt)
	return true
}

func (s *Scheduler) enqueueRecovered(job *store.Job) {
	// A fresh attempt starts from pending; the attempt counter is durable
	// and keeps counting across restarts.
	job.State = store.JobStatePending
	if err := s.persist(job); err != nil {
		s.log.Warn("failed to reset recovered job", "job_id", job.ID, "error", err)
	}

	s.mu.Lock()
	s.live[job.ID] = &jobEntry{}
	s.mu.Unlock()
	s.queue <- job

	s.log.Info("job recovered", "job_id", job.ID, "attempt", job.Attempt)
}

// process drives one job end-to-end. The job context is detached from the
// pool context so a shutdown drains in-flight work instead of aborting it;
// cancellation arrives through the entry's cancel func.
func (s *Scheduler) process(job *store.Job) {
	jctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.mu.Lock()
	entry, ok := s.live[job.ID]
	if !ok {
		entry = &jobEntry{}
		s.live[job.ID] = entry
	}
	alreadyCancelled := entry.cancelled
	entry.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.live, job.ID)
		s.mu.Unlock()
	}()

	lg := s.log.With("job_id", job.ID.String())

	if alreadyCancelled {
		s.finish(job, store.JobStateCancelled, errors.New("cancelled before start"), lg)
		return
	}

	// Exactly one working copy per in-flight job; gone on any terminal
	// outcome.
	dest := filepath.Join(s.cfg.WorkDir, job.ID.String())
	defer os.RemoveAll(dest)

	if !s.fetch(jctx, job, dest, lg) {
		return
	}

	if jctx.Err() != nil {
		s.finish(job, store.JobStateCancelled, jctx.Err(), lg)
		return
	}

	result, ok := s.runAnalysis(jctx, job, dest, lg)
	if !ok {
		return
	}

	s.storeResult(jctx, job, result, lg)
}

// fetch runs the retry loop around the fetcher. It returns false when the
// job reached a terminal state.
func (s *Scheduler) fetch(jctx context.Context, job *store.Job, dest string, lg *slog.Logger) bool {
	for {
		// Honor a persisted retry schedule, e.g. after a restart mid-backoff.
		if job.NextRetryAt != nil {
			if wait := time.Until(*job.NextRetryAt); wait > 0 {
				select {
				case <-jctx.Done():
					s.finish(job, store.JobStateCancelled, jctx.Err(), lg)
					return false
				case <-time.After(wait):
				}
			}
		}

		job.Attempt++
		job.NextRetryAt = nil
		if err := s.setState(job, store.JobStateFetching); err != nil {
			lg.Warn("failed to persist transition", "state", store.JobStateFetching, "error", err)
		}

		fctx, fcancel := context.WithTimeout(jctx, s.cfg.FetchTimeout)
		_, err := s.fetcher.Fetch(fctx, job.RepoURL, job.Revision, dest)
		fcancel()
		if err == nil {
			return true
		}

		if jctx.Err() != nil {
			s.finish(job, store.JobStateCancelled, err, lg)
			return false
		}

		if store.Retryable(err) && job.Attempt < job.MaxAttempts {
			backoff := s.cfg.Retry.Backoff(job.Attempt)
			next := time.Now().UTC().Add(backoff)
			job.NextRetryAt = &next
			msg := err.Error()
			job.LastError = &msg
			if perr := s.persist(job); perr != nil {
				lg.Warn("failed to persist retry schedule", "error", perr)
			}

			lg.Warn("fetch failed, retrying", "attempt", job.Attempt, "backoff", backoff, "error", err)
			select {
			case <-jctx.Done():
				s.finish(job, store.JobStateCancelled, jctx.Err(), lg)
				return false
			case <-time.After(backoff):
			}
			continue
		}

		s.finish(job, store.JobStateFailed, err, lg)
		return false
	}
}

// runAnalysis executes the analysis under its own deadline. A timeout is
// non-retryable: the killed run's outcome is ambiguous and must not pass
// for success.
func (s *Scheduler) runAnalysis(jctx context.Context, job *store.Job, dest string, lg *slog.Logger) (*store.AnalysisResult, bool) {
	if err := s.setState(job, store.JobStateRunning); err != nil {
		lg.Warn("failed to persist transition", "state", store.JobStateRunning, "error", err)
	}

	rctx, rcancel := context.WithTimeout(jctx, s.cfg.AnalysisTimeout)
	defer rcancel()

	result, err := s.runner.Run(rctx, dest, job.Analyses)
	if err != nil {
		if jctx.Err() != nil && rctx.Err() != context.DeadlineExceeded {
			s.finish(job, store.JobStateCancelled, err, lg)
			return nil, false
		}
		s.finish(job, store.JobStateFailed, err, lg)
		return nil, false
	}
	return result, true
}

// storeResult persists the result with bounded retries. Store errors are
// usually transient; if the bounded retries are exhausted the job fails
// with a persistence error.
func (s *Scheduler) storeResult(jctx context.Context, job *store.Job, result *store.AnalysisResult, lg *slog.Logger) {
	if jctx.Err() != nil {
		s.finish(job, store.JobStateCancelled, jctx.Err(), lg)
		return
	}
	if err := s.setState(job, store.JobStateStoring); err != nil {
		lg.Warn("failed to persist transition", "state", store.JobStateStoring, "error", err)
	}

	result.JobID = job.ID
	result.Attempt = job.Attempt
	result.CreatedAt = time.Now().UTC()

	var lastErr error
	for i := 1; i <= s.cfg.StoreAttempts; i++ {
		lastErr = s.store.UpsertResult(jctx, result)
		if lastErr == nil {
			// The upsert transaction cleared the retry bookkeeping; mirror
			// that so Status callers never see a stale error on success.
			job.State = store.JobStateSucceeded
			job.LastError = nil
			job.NextRetryAt = nil
			lg.Info("job succeeded", "attempt", job.Attempt, "passed", result.Passed, "findings", len(result.Findings))
			return
		}
		if jctx.Err() != nil {
			// Nothing committed: the upsert transaction rolled back.
			s.finish(job, store.JobStateCancelled, lastErr, lg)
			return
		}
		lg.Warn("result upsert failed", "attempt", i, "error", lastErr)
		if i < s.cfg.StoreAttempts {
			select {
			case <-jctx.Done():
				s.finish(job, store.JobStateCancelled, jctx.Err(), lg)
				return
			case <-time.After(s.cfg.Retry.Backoff(i)):
			}
		}
	}
	s.finish(job, store.JobStateFailed, store.NewPipelineError(store.KindPersistence, lastErr), lg)
}

// setState validates and persists a state transition.
func (s *Scheduler) setState(job *store.Job, to store.JobState) error {
	if job.State != to && !store.ValidTransition(job.State, to) {
		return fmt.Errorf("illegal transition %s -> %s", job.State, to)
	}
	job.State = to
	return s.persist(job)
}

// persist writes the job's current state with a background context so
// terminal outcomes survive job cancellation.
func (s *Scheduler) persist(job *store.Job) error {
	pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.store.SaveTransition(pctx, job)
}

// finish records a terminal state. Terminal outcomes are always persisted,
// even failures, so no job silently vanishes.
func (s *Scheduler) finish(job *store.Job, state store.JobState, cause error, lg *slog.Logger) {
	if cause != nil {
		msg := cause.Error()
		if state == store.JobStateFailed {
			msg = fmt.Sprintf("%s: %s", store.KindOf(cause), causeMessage(cause))
		}
		job.LastError = &msg
	}
	job.NextRetryAt = nil
	if err := s.setState(job, state); err != nil {
		lg.Error("failed to persist terminal state", "state", state, "error", err)
	}

	switch state {
	case store.JobStateCancelled:
		lg.Info("job cancelled", "attempt", job.Attempt)
	default:
		lg.Warn("job failed", "attempt", job.Attempt, "reason", store.KindOf(cause), "error", cause)
	}
}

// causeMessage unwraps the pipeline classification so the recorded error
// doesn't repeat the kind twice.
func causeMessage(err error) string {
	var pe *store.PipelineError
	if errors.As(err, &pe) && pe.Err != nil {
		return pe.Err.Error()
	}
	return err.Error()
}
