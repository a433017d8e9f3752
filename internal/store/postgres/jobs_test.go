package postgres

import (
	"context"
	"testing"
	"time"

	"feedbacker/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestCreateJob_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	job := &store.Job{
		ID:          uuid.New(),
		RepoURL:     "git@example.com:acme/service.git",
		Revision:    "main",
		Analyses:    []store.AnalysisKind{store.AnalysisSecrets},
		State:       store.JobStatePending,
		MaxAttempts: 3,
		CreatedAt:   time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(job.ID, job.RepoURL, job.Revision, sqlmock.AnyArg(),
			job.State, 0, 3, job.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetJob_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	created := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "repo_url", "revision", "analyses", "state", "attempt",
		"max_attempts", "next_retry_at", "last_error", "created_at",
		"started_at", "finished_at",
	}).AddRow(id, "git@example.com:acme/service.git", "abc123",
		[]byte(`{secrets,command}`), "fetching", 1, 3, nil, nil, created, nil, nil)

	mock.ExpectQuery(`SELECT (.+) FROM jobs`).
		WithArgs(id).
		WillReturnRows(rows)

	job, err := s.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.State != store.JobStateFetching {
		t.Errorf("got state %q, want fetching", job.State)
	}
	if len(job.Analyses) != 2 || job.Analyses[0] != store.AnalysisSecrets {
		t.Errorf("unexpected analyses: %v", job.Analyses)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM jobs`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetJob(context.Background(), id)
	if err != store.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestSaveTransition_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	job := &store.Job{
		ID:      uuid.New(),
		State:   store.JobStateRunning,
		Attempt: 1,
	}

	mock.ExpectExec(`UPDATE jobs`).
		WithArgs(job.ID, job.State, 1, nil, nil, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.SaveTransition(context.Background(), job); err != nil {
		t.Fatalf("SaveTransition failed: %v", err)
	}
}

func TestSaveTransition_MissingJob(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	job := &store.Job{ID: uuid.New(), State: store.JobStateFailed, Attempt: 3}

	mock.ExpectExec(`UPDATE jobs`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.SaveTransition(context.Background(), job); err != store.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestCountJobsByState(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	rows := sqlmock.NewRows([]string{"state", "count"}).
		AddRow("pending", 2).
		AddRow("succeeded", 5)

	mock.ExpectQuery(`SELECT state, COUNT`).WillReturnRows(rows)

	counts, err := s.CountJobsByState(context.Background())
	if err != nil {
		t.Fatalf("CountJobsByState failed: %v", err)
	}
	if counts[store.JobStatePending] != 2 || counts[store.JobStateSucceeded] != 5 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
