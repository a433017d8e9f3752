package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feedbacker/internal/scheduler"
	"feedbacker/internal/store"
	"feedbacker/pkg/api"

	"github.com/google/uuid"
)

type mockSched struct {
	submitID  uuid.UUID
	submitErr error
	lastSpec  scheduler.JobSpec

	job       *store.Job
	statusErr error

	cancelled bool
	depth     int
	accepting bool
}

func (m *mockSched) Submit(ctx context.Context, spec scheduler.JobSpec) (uuid.UUID, error) {
	m.lastSpec = spec
	if m.submitErr != nil {
		return uuid.Nil, m.submitErr
	}
	return m.submitID, nil
}

func (m *mockSched) Status(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.job, nil
}

func (m *mockSched) Cancel(id uuid.UUID) bool { return m.cancelled }
func (m *mockSched) QueueDepth() int          { return m.depth }
func (m *mockSched) Accepting() bool          { return m.accepting }

type mockStatsStore struct {
	result    *store.AnalysisResult
	resultErr error
	counts    map[store.JobState]int64
	countsErr error
	pingErr   error
}

func (m *mockStatsStore) UpsertResult(ctx context.Context, result *store.AnalysisResult) error {
	return nil
}

func (m *mockStatsStore) GetResult(ctx context.Context, jobID uuid.UUID) (*store.AnalysisResult, error) {
	if m.resultErr != nil {
		return nil, m.resultErr
	}
	return m.result, nil
}

func (m *mockStatsStore) CountJobsByState(ctx context.Context) (map[store.JobState]int64, error) {
	return m.counts, m.countsErr
}

func (m *mockStatsStore) Ping(ctx context.Context) error { return m.pingErr }

func TestSubmitJob(t *testing.T) {
	validBody, _ := json.Marshal(api.SubmitJobRequest{
		RepoURL:  "git@example.com:acme/service.git",
		Revision: "deadbeef",
		Analyses: []string{"secrets"},
	})

	tests := []struct {
		name           string
		body           []byte
		mockSetup      func(*mockSched)
		expectedStatus int
		expectedInBody string
	}{
		{
			name:           "Success",
			body:           validBody,
			mockSetup:      func(m *mockSched) { m.submitID = uuid.New() },
			expectedStatus: http.StatusAccepted,
			expectedInBody: "job_id",
		},
		{
			name:           "Invalid JSON",
			body:           []byte(`{invalid-json}`),
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "Invalid request body",
		},
		{
			name:           "Missing Required Fields",
			body:           []byte(`{"repo_url": ""}`),
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "repo_url and revision are required",
		},
		{
			name:           "Unknown Analysis",
			body:           []byte(`{"repo_url": "git@h:r.git", "revision": "main", "analyses": ["mystery"]}`),
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "Unknown analysis kind",
		},
		{
			name:           "Queue Full",
			body:           validBody,
			mockSetup:      func(m *mockSched) { m.submitErr = store.ErrOverloaded },
			expectedStatus: http.StatusServiceUnavailable,
			expectedInBody: "Queue is full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockSched{}
			if tt.mockSetup != nil {
				tt.mockSetup(mock)
			}
			h := New(mock, &mockStatsStore{})

			req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.SubmitJob(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.expectedInBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedInBody, rec.Body.String())
			}
		})
	}
}

func TestGetJob(t *testing.T) {
	jobID := uuid.New()
	now := time.Now().UTC()

	succeeded := &store.Job{
		ID:        jobID,
		RepoURL:   "git@example.com:acme/service.git",
		Revision:  "main",
		Analyses:  []store.AnalysisKind{store.AnalysisSecrets},
		State:     store.JobStateSucceeded,
		Attempt:   1,
		CreatedAt: now,
	}

	tests := []struct {
		name           string
		id             string
		sched          *mockSched
		statsStore     *mockStatsStore
		expectedStatus int
		expectedInBody string
	}{
		{
			name:  "Succeeded Job Includes Result",
			id:    jobID.String(),
			sched: &mockSched{job: succeeded},
			statsStore: &mockStatsStore{result: &store.AnalysisResult{
				JobID:   jobID,
				Attempt: 1,
				Passed:  false,
				Findings: []store.Finding{
					{Severity: store.SeverityError, RuleID: "aws-access-token", Message: "AWS key", File: "cfg.go", Line: 3},
				},
				CreatedAt: now,
			}},
			expectedStatus: http.StatusOK,
			expectedInBody: "aws-access-token",
		},
		{
			name: "Running Job Has No Result",
			id:   jobID.String(),
			sched: &mockSched{job: &store.Job{
				ID: jobID, State: store.JobStateRunning, CreatedAt: now,
			}},
			statsStore:     &mockStatsStore{},
			expectedStatus: http.StatusOK,
			expectedInBody: `"state":"running"`,
		},
		{
			name:           "Invalid ID",
			id:             "not-a-uuid",
			sched:          &mockSched{},
			statsStore:     &mockStatsStore{},
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "Invalid job id",
		},
		{
			name:           "Not Found",
			id:             uuid.New().String(),
			sched:          &mockSched{statusErr: store.ErrNotFound},
			statsStore:     &mockStatsStore{},
			expectedStatus: http.StatusNotFound,
			expectedInBody: "Job not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.sched, tt.statsStore)

			req := httptest.NewRequest(http.MethodGet, "/jobs/"+tt.id, nil)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()
			h.GetJob(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.expectedInBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedInBody, rec.Body.String())
			}
		})
	}
}

func TestCancelJob(t *testing.T) {
	jobID := uuid.New()

	tests := []struct {
		name           string
		id             string
		sched          *mockSched
		expectedStatus int
		expectedInBody string
	}{
		{
			name:           "Cancels Live Job",
			id:             jobID.String(),
			sched:          &mockSched{cancelled: true},
			expectedStatus: http.StatusAccepted,
			expectedInBody: "cancelling",
		},
		{
			name: "Already Finished",
			id:   jobID.String(),
			sched: &mockSched{job: &store.Job{
				ID: jobID, State: store.JobStateSucceeded,
			}},
			expectedStatus: http.StatusConflict,
			expectedInBody: "already finished",
		},
		{
			name:           "Unknown Job",
			id:             jobID.String(),
			sched:          &mockSched{statusErr: store.ErrNotFound},
			expectedStatus: http.StatusNotFound,
			expectedInBody: "Job not found",
		},
		{
			name:           "Invalid ID",
			id:             "nope",
			sched:          &mockSched{},
			expectedStatus: http.StatusBadRequest,
			expectedInBody: "Invalid job id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.sched, &mockStatsStore{})

			req := httptest.NewRequest(http.MethodDelete, "/jobs/"+tt.id, nil)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()
			h.CancelJob(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.expectedInBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedInBody, rec.Body.String())
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	sched := &mockSched{depth: 3, accepting: true}
	st := &mockStatsStore{counts: map[store.JobState]int64{
		store.JobStateSucceeded: 10,
		store.JobStateFailed:    2,
	}}
	h := New(sched, st)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.GetStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp api.StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Jobs["succeeded"] != 10 || resp.Jobs["failed"] != 2 {
		t.Errorf("unexpected job counts: %+v", resp.Jobs)
	}
	if resp.QueueDepth != 3 || !resp.Accepting {
		t.Errorf("unexpected queue stats: %+v", resp)
	}
}

func TestPushWebhook(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		sched          *mockSched
		expectedStatus int
	}{
		{
			name:           "Push Submits Job",
			body:           `{"repository": {"ssh_url": "git@example.com:acme/service.git"}, "after": "deadbeef"}`,
			sched:          &mockSched{submitID: uuid.New()},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "Branch Deletion Ignored",
			body:           `{"repository": {"ssh_url": "git@example.com:acme/service.git"}, "after": "0000", "deleted": true}`,
			sched:          &mockSched{},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "Missing Revision",
			body:           `{"repository": {"ssh_url": "git@example.com:acme/service.git"}}`,
			sched:          &mockSched{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Queue Full",
			body:           `{"repository": {"ssh_url": "git@example.com:acme/service.git"}, "after": "deadbeef"}`,
			sched:          &mockSched{submitErr: store.ErrOverloaded},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.sched, &mockStatsStore{})

			req := httptest.NewRequest(http.MethodPost, "/webhooks/push", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.PushWebhook(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
		})
	}

	t.Run("Push Uses Default Analyses", func(t *testing.T) {
		sched := &mockSched{submitID: uuid.New()}
		h := New(sched, &mockStatsStore{})

		body := `{"repository": {"ssh_url": "git@example.com:acme/service.git"}, "after": "deadbeef"}`
		req := httptest.NewRequest(http.MethodPost, "/webhooks/push", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.PushWebhook(rec, req)

		if len(sched.lastSpec.Analyses) != 0 {
			t.Errorf("webhook should leave analysis selection to the server default, got %v", sched.lastSpec.Analyses)
		}
		if sched.lastSpec.Revision != "deadbeef" {
			t.Errorf("expected pushed revision, got %q", sched.lastSpec.Revision)
		}
	})
}
