package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	h := New(&mockSched{}, &mockStatsStore{})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name           string
		sched          *mockSched
		statsStore     *mockStatsStore
		expectedStatus int
	}{
		{
			name:           "Ready",
			sched:          &mockSched{accepting: true},
			statsStore:     &mockStatsStore{},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Database Down",
			sched:          &mockSched{accepting: true},
			statsStore:     &mockStatsStore{pingErr: errors.New("connection refused")},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "Scheduler Draining",
			sched:          &mockSched{accepting: false},
			statsStore:     &mockStatsStore{},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.sched, tt.statsStore)

			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
		})
	}
}
