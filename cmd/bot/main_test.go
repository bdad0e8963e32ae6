package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/moderation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockModerator is a mock implementation of Moderator
type MockModerator struct {
	mock.Mock
}

func (m *MockModerator) RunModeration(ctx context.Context) (*models.RunReport, error) {
	args := m.Called()
	report, _ := args.Get(0).(*models.RunReport)
	return report, args.Error(1)
}

func (m *MockModerator) GetMetrics() string {
	return m.Called().String(0)
}

func (m *MockModerator) LatestReport(ctx context.Context) (*models.RunReport, error) {
	args := m.Called()
	report, _ := args.Get(0).(*models.RunReport)
	return report, args.Error(1)
}

func serve(t *testing.T, m Moderator, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	newRouter(context.Background(), m).ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, new(MockModerator), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestStatus(t *testing.T) {
	m := new(MockModerator)
	m.On("GetMetrics").Return(`{"running":false}`)

	rec := serve(t, m, http.MethodGet, "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"running":false}`, rec.Body.String())
}

func TestPrometheusMetrics(t *testing.T) {
	rec := serve(t, new(MockModerator), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "modbot_community_failures_total")
}

func TestLatestRun(t *testing.T) {
	t.Run("no run yet", func(t *testing.T) {
		m := new(MockModerator)
		m.On("LatestReport").Return(nil, nil)

		rec := serve(t, m, http.MethodGet, "/runs/latest")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("latest report", func(t *testing.T) {
		m := new(MockModerator)
		m.On("LatestReport").Return(&models.RunReport{TotalActions: 4, StartedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}, nil)

		rec := serve(t, m, http.MethodGet, "/runs/latest")
		require.Equal(t, http.StatusOK, rec.Code)

		var report models.RunReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, 4, report.TotalActions)
	})
}

func TestTrigger(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		m := new(MockModerator)
		m.On("RunModeration").Return(&models.RunReport{}, nil)

		rec := serve(t, m, http.MethodPost, "/trigger")
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("already running", func(t *testing.T) {
		m := new(MockModerator)
		m.On("RunModeration").Return(nil, moderation.ErrRunInProgress)

		rec := serve(t, m, http.MethodPost, "/trigger")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("get is not allowed", func(t *testing.T) {
		rec := serve(t, new(MockModerator), http.MethodGet, "/trigger")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
