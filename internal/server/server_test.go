package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hobbylog/gunpla-scraper/internal/metrics"
)

func newTestServer() (*Server, *Tracker) {
	tracker := NewTracker("run-1")
	m := metrics.New()
	return New("0", tracker, m.Registry), tracker
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestStatus(t *testing.T) {
	srv, tracker := newTestServer()
	tracker.Update(GroupStatus{
		Group:        "HG",
		State:        "checkpoint_hit",
		PagesVisited: 3,
		Emitted:      12,
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var snap struct {
		RunID  string                 `json:"runId"`
		Groups map[string]GroupStatus `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))

	assert.Equal(t, "run-1", snap.RunID)
	require.Contains(t, snap.Groups, "HG")
	assert.Equal(t, 12, snap.Groups["HG"].Emitted)
	assert.False(t, snap.Groups["HG"].UpdatedAt.IsZero())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
