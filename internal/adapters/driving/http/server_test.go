package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/voxstitch/internal/core/domain"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type staticJobs []domain.ImportJob

func (j staticJobs) Running() []domain.ImportJob { return j }

func newTestServer(checks map[string]Pinger, jobs JobLister) *Server {
	runtime := domain.NewRuntimeConfig("sqlite", "memory")
	runtime.SetAvailable(domain.CapabilityTranscription, true)
	return NewServer(Config{Version: "1.2.3"}, runtime, jobs, checks)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthHandler(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestVersionHandler(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/version")
	assert.JSONEq(t, `{"version":"1.2.3"}`, rec.Body.String())
}

func TestReadyHandler(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := get(t, newTestServer(map[string]Pinger{"store": ok, "lock": ok}, nil), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, newTestServer(map[string]Pinger{"store": ok, "lock": down}, nil), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unavailable", resp.Status)
	assert.Equal(t, "ok", resp.Checks["store"])
	assert.Equal(t, "connection refused", resp.Checks["lock"])
}

func TestCapabilitiesHandler(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/capabilities")

	var caps domain.Capabilities
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &caps))
	assert.Equal(t, "sqlite", caps.StoreBackend)
	assert.True(t, caps.Transcription)
	assert.False(t, caps.Vision)
}

func TestRunningImportsHandler(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := staticJobs{{Fingerprint: "abc", State: domain.JobRunning, StartedAt: started}}

	rec := get(t, newTestServer(nil, jobs), "/imports/running")

	var out []RunningImport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "abc", out[0].Fingerprint)
	assert.Equal(t, "running", out[0].State)
	assert.True(t, started.Equal(out[0].StartedAt))

	rec = get(t, newTestServer(nil, nil), "/imports/running")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRecoverPanics(t *testing.T) {
	s := newTestServer(nil, nil)
	s.router.Get("/boom", func(w http.ResponseWriter, r *http.Request) { panic("boom") })

	rec := get(t, s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	rec := get(t, newTestServer(nil, nil), "/api/v1/anything")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
