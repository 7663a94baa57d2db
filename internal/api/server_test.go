package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/app"
	"github.com/contestlab/contest-pipeline/internal/orchestrator"
)

type fakeRuns struct {
	latest   *app.Summary
	readyErr error
}

func (f *fakeRuns) Latest() (app.Summary, bool) {
	if f.latest == nil {
		return app.Summary{}, false
	}
	return *f.latest, true
}

func (f *fakeRuns) Ready(context.Context) error {
	return f.readyErr
}

func serve(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(&fakeRuns{}, nil, zap.NewNop()), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(&fakeRuns{}, nil, nil), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, NewServer(&fakeRuns{readyErr: errors.New("data dir: missing")}, nil, nil), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "data dir")
}

func TestServer_MetricsExposesPipelineCollectors(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRuns{}, nil, nil)
	_ = serve(t, s, http.MethodGet, "/healthz")
	rec := serve(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_LatestRun(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{}
	s := NewServer(runs, nil, nil)
	require.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/v1/runs/latest").Code)

	runs.latest = &app.Summary{
		RunID:     "0190b6d2-0000-7000-8000-000000000001",
		Status:    app.StatusDegraded,
		StartedAt: time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC),
		Sources: []orchestrator.SourceOutcome{
			{Source: "thinkyou", Outcome: orchestrator.OutcomeOK, Accepted: 5},
			{Source: "linkareer", Outcome: orchestrator.OutcomeTimeout},
		},
		Inserted: 4,
	}
	rec := serve(t, s, http.MethodGet, "/v1/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var got app.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, runs.latest.RunID, got.RunID)
	assert.Equal(t, app.StatusDegraded, got.Status)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, orchestrator.OutcomeTimeout, got.Sources[1].Outcome)
}

func TestServer_StartRun(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusNotImplemented, serve(t, NewServer(&fakeRuns{}, nil, nil), http.MethodPost, "/v1/runs").Code)

	busy := false
	s := NewServer(&fakeRuns{}, func() bool {
		if busy {
			return false
		}
		busy = true
		return true
	}, nil)
	require.Equal(t, http.StatusAccepted, serve(t, s, http.MethodPost, "/v1/runs").Code)
	require.Equal(t, http.StatusConflict, serve(t, s, http.MethodPost, "/v1/runs").Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRuns{}, func() bool { panic("boom") }, nil)
	rec := serve(t, s, http.MethodPost, "/v1/runs")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "internal server error"))
}

func TestServer_KeepsIncomingRequestID(t *testing.T) {
	t.Parallel()

	s := NewServer(&fakeRuns{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func TestResponseWriterHijack(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.Error(t, err)

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, _, err := rw.Hijack()
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, h.client.Close())
}
