package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func durationSamples(t *testing.T, method, route string) uint64 {
	t.Helper()
	var m dto.Metric
	obs, ok := httpRequestDurationSeconds.WithLabelValues(method, route).(prometheus.Metric)
	require.True(t, ok)
	require.NoError(t, obs.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	t.Parallel()
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Put("/runs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPut, "202"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/runs/"+id, nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPut, "202")))
	assert.Equal(t, uint64(2), durationSamples(t, http.MethodPut, "/runs/{id}"))
}

func TestMiddlewareWithoutRouterUsesUnknownRoute(t *testing.T) {
	t.Parallel()
	Init()

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPatch, "418"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/anything", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPatch, "418")))
	assert.Equal(t, uint64(1), durationSamples(t, http.MethodPatch, "unknown"))
}

func TestMiddlewareDefaultsToOK(t *testing.T) {
	t.Parallel()
	Init()

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("fine"))
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodOptions, "200"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodOptions, "200")))
}
