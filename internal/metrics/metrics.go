// Package metrics exposes Prometheus collectors for the ingest pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal                 *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	sourceRunsTotal            *prometheus.CounterVec
	sourceRecordsTotal         *prometheus.CounterVec
	sourceDurationSeconds      *prometheus.HistogramVec
	mergeRecordsTotal          *prometheus.CounterVec
	enrichEntriesTotal         *prometheus.CounterVec
	modelCallsTotal            *prometheus.CounterVec
	modelCallDurationSeconds   prometheus.Histogram
	checkpointsTotal           prometheus.Counter
	bridgeRecordsTotal         *prometheus.CounterVec
	pipelineRunsTotal          *prometheus.CounterVec
	lastRunTimestamp           prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestpipe_fetch_total",
				Help: "Total number of page and poster fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)
		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestpipe_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)
		sourceRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestpipe_source_runs_total",
				Help: "Source adapter executions, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)
		sourceRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestpipe_source_records_total",
				Help: "Records collected from sources, labeled by source and kind.",
			},
			[]string{"source", "kind"},
		)
		sourceDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contestpipe_source_duration_seconds",
				Help:    "Wall-clock duration of source adapter executions.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"source"},
		)
		mergeRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestpipe_merge_records_total",
				Help: "Merge engine decisions, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		enrichEntriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestpipe_enrich_entries_total",
				Help: "Catalog entries enriched, labeled by terminal state.",
			},
			[]string{"state"},
		)
		modelCallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestpipe_model_calls_total",
				Help: "Vision model invocations, labeled by result.",
			},
			[]string{"result"},
		)
		modelCallDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "contestpipe_model_call_duration_seconds",
				Help:    "Latency of vision model invocations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)
		checkpointsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "contestpipe_checkpoints_total",
				Help: "Enrichment checkpoints written.",
			},
		)
		bridgeRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestpipe_bridge_records_total",
				Help: "Records handed to the persistence bridge, labeled by result.",
			},
			[]string{"result"},
		)
		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contestpipe_runs_total",
				Help: "Pipeline runs, labeled by status.",
			},
			[]string{"status"},
		)
		lastRunTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "contestpipe_last_run_timestamp_seconds",
				Help: "Unix time at which the last pipeline run finished.",
			},
		)
		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contestpipe_rate_limit_delays_seconds",
				Help:    "Histogram of per-host politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one page or poster fetch.
func ObserveFetch(site string, status string, bytesFetched int) {
	Init()
	sanitized := SanitizeSite(site)
	fetchTotal.WithLabelValues(sanitized, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveSource records one source execution and its yield.
func ObserveSource(source, outcome string, accepted, excluded int, duration time.Duration) {
	Init()
	sourceRunsTotal.WithLabelValues(source, outcome).Inc()
	sourceRecordsTotal.WithLabelValues(source, "accepted").Add(float64(accepted))
	sourceRecordsTotal.WithLabelValues(source, "excluded").Add(float64(excluded))
	sourceDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveMerge adds n decisions of the given outcome.
func ObserveMerge(outcome string, n int) {
	Init()
	if n > 0 {
		mergeRecordsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveEnrichment records an entry reaching a terminal state.
func ObserveEnrichment(state string) {
	Init()
	enrichEntriesTotal.WithLabelValues(state).Inc()
}

// ObserveModelCall records one vision model invocation.
func ObserveModelCall(result string, duration time.Duration) {
	Init()
	modelCallsTotal.WithLabelValues(result).Inc()
	modelCallDurationSeconds.Observe(duration.Seconds())
}

// ObserveCheckpoint counts a checkpoint write.
func ObserveCheckpoint() {
	Init()
	checkpointsTotal.Inc()
}

// ObserveBridge records bridge upsert results.
func ObserveBridge(inserted, skipped int) {
	Init()
	bridgeRecordsTotal.WithLabelValues("inserted").Add(float64(inserted))
	bridgeRecordsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveRun records a finished pipeline run.
func ObserveRun(status string, finished time.Time) {
	Init()
	pipelineRunsTotal.WithLabelValues(status).Inc()
	lastRunTimestamp.Set(float64(finished.Unix()))
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the ops server request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
