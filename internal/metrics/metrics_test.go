package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchTotal == nil || mergeRecordsTotal == nil || enrichEntriesTotal == nil || bridgeRecordsTotal == nil {
		t.Fatal("Init() did not initialize collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(mergeRecordsTotal.WithLabelValues("duplicate-in-new"))
	ObserveMerge("duplicate-in-new", 2)
	ObserveMerge("duplicate-in-new", 0)
	if got := testutil.ToFloat64(mergeRecordsTotal.WithLabelValues("duplicate-in-new")); got != before+2 {
		t.Errorf("expected merge counter to grow by 2, got %f -> %f", before, got)
	}

	ObserveSource("test-source", "ok", 3, 1, time.Second)
	if got := testutil.ToFloat64(sourceRecordsTotal.WithLabelValues("test-source", "accepted")); got != 3 {
		t.Errorf("expected 3 accepted records, got %f", got)
	}

	ObserveBridge(1, 4)
	if got := testutil.ToFloat64(bridgeRecordsTotal.WithLabelValues("skipped")); got < 4 {
		t.Errorf("expected skipped >= 4, got %f", got)
	}

	finished := time.Unix(1700000000, 0)
	ObserveRun("succeeded", finished)
	if got := testutil.ToFloat64(lastRunTimestamp); got != 1700000000 {
		t.Errorf("expected last run timestamp to be set, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://linkareer.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned empty string", orig)
		}
	})
}
