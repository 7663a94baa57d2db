package contest

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006.01.02",
	"2006/01/02",
	"2006 01 02",
	"2006년 01월 02일",
	"2006년01월02일",
	"2006.1.2",
	"2006-1-2",
}

// ParseDate parses a contest date in any of the layouts seen on listing sites.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if !present(raw) {
		return time.Time{}, false
	}
	raw = strings.TrimSuffix(raw, ".")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Expired reports whether the end date parses and falls strictly before day.
// Unparseable or missing end dates are never expired.
func Expired(endDate string, day time.Time) bool {
	end, ok := ParseDate(endDate)
	if !ok {
		return false
	}
	y, m, d := day.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return end.Before(today)
}

// SplitDateRange splits "start ~ end" into its two halves. Missing halves are N/A.
func SplitDateRange(raw string) (string, string) {
	parts := strings.SplitN(raw, "~", 2)
	start := strings.TrimSpace(parts[0])
	end := NotAvailable
	if len(parts) == 2 {
		end = strings.TrimSpace(parts[1])
	}
	if start == "" {
		start = NotAvailable
	}
	if end == "" {
		end = NotAvailable
	}
	return start, end
}
