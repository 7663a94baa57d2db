// Package system provides a wall clock pinned to the pipeline's home time zone.
package system

import "time"

// Clock implements contest.Clock. Run dates for expiry pruning are taken in loc.
type Clock struct {
	loc *time.Location
}

// New creates a Clock for the named IANA zone, falling back to UTC when the zone
// database cannot resolve it.
func New(zone string) *Clock {
	loc := time.UTC
	if zone != "" {
		if l, err := time.LoadLocation(zone); err == nil {
			loc = l
		}
	}
	return &Clock{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	if c == nil || c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}

// Location reports the zone the clock was built with.
func (c *Clock) Location() *time.Location {
	if c == nil || c.loc == nil {
		return time.UTC
	}
	return c.loc
}
