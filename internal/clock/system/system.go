// Package system provides the wall clock used for task timestamps.
package system

import "time"

// Clock returns UTC time truncated to microseconds, the resolution
// Postgres timestamptz keeps, so stored and in-memory tasks compare equal.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
