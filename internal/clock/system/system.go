// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements discovery.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Stamp formats t as the minute-resolution suffix used for export directories.
func Stamp(t time.Time) string {
	return t.Format("200601021504")
}
