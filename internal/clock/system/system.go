// Package system provides a wall-clock time source whose Now reports the
// current time in UTC.
package system

import "time"

// Clock implements a Now() source using the real wall clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
