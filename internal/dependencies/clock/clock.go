// Package clock abstracts wall time so reconciliation timestamps can be
// controlled in tests.
package clock

import "time"

// Clock reports the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system clock in UTC
type SystemClock struct{}

// New creates a new SystemClock
func New() SystemClock {
	return SystemClock{}
}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
