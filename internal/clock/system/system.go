// Package system provides the wall clock used to date archived pages.
package system

import "time"

// Clock implements storage.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC so archive dates do not depend on the host zone.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
