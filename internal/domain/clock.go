package domain

import "time"

// Clock provides the current time. The OTP store, the rate limiters and the
// backends take a Clock so expiry can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

var _ Clock = RealClock{}

// OTP timestamps are persisted as UTC epoch milliseconds in every backend.

// ToMillis converts t to epoch milliseconds.
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// NowUTCMillis returns c's current time as epoch milliseconds.
func NowUTCMillis(c Clock) int64 {
	return ToMillis(c.Now())
}

// FromMillis converts epoch milliseconds back to a UTC time with no
// monotonic reading, so it compares equal to a decoded record's timestamps.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
