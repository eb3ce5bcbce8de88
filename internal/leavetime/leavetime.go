// Package leavetime holds the pure leave-by arithmetic. Everything here is
// a total function of its arguments; no clocks, no I/O.
package leavetime

import "time"

// LeaveBy computes the departure deadline for an event starting at start:
// start minus drive time minus buffer.
func LeaveBy(start time.Time, driveMinutes, bufferMinutes int) time.Time {
	return start.Add(-time.Duration(driveMinutes+bufferMinutes) * time.Minute)
}

// ShouldLeaveNow reports whether now is inside the departure window
// [leaveBy, start). It is false exactly at start: once the event has begun
// there is no point telling the user to leave.
func ShouldLeaveNow(now, leaveBy, start time.Time) bool {
	return !now.Before(leaveBy) && now.Before(start)
}

// MinutesUntil returns whole minutes from now until t, truncated toward
// zero. Negative once t has passed.
func MinutesUntil(now, t time.Time) int {
	return int(t.Sub(now) / time.Minute)
}
