package model

import (
	"time"

	"leavetimed/internal/leavetime"
)

// RawEvent is a single concrete calendar event instance as produced by the
// calendar-fetch side (after recurrence expansion and timezone
// normalization). It is immutable once received; the engine never writes
// back to it.
type RawEvent struct {
	// ID uniquely and stably identifies this instance. For recurring events
	// it is derived from UID plus the instance start time, so two
	// occurrences of the same series never collide.
	ID       string
	SourceID string

	Title    string
	Location string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time

	Attendees []string
}

// EnrichedEvent is a calendar event augmented with travel-time data,
// suitable for persistence and display. Leave-by and the related booleans
// are derived on read, never stored, so a buffer change only requires
// re-deriving from the persisted snapshot.
type EnrichedEvent struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
	AllDay   bool   `json:"all_day"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// DriveTimeMinutes is nil when the event has no location or travel time
	// could not be computed this run.
	DriveTimeMinutes *int `json:"drive_time_minutes,omitempty"`
	BufferMinutes    int  `json:"buffer_minutes"`
}

// LeaveBy returns the leave-by timestamp, or nil when no drive time is
// known for this event.
func (e EnrichedEvent) LeaveBy() *time.Time {
	if e.DriveTimeMinutes == nil {
		return nil
	}
	t := leavetime.LeaveBy(e.Start, *e.DriveTimeMinutes, e.BufferMinutes)
	return &t
}

// MinutesUntilLeave returns whole minutes from now until the leave-by time
// (negative once it has passed). ok is false when no leave-by exists.
func (e EnrichedEvent) MinutesUntilLeave(now time.Time) (minutes int, ok bool) {
	lb := e.LeaveBy()
	if lb == nil {
		return 0, false
	}
	return leavetime.MinutesUntil(now, *lb), true
}

// ShouldLeaveNow reports whether now falls in [leaveBy, Start). Always
// false for events without a leave-by time.
func (e EnrichedEvent) ShouldLeaveNow(now time.Time) bool {
	lb := e.LeaveBy()
	if lb == nil {
		return false
	}
	return leavetime.ShouldLeaveNow(now, *lb, e.Start)
}

func (e EnrichedEvent) HasStarted(now time.Time) bool {
	return !now.Before(e.Start)
}

func (e EnrichedEvent) HasEnded(now time.Time) bool {
	return !now.Before(e.End)
}

// Snapshot is the persisted enriched-event set plus its write time. It is
// replaced wholesale on every engine run; readers use WrittenAt to decide
// whether the data is still trustworthy.
type Snapshot struct {
	Events    []EnrichedEvent `json:"events"`
	WrittenAt time.Time       `json:"written_at"`
}

// Age returns how old the snapshot is at the given instant.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.WrittenAt)
}
