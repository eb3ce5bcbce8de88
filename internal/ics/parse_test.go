package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:meeting-1@example.com
DTSTART:20260601T090000Z
DTEND:20260601T100000Z
SUMMARY:Planning
LOCATION:12 Harbor St
ATTENDEE:mailto:alice@example.com
ATTENDEE:mailto:bob@example.com
END:VEVENT
BEGIN:VEVENT
UID:holiday-1@example.com
DTSTART;VALUE=DATE:20260602
DTEND;VALUE=DATE:20260603
SUMMARY:Holiday
END:VEVENT
END:VCALENDAR
`

func TestParseICSBasics(t *testing.T) {
	src := Source{ID: "test", URL: "https://example.com/cal.ics"}
	events, err := ParseICS(src, []byte(simpleICS))
	require.NoError(t, err)
	require.Len(t, events, 2)

	timed := events[0]
	assert.Equal(t, "meeting-1@example.com", timed.UID)
	assert.Equal(t, "Planning", timed.Summary)
	assert.Equal(t, "12 Harbor St", timed.Location)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, timed.Attendees)
	assert.False(t, timed.AllDay)
	assert.True(t, timed.Start.Equal(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)))

	allDay := events[1]
	assert.True(t, allDay.AllDay, "VALUE=DATE must mark the event all-day")
	assert.Empty(t, allDay.Location)
}

func TestParseICSEmptyBody(t *testing.T) {
	_, err := ParseICS(Source{ID: "x"}, nil)
	assert.Error(t, err)
}

const recurringICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:standup@example.com
DTSTART:20260601T090000Z
DTEND:20260601T091500Z
SUMMARY:Standup
RRULE:FREQ=DAILY;COUNT=10
EXDATE:20260603T090000Z
END:VEVENT
END:VCALENDAR
`

func TestParseICSRecurrenceFields(t *testing.T) {
	events, err := ParseICS(Source{ID: "test"}, []byte(recurringICS))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "FREQ=DAILY;COUNT=10", ev.RawRRule)
	require.Len(t, ev.ExDates, 1)
	assert.True(t, ev.ExDates[0].Equal(time.Date(2026, 6, 3, 9, 0, 0, 0, time.UTC)))
	assert.False(t, ev.IsOverride)
}
