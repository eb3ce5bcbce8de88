package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leavetimed/internal/model"
)

func fixedGenerator(now time.Time) *Generator {
	g := NewGenerator()
	g.now = func() time.Time { return now }
	return g
}

func located(id string, start time.Time, driveMin int) model.EnrichedEvent {
	return model.EnrichedEvent{
		ID: id, Title: id, Location: "somewhere",
		Start: start, End: start.Add(time.Hour),
		DriveTimeMinutes: &driveMin, BufferMinutes: 10,
	}
}

func unlocated(id string, start time.Time) model.EnrichedEvent {
	return model.EnrichedEvent{
		ID: id, Title: id,
		Start: start, End: start.Add(time.Hour),
		BufferMinutes: 10,
	}
}

func TestNilSnapshotYieldsNoData(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	res := fixedGenerator(now).Generate(nil)

	require.Len(t, res.Entries, 1)
	assert.Equal(t, StateNoData, res.Entries[0].State)
	assert.True(t, res.Entries[0].Timestamp.Equal(now))
	assert.True(t, res.NextRegen.Equal(now.Add(time.Hour)))
}

func TestStaleSnapshotYieldsNoData(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	snap := &model.Snapshot{
		Events:    []model.EnrichedEvent{unlocated("e", now.Add(time.Hour))},
		WrittenAt: now.Add(-25 * time.Hour),
	}

	res := fixedGenerator(now).Generate(snap)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, StateNoData, res.Entries[0].State)
}

func TestEmptySnapshotYieldsNoUpcoming(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	snap := &model.Snapshot{Events: nil, WrittenAt: now}

	res := fixedGenerator(now).Generate(snap)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, StateNoUpcoming, res.Entries[0].State)
	assert.True(t, res.NextRegen.Equal(now.Add(time.Hour)))
}

func TestAllEventsEndedYieldsNoUpcoming(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	snap := &model.Snapshot{
		Events:    []model.EnrichedEvent{unlocated("done", now.Add(-3 * time.Hour))},
		WrittenAt: now,
	}

	res := fixedGenerator(now).Generate(snap)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, StateNoUpcoming, res.Entries[0].State)
}

// One upcoming located event with a future leave-by produces exactly
// upcoming -> leave-now -> event-started.
func TestSingleLocatedEvent(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	start := now.Add(2 * time.Hour)
	ev := located("meeting", start, 30) // leave-by = start - 40m

	res := fixedGenerator(now).Generate(&model.Snapshot{
		Events: []model.EnrichedEvent{ev}, WrittenAt: now,
	})

	require.Len(t, res.Entries, 3)
	assert.Equal(t, StateUpcoming, res.Entries[0].State)
	assert.True(t, res.Entries[0].Timestamp.Equal(now))
	assert.Equal(t, StateLeaveNow, res.Entries[1].State)
	assert.True(t, res.Entries[1].Timestamp.Equal(start.Add(-40*time.Minute)))
	assert.Equal(t, StateEventStarted, res.Entries[2].State)
	assert.True(t, res.Entries[2].Timestamp.Equal(start))

	assert.True(t, res.Entries[1].Timestamp.Before(res.Entries[2].Timestamp))
	assert.True(t, res.NextRegen.Equal(start.Add(time.Second)))
}

// An event without a location never produces a leave-now transition.
func TestSingleUnlocatedEvent(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	start := now.Add(2 * time.Hour)

	res := fixedGenerator(now).Generate(&model.Snapshot{
		Events: []model.EnrichedEvent{unlocated("call", start)}, WrittenAt: now,
	})

	require.Len(t, res.Entries, 2)
	assert.Equal(t, StateUpcoming, res.Entries[0].State)
	assert.Equal(t, StateEventStarted, res.Entries[1].State)
	assert.True(t, res.Entries[1].Timestamp.Equal(start))
	for _, e := range res.Entries {
		assert.NotEqual(t, StateLeaveNow, e.State)
	}
}

func TestLeaveByAlreadyPassed(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	start := now.Add(20 * time.Minute)
	ev := located("late", start, 30) // leave-by was 20m ago

	res := fixedGenerator(now).Generate(&model.Snapshot{
		Events: []model.EnrichedEvent{ev}, WrittenAt: now,
	})

	require.Len(t, res.Entries, 2)
	assert.Equal(t, StateLeaveNow, res.Entries[0].State)
	assert.True(t, res.Entries[0].Timestamp.Equal(now))
	assert.Equal(t, StateEventStarted, res.Entries[1].State)
}

func TestInProgressEventAnchorsAtEnd(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	ev := located("running", now.Add(-30*time.Minute), 15)

	res := fixedGenerator(now).Generate(&model.Snapshot{
		Events: []model.EnrichedEvent{ev}, WrittenAt: now,
	})

	require.Len(t, res.Entries, 2)
	assert.Equal(t, StateEventStarted, res.Entries[0].State)
	assert.Equal(t, StateEventStarted, res.Entries[1].State)
	assert.True(t, res.Entries[1].Timestamp.Equal(ev.End))
}

func TestEntriesMergedSortedAcrossEvents(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	snap := &model.Snapshot{
		Events: []model.EnrichedEvent{
			located("second", now.Add(5*time.Hour), 60),
			located("first", now.Add(2*time.Hour), 30),
		},
		WrittenAt: now,
	}

	res := fixedGenerator(now).Generate(snap)
	require.Len(t, res.Entries, 6)
	for i := 1; i < len(res.Entries); i++ {
		assert.False(t, res.Entries[i].Timestamp.Before(res.Entries[i-1].Timestamp),
			"entries must be ascending by timestamp")
	}
	assert.True(t, res.NextRegen.Equal(res.Entries[5].Timestamp.Add(time.Second)))
}

func TestEventLimit(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	events := make([]model.EnrichedEvent, 0, 8)
	for i := 0; i < 8; i++ {
		events = append(events, unlocated(string(rune('a'+i)), now.Add(time.Duration(i+1)*time.Hour)))
	}

	res := fixedGenerator(now).Generate(&model.Snapshot{Events: events, WrittenAt: now})

	// 5 events, 2 entries each.
	assert.Len(t, res.Entries, 10)
	seen := map[string]bool{}
	for _, e := range res.Entries {
		seen[e.EventID] = true
	}
	assert.False(t, seen["f"], "sixth event must be beyond the limit")
}
