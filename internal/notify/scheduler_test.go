package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leavetimed/internal/model"
)

func enriched(id string, start time.Time, driveMin int, allDay bool) model.EnrichedEvent {
	ev := model.EnrichedEvent{
		ID:            id,
		Title:         id,
		AllDay:        allDay,
		Start:         start,
		End:           start.Add(time.Hour),
		BufferMinutes: 10,
	}
	if driveMin >= 0 {
		ev.DriveTimeMinutes = &driveMin
	}
	return ev
}

func TestScheduleAllEligibility(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	n := NewMemoryNotifier()
	s := NewScheduler(n)
	s.now = func() time.Time { return now }

	events := []model.EnrichedEvent{
		enriched("future-located", now.Add(3*time.Hour), 30, false),
		enriched("no-location", now.Add(3*time.Hour), -1, false),
		enriched("all-day", now.Add(3*time.Hour), 30, true),
		enriched("leaveby-passed", now.Add(20*time.Minute), 30, false),
	}

	count, err := s.ScheduleAll(events)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	pending := n.Pending()
	require.Len(t, pending, 1)
	fireAt, ok := pending[Identifier("future-located")]
	require.True(t, ok)
	assert.True(t, fireAt.Equal(now.Add(3*time.Hour).Add(-40*time.Minute)))
}

func TestScheduleAllIdempotent(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	n := NewMemoryNotifier()
	s := NewScheduler(n)
	s.now = func() time.Time { return now }

	events := []model.EnrichedEvent{
		enriched("a", now.Add(2*time.Hour), 20, false),
		enriched("b", now.Add(4*time.Hour), 35, false),
	}

	_, err := s.ScheduleAll(events)
	require.NoError(t, err)
	first := n.Pending()

	_, err = s.ScheduleAll(events)
	require.NoError(t, err)
	second := n.Pending()

	assert.Equal(t, first, second, "resync over an unchanged list must produce an identical schedule")
	assert.Len(t, second, 2)
}

func TestScheduleAllDropsRemovedEvents(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	n := NewMemoryNotifier()
	s := NewScheduler(n)
	s.now = func() time.Time { return now }

	_, err := s.ScheduleAll([]model.EnrichedEvent{
		enriched("a", now.Add(2*time.Hour), 20, false),
		enriched("b", now.Add(4*time.Hour), 35, false),
	})
	require.NoError(t, err)

	_, err = s.ScheduleAll([]model.EnrichedEvent{
		enriched("b", now.Add(4*time.Hour), 35, false),
	})
	require.NoError(t, err)

	pending := n.Pending()
	require.Len(t, pending, 1)
	_, ok := pending[Identifier("b")]
	assert.True(t, ok, "no orphan from the removed event")
}

func TestNamespaceIsolation(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	n := NewMemoryNotifier()
	// A foreign subsystem's alert lives on the same service.
	require.NoError(t, n.Schedule("other-app-xyz", now.Add(time.Hour), Payload{}))

	s := NewScheduler(n)
	s.now = func() time.Time { return now }

	_, err := s.ScheduleAll([]model.EnrichedEvent{enriched("a", now.Add(2*time.Hour), 20, false)})
	require.NoError(t, err)
	require.NoError(t, s.CancelAll())

	pending := n.Pending()
	require.Len(t, pending, 1)
	_, ok := pending["other-app-xyz"]
	assert.True(t, ok, "foreign alert must survive bulk cancel")
}

func TestCancelSingle(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	n := NewMemoryNotifier()
	s := NewScheduler(n)
	s.now = func() time.Time { return now }

	_, err := s.ScheduleAll([]model.EnrichedEvent{
		enriched("a", now.Add(2*time.Hour), 20, false),
		enriched("b", now.Add(4*time.Hour), 35, false),
	})
	require.NoError(t, err)

	require.NoError(t, s.Cancel("a"))
	pending := n.Pending()
	require.Len(t, pending, 1)
	_, ok := pending[Identifier("b")]
	assert.True(t, ok)
}
