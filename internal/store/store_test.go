package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leavetimed/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "leavetimed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ReadSnapshot(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	drive := 25
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	events := []model.EnrichedEvent{
		{ID: "e1", Title: "Standup", Start: start, End: start.Add(time.Hour), BufferMinutes: 10},
		{ID: "e2", Title: "Dentist", Location: "3 Molar Rd", Start: start.Add(2 * time.Hour),
			End: start.Add(3 * time.Hour), DriveTimeMinutes: &drive, BufferMinutes: 10},
	}
	require.NoError(t, s.WriteSnapshot(ctx, events))

	snap, err := s.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Events, 2)
	assert.WithinDuration(t, time.Now(), snap.WrittenAt, 5*time.Second)

	require.NotNil(t, snap.Events[1].DriveTimeMinutes)
	assert.Equal(t, 25, *snap.Events[1].DriveTimeMinutes)
	assert.Nil(t, snap.Events[0].DriveTimeMinutes)
	assert.True(t, snap.Events[1].Start.Equal(start.Add(2*time.Hour)))
}

func TestSnapshotFullReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Now().Add(time.Hour)
	require.NoError(t, s.WriteSnapshot(ctx, []model.EnrichedEvent{
		{ID: "old1", Start: start, End: start.Add(time.Hour)},
		{ID: "old2", Start: start, End: start.Add(time.Hour)},
	}))
	require.NoError(t, s.WriteSnapshot(ctx, []model.EnrichedEvent{
		{ID: "new", Start: start, End: start.Add(time.Hour)},
	}))

	snap, err := s.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Events, 1)
	assert.Equal(t, "new", snap.Events[0].ID)
}

func TestClearSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Now().Add(time.Hour)
	require.NoError(t, s.WriteSnapshot(ctx, []model.EnrichedEvent{{ID: "e", Start: start, End: start}}))
	require.NoError(t, s.ClearSnapshot(ctx))

	_, err := s.ReadSnapshot(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSettingsDefaultsAndPersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enabled, err := s.AlertsEnabled(ctx, true)
	require.NoError(t, err)
	assert.True(t, enabled, "unset setting falls back to default")

	buffer, err := s.BufferMinutes(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, buffer)

	require.NoError(t, s.SetAlertsEnabled(ctx, false))
	require.NoError(t, s.SetBufferMinutes(ctx, 25))

	enabled, err = s.AlertsEnabled(ctx, true)
	require.NoError(t, err)
	assert.False(t, enabled)

	buffer, err = s.BufferMinutes(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, buffer)

	assert.Error(t, s.SetBufferMinutes(ctx, -1))
}

func TestEmptySnapshotIsReadable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSnapshot(ctx, nil))
	snap, err := s.ReadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Events)
}
