package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playback-games/progress-sync/internal/events"
	"github.com/playback-games/progress-sync/internal/model"
)

func newTestStore(t *testing.T, bus *events.Bus) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := New(path, bus)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestWriteAndRead(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	rec := model.Record{
		Attempts:      1,
		MaxAttempts:   3,
		HintLevel:     2,
		SchemaVersion: 2,
		AttemptLog:    []model.Attempt{model.NewSkip(time.Now().UTC())},
	}
	s.Write(ctx, "2026-08-27", rec, "")

	got := s.Read(ctx, "2026-08-27")
	require.NotNil(t, got)
	assert.Equal(t, "2026-08-27", got.DayKey)
	assert.Equal(t, 1, got.Attempts)
	assert.False(t, got.LastModified.IsZero())

	assert.Nil(t, s.Read(ctx, "2026-08-28"))
}

func TestWriteStampsOwnerUnlessAlreadyOwned(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	s.Write(ctx, "a", model.Record{}, "acct-1")
	assert.Equal(t, "acct-1", s.Read(ctx, "a").Owner)

	// An explicit owner on the record survives.
	s.Write(ctx, "b", model.Record{Owner: "acct-2"}, "acct-1")
	assert.Equal(t, "acct-2", s.Read(ctx, "b").Owner)

	// Anonymous context leaves the record anonymous.
	s.Write(ctx, "c", model.Record{}, "")
	assert.Empty(t, s.Read(ctx, "c").Owner)
}

func TestWriteStampsLastModified(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	fixed := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	s.Write(ctx, "a", model.Record{LastModified: fixed.Add(-48 * time.Hour)}, "")
	assert.Equal(t, fixed, s.Read(ctx, "a").LastModified)
}

func TestWriteEmitsLocalChanged(t *testing.T) {
	bus := events.NewBus()
	s := newTestStore(t, bus)

	var got []events.Event
	defer bus.Subscribe(func(ev events.Event) { got = append(got, ev) })()

	s.Write(context.Background(), "2026-08-27", model.Record{Attempts: 2}, "")

	require.Len(t, got, 1)
	assert.Equal(t, events.LocalChanged, got[0].Type)
	assert.Equal(t, "2026-08-27", got[0].DayKey)
	require.NotNil(t, got[0].Record)
	assert.Equal(t, 2, got[0].Record.Attempts)
}

func TestListSkipsSuperseded(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	s.Write(ctx, "a", model.Record{Attempts: 1}, "")
	s.Write(ctx, "b", model.Record{Attempts: 2}, "")
	require.NoError(t, s.MarkSuperseded(ctx, "a"))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	_, ok := all["b"]
	assert.True(t, ok)

	// A fresh write revives a superseded row.
	s.Write(ctx, "a", model.Record{Attempts: 3}, "")
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSetOwner(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	s.Write(ctx, "a", model.Record{}, "")
	require.NoError(t, s.SetOwner(ctx, "a", "acct-1"))
	assert.Equal(t, "acct-1", s.Read(ctx, "a").Owner)

	// Missing key is a no-op, not an error.
	require.NoError(t, s.SetOwner(ctx, "missing", "acct-1"))
}

func TestDeviceIDStable(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	id1, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	id2, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestReadYourWrites(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		s.Write(ctx, "d", model.Record{Attempts: i}, "")
		got := s.Read(ctx, "d")
		require.NotNil(t, got)
		assert.Equal(t, i, got.Attempts)
	}
}
