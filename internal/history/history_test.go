package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/treadmill-pod/internal/pace"
)

var t0 = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func tel(event pace.EventType, at time.Duration, strides, speed uint32) pace.Telemetry {
	return pace.Telemetry{Timestamp: t0.Add(at), Event: event, StrideCount: strides, Speed: speed}
}

func TestRecorderRunLifecycle(t *testing.T) {
	r := NewRecorder(3162)
	id := uuid.MustParse("9b2f1c7e-5a4d-4f0e-8a57-0c1d2e3f4a5b")
	r.newID = func() uuid.UUID { return id }

	_, done := r.Observe(tel(pace.EventTick, 0, 1, 809))
	assert.False(t, done)

	active, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, id, active.ID)
	assert.Equal(t, uint32(1), active.Strides)

	r.Observe(tel(pace.EventTick, time.Second, 2, 900))
	r.Observe(tel(pace.EventTick, 2*time.Second, 3, 850))
	r.Observe(tel(pace.EventDecay, 4*time.Second, 3, 425))

	run, done := r.Observe(tel(pace.EventStop, 10*time.Second, 3, 0))
	require.True(t, done)
	assert.Equal(t, Run{
		ID:         id,
		Start:      t0,
		End:        t0.Add(10 * time.Second),
		Strides:    3,
		DistanceMM: 3 * 3162,
		PeakSpeed:  900,
	}, run)
	assert.Equal(t, 10*time.Second, run.Duration())

	_, ok = r.Active()
	assert.False(t, ok)
}

func TestRecorderSecondRunCountsFromItsOwnStart(t *testing.T) {
	r := NewRecorder(1000)

	r.Observe(tel(pace.EventTick, 0, 1, 500))
	r.Observe(tel(pace.EventTick, time.Second, 2, 500))
	_, done := r.Observe(tel(pace.EventStop, 5*time.Second, 2, 0))
	require.True(t, done)

	r.Observe(tel(pace.EventTick, time.Minute, 3, 600))
	r.Observe(tel(pace.EventTick, time.Minute+time.Second, 4, 600))
	r.Observe(tel(pace.EventTick, time.Minute+2*time.Second, 5, 600))
	run, done := r.Observe(tel(pace.EventStop, 2*time.Minute, 5, 0))
	require.True(t, done)

	assert.Equal(t, uint32(3), run.Strides)
	assert.Equal(t, uint64(3000), run.DistanceMM)
	assert.Equal(t, t0.Add(time.Minute), run.Start)
}

func TestRecorderStrideWrap(t *testing.T) {
	r := NewRecorder(1000)
	top := ^uint32(0)

	r.Observe(tel(pace.EventTick, 0, top, 500))
	r.Observe(tel(pace.EventTick, time.Second, 1, 500))

	active, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, uint32(3), active.Strides)
}

func TestRecorderIgnoresDecayWithoutRun(t *testing.T) {
	r := NewRecorder(1000)

	_, done := r.Observe(tel(pace.EventDecay, 0, 0, 10))
	assert.False(t, done)
	_, done = r.Observe(tel(pace.EventStop, 0, 0, 0))
	assert.False(t, done)
	_, ok := r.Active()
	assert.False(t, ok)
}

func TestRecorderFlush(t *testing.T) {
	r := NewRecorder(1000)

	_, ok := r.Flush(t0)
	assert.False(t, ok, "flush without run")

	r.Observe(tel(pace.EventTick, 0, 1, 500))
	run, ok := r.Flush(t0.Add(30 * time.Second))
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, run.Duration())

	_, ok = r.Active()
	assert.False(t, ok)
}

func TestStoreMigrates(t *testing.T) {
	s := openTestStore(t)

	v, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), Run{ID: uuid.New(), Start: t0, End: t0.Add(time.Minute), Strides: 10, DistanceMM: 31620}))
	require.NoError(t, s.Close())

	// Re-opening must not fail on already-applied migrations.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	count, dist, err := s.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, uint64(31620), dist)
}

func TestStoreSaveAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		run := Run{
			ID:         uuid.New(),
			Start:      t0.Add(time.Duration(i) * time.Hour),
			End:        t0.Add(time.Duration(i)*time.Hour + 20*time.Minute),
			Strides:    uint32(100 * (i + 1)),
			DistanceMM: uint64(316200 * (i + 1)),
			PeakSpeed:  uint32(800 + i),
		}
		ids = append(ids, run.ID)
		require.NoError(t, s.Save(ctx, run))
	}

	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Equal(t, t0.Add(2*time.Hour), runs[0].Start)
	assert.Equal(t, 20*time.Minute, runs[0].Duration())
	assert.Equal(t, uint32(300), runs[0].Strides)
	assert.Equal(t, uint64(948600), runs[0].DistanceMM)
	assert.Equal(t, uint32(802), runs[0].PeakSpeed)
}

func TestStoreDuplicateID(t *testing.T) {
	s := openTestStore(t)
	run := Run{ID: uuid.New(), Start: t0, End: t0}

	require.NoError(t, s.Save(context.Background(), run))
	assert.Error(t, s.Save(context.Background(), run))
}

func TestStoreEmpty(t *testing.T) {
	s := openTestStore(t)

	runs, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	count, dist, err := s.Totals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, dist)
}
