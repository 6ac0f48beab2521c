package history

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBufferKeepsLastCapacitySamplesInOrder(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	buf := New[int](DefaultCapacity, WithClock(func() time.Time { return base.Add(time.Hour) }))

	for i := 0; i < 150; i++ {
		require.NoError(t, buf.Push(Sample[int]{Timestamp: base.Add(time.Duration(i) * time.Second), Value: i}))
	}

	snap := buf.Snapshot()
	require.Len(t, snap, 100)
	for i, s := range snap {
		require.Equal(t, 50+i, s.Value)
	}

	last, ok := buf.Last()
	require.True(t, ok)
	require.Equal(t, 149, last.Value)
}

func TestBufferRejectsFutureSamples(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	buf := New[float64](10, WithClock(func() time.Time { return now }))

	require.ErrorIs(t, buf.Push(Sample[float64]{Timestamp: now.Add(time.Second), Value: 1}), ErrFutureSample)
	require.NoError(t, buf.Push(Sample[float64]{Timestamp: now, Value: 1}))
	require.Equal(t, 1, buf.Len())
}

func TestSnapshotIsDefensiveCopy(t *testing.T) {
	buf := New[int](3)
	require.NoError(t, buf.Push(Sample[int]{Timestamp: time.Now().Add(-time.Minute), Value: 7}))

	snap := buf.Snapshot()
	snap[0].Value = 99

	again := buf.Snapshot()
	require.Equal(t, 7, again[0].Value)
}

func TestFilterSinceIsRestartableAndOrdered(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	buf := New[int](10, WithClock(func() time.Time { return base.Add(time.Hour) }))
	for i := 0; i < 5; i++ {
		require.NoError(t, buf.Push(Sample[int]{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: i}))
	}

	seq := buf.FilterSince(base.Add(2 * time.Minute))
	values := func() []int {
		var out []int
		for s := range seq {
			out = append(out, s.Value)
		}
		return out
	}

	require.Equal(t, []int{2, 3, 4}, values())
	require.Equal(t, []int{2, 3, 4}, values())
	require.Equal(t, 5, buf.Len())
}

func TestFilterSinceStopsEarly(t *testing.T) {
	buf := New[int](10)
	for i := 0; i < 5; i++ {
		require.NoError(t, buf.Push(Sample[int]{Timestamp: time.Now().Add(-time.Hour), Value: i}))
	}

	var got []int
	for s := range buf.FilterSince(time.Time{}) {
		got = append(got, s.Value)
		if len(got) == 2 {
			break
		}
	}
	require.True(t, slices.Equal([]int{0, 1}, got))
}

func TestNewFallsBackToDefaultCapacity(t *testing.T) {
	require.Equal(t, DefaultCapacity, New[int](0).Cap())
}
