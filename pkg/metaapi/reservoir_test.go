package metaapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservoirAccumulatesWithinWindow(t *testing.T) {
	r := NewReservoir(7, 7*24*time.Hour)
	base := time.Now().Add(-6 * 24 * time.Hour)

	for i := 0; i < 7; i++ {
		r.Push(100, base.Add(time.Duration(i)*24*time.Hour))
	}

	stats := r.Statistics()
	require.Equal(t, int64(7), stats.Count)
	assert.InDelta(t, 100, stats.Average, 0.0001)
	assert.InDelta(t, 100, stats.Min, 0.0001)
	assert.InDelta(t, 100, stats.Max, 0.0001)
}

func TestReservoirStaleSubWindowIsResetOnTouch(t *testing.T) {
	r := NewReservoir(2, 2*time.Hour)
	base := time.Now().Add(-4 * time.Hour)

	r.Push(0, base)
	r.Push(100, base.Add(4*time.Hour)) // wraps into the same slot, two laps later

	stats := r.Statistics()
	require.Equal(t, int64(1), stats.Count)
	assert.InDelta(t, 100, stats.Average, 0.0001)
}

func TestReservoirAveragesAcrossLiveSubWindows(t *testing.T) {
	r := NewReservoir(2, 2*time.Hour)
	base := time.Now().Add(-time.Hour)

	r.Push(50, base)
	r.Push(100, base.Add(time.Hour))

	stats := r.Statistics()
	require.Equal(t, int64(2), stats.Count)
	assert.InDelta(t, 75, stats.Average, 0.0001)
}

func TestReservoirMinMaxTrackSeparately(t *testing.T) {
	r := NewReservoir(1, time.Hour)
	now := time.Now()
	r.Push(10, now)
	r.Push(90, now)

	stats := r.Statistics()
	assert.InDelta(t, 10, stats.Min, 0.0001)
	assert.InDelta(t, 90, stats.Max, 0.0001)
	assert.InDelta(t, 100, stats.Sum, 0.0001)
}
