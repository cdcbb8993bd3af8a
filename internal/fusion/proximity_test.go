package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProximityMonitor_ForwardArcOnly(t *testing.T) {
	t.Parallel()

	p := NewProximityMonitor(nil, 1000)
	summary := p.Observe([]LidarSample{
		{AngleDegrees: 0, DistanceMm: 100},    // seam itself is excluded
		{AngleDegrees: 30, DistanceMm: 1500},  // forward right
		{AngleDegrees: 180, DistanceMm: 200},  // behind
		{AngleDegrees: 300, DistanceMm: 2500}, // forward left
		{AngleDegrees: 359.5, DistanceMm: 50}, // above 359
		{AngleDegrees: 60, DistanceMm: 0},     // no return
	})

	assert.Equal(t, 2, summary.Samples)
	assert.Equal(t, float32(1500), summary.SweepMinMm)
	assert.Equal(t, float32(2000), summary.SweepMeanMm)
	assert.False(t, summary.CloseAhead)
	assert.Equal(t, float32(2000), summary.RunningMeanMm)
	assert.Equal(t, float32(1500), summary.RunningMinMm)
}

func TestProximityMonitor_RunningStateCarriesAcrossSweeps(t *testing.T) {
	t.Parallel()

	p := NewProximityMonitor(nil, 1000)
	p.Observe([]LidarSample{{AngleDegrees: 10, DistanceMm: 3000}})
	summary := p.Observe([]LidarSample{
		{AngleDegrees: 20, DistanceMm: 800},
		{AngleDegrees: 25, DistanceMm: 1000},
	})

	assert.Equal(t, float32(800), summary.SweepMinMm)
	assert.True(t, summary.CloseAhead)
	assert.InDelta(t, 1600, summary.RunningMeanMm, 0.01)
	assert.Equal(t, float32(800), summary.RunningMinMm)

	// an empty sweep leaves the running statistics untouched
	summary = p.Observe(nil)
	assert.Equal(t, 0, summary.Samples)
	assert.Equal(t, UnknownDistance, summary.SweepMinMm)
	assert.InDelta(t, 1600, summary.RunningMeanMm, 0.01)
	assert.Equal(t, float32(800), summary.RunningMinMm)
}

func TestProximityMonitor_Reset(t *testing.T) {
	t.Parallel()

	p := NewProximityMonitor([]AngleRange{{Min: 0, Max: 90}}, 0)
	assert.Equal(t, DefaultProximityThresholdMm, p.ThresholdMm)

	p.Observe([]LidarSample{{AngleDegrees: 45, DistanceMm: 400}})
	p.Reset()
	summary := p.Observe(nil)
	assert.Equal(t, UnknownDistance, summary.RunningMeanMm)
	assert.Equal(t, UnknownDistance, summary.RunningMinMm)
}

func TestAngleRange_Contains(t *testing.T) {
	t.Parallel()

	r := AngleRange{Min: 27, Max: 39}
	assert.False(t, r.Contains(27))
	assert.True(t, r.Contains(27.01))
	assert.True(t, r.Contains(38.99))
	assert.False(t, r.Contains(39))
}

func TestProximityMonitor_SkipsNonFinite(t *testing.T) {
	t.Parallel()

	p := NewProximityMonitor(nil, 1000)
	summary := p.Observe([]LidarSample{
		{AngleDegrees: 30, DistanceMm: float32(math.NaN())},
		{AngleDegrees: 30, DistanceMm: float32(math.Inf(1))},
		{AngleDegrees: float32(math.NaN()), DistanceMm: 100},
		{AngleDegrees: 30, DistanceMm: 1500},
	})

	assert.Equal(t, 1, summary.Samples)
	assert.Equal(t, float32(1500), summary.SweepMinMm)
}
