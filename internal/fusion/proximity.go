package fusion

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// AngleRange is an open interval of lidar angles (Min, Max) in degrees.
type AngleRange struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

// Contains reports whether Min < a < Max.
func (r AngleRange) Contains(a float32) bool {
	return a > r.Min && a < r.Max
}

// DefaultForwardArc covers the half plane ahead of the vehicle, leaving out
// the exact 0° and 359°+ samples.
func DefaultForwardArc() []AngleRange {
	return []AngleRange{{Min: 0, Max: 120}, {Min: 240, Max: 359}}
}

// DefaultProximityThresholdMm flags anything within a metre ahead.
const DefaultProximityThresholdMm float32 = 1000

// ProximitySummary is the coarse "something is close ahead" signal for one
// sweep plus the running statistics carried since process start.
type ProximitySummary struct {
	Samples       int     `json:"samples"`
	SweepMinMm    float32 `json:"sweep_min_mm"`
	SweepMeanMm   float32 `json:"sweep_mean_mm"`
	RunningMeanMm float32 `json:"running_mean_mm"`
	RunningMinMm  float32 `json:"running_min_mm"`
	CloseAhead    bool    `json:"close_ahead"`
}

// ProximityMonitor accumulates forward-arc distances independently of the
// per-detection matching. Its running state lives for the whole process and
// is not reset between cycles.
type ProximityMonitor struct {
	Arcs        []AngleRange
	ThresholdMm float32

	count int
	sum   float64
	min   float64
}

// NewProximityMonitor returns a monitor over the given arcs. Nil arcs select
// DefaultForwardArc.
func NewProximityMonitor(arcs []AngleRange, thresholdMm float32) *ProximityMonitor {
	if len(arcs) == 0 {
		arcs = DefaultForwardArc()
	}
	if thresholdMm <= 0 {
		thresholdMm = DefaultProximityThresholdMm
	}
	p := &ProximityMonitor{Arcs: arcs, ThresholdMm: thresholdMm}
	p.Reset()
	return p
}

// Reset clears the running statistics. Only call this at process start.
func (p *ProximityMonitor) Reset() {
	p.count = 0
	p.sum = 0
	p.min = math.Inf(1)
}

func (p *ProximityMonitor) inArc(a float32) bool {
	for _, r := range p.Arcs {
		if r.Contains(a) {
			return true
		}
	}
	return false
}

// Observe folds one sweep into the running statistics. Zero distances are
// "no return" readings and are skipped, as are non-finite samples.
func (p *ProximityMonitor) Observe(samples []LidarSample) ProximitySummary {
	dists := make([]float64, 0, len(samples))
	for _, s := range samples {
		if !s.finite() || s.DistanceMm <= 0 || !p.inArc(s.AngleDegrees) {
			continue
		}
		dists = append(dists, float64(s.DistanceMm))
	}

	summary := ProximitySummary{
		Samples:     len(dists),
		SweepMinMm:  UnknownDistance,
		SweepMeanMm: UnknownDistance,
	}
	if len(dists) > 0 {
		sweepMin := floats.Min(dists)
		sweepSum := floats.Sum(dists)
		summary.SweepMinMm = float32(sweepMin)
		summary.SweepMeanMm = float32(sweepSum / float64(len(dists)))
		summary.CloseAhead = summary.SweepMinMm < p.ThresholdMm

		p.count += len(dists)
		p.sum += sweepSum
		p.min = math.Min(p.min, sweepMin)
	}

	summary.RunningMeanMm, summary.RunningMinMm = p.running()
	return summary
}

func (p *ProximityMonitor) running() (mean, min float32) {
	if p.count == 0 {
		return UnknownDistance, UnknownDistance
	}
	return float32(p.sum / float64(p.count)), float32(p.min)
}
