package config

import (
	"time"

	"github.com/banshee-data/hazardlink/internal/fusion"
	"github.com/banshee-data/hazardlink/internal/transport"
)

// GetCaptureTimeout parses and returns the CaptureTimeout as a time.Duration.
func (c *FusionConfig) GetCaptureTimeout() time.Duration {
	if c.CaptureTimeout == nil || *c.CaptureTimeout == "" {
		return defaultCaptureTimeout
	}
	d, err := time.ParseDuration(*c.CaptureTimeout)
	if err != nil || d <= 0 {
		return defaultCaptureTimeout
	}
	return d
}

// GetCameraGeometry returns the configured camera geometry.
func (c *FusionConfig) GetCameraGeometry() fusion.CameraGeometry {
	g := fusion.CameraGeometry{
		WidthPixels:          defaultCameraWidthPixels,
		HorizontalFOVDegrees: defaultCameraHFOVDegrees,
	}
	if c.CameraWidthPixels != nil {
		g.WidthPixels = float32(*c.CameraWidthPixels)
	}
	if c.CameraHFOVDegrees != nil {
		g.HorizontalFOVDegrees = float32(*c.CameraHFOVDegrees)
	}
	return g
}

// GetMatchTolerance returns the match tolerance in degrees or the default.
func (c *FusionConfig) GetMatchTolerance() float32 {
	if c.MatchToleranceDegrees == nil {
		return fusion.DefaultMatchTolerance
	}
	return float32(*c.MatchToleranceDegrees)
}

// GetMatchPolicy returns the match policy, falling back to last-match-wins
// on unset or unknown values.
func (c *FusionConfig) GetMatchPolicy() fusion.MatchPolicy {
	if c.MatchPolicy == nil {
		return fusion.MatchLastWins
	}
	p, err := fusion.ParseMatchPolicy(*c.MatchPolicy)
	if err != nil {
		return fusion.MatchLastWins
	}
	return p
}

// GetMatcher returns the lidar matcher built from tolerance and policy.
func (c *FusionConfig) GetMatcher() fusion.Matcher {
	return fusion.Matcher{Tolerance: c.GetMatchTolerance(), Policy: c.GetMatchPolicy()}
}

// GetVehicleClassRange returns the inclusive vehicle class id range.
func (c *FusionConfig) GetVehicleClassRange() fusion.ClassRange {
	r := fusion.DefaultClassifier().Vehicle
	if c.VehicleClassLo != nil {
		r.Lo = *c.VehicleClassLo
	}
	if c.VehicleClassHi != nil {
		r.Hi = *c.VehicleClassHi
	}
	return r
}

// GetAnimalClassRange returns the inclusive animal class id range.
func (c *FusionConfig) GetAnimalClassRange() fusion.ClassRange {
	r := fusion.DefaultClassifier().Animal
	if c.AnimalClassLo != nil {
		r.Lo = *c.AnimalClassLo
	}
	if c.AnimalClassHi != nil {
		r.Hi = *c.AnimalClassHi
	}
	return r
}

// GetSectorBounds returns the side sector intervals.
func (c *FusionConfig) GetSectorBounds() fusion.SectorBounds {
	b := fusion.DefaultSectorBounds()
	if c.SectorLeftMin != nil {
		b.Left.Min = float32(*c.SectorLeftMin)
	}
	if c.SectorLeftMax != nil {
		b.Left.Max = float32(*c.SectorLeftMax)
	}
	if c.SectorRightMin != nil {
		b.Right.Min = float32(*c.SectorRightMin)
	}
	if c.SectorRightMax != nil {
		b.Right.Max = float32(*c.SectorRightMax)
	}
	return b
}

// GetClassifier returns the hazard classifier.
func (c *FusionConfig) GetClassifier() fusion.Classifier {
	person := fusion.DefaultPersonClassID
	if c.PersonClassID != nil {
		person = *c.PersonClassID
	}
	return fusion.Classifier{
		PersonID: person,
		Vehicle:  c.GetVehicleClassRange(),
		Animal:   c.GetAnimalClassRange(),
		Sectors:  c.GetSectorBounds(),
	}
}

// GetForwardArcs returns the proximity arcs or the default forward arc.
func (c *FusionConfig) GetForwardArcs() []fusion.AngleRange {
	if len(c.ForwardArcs) == 0 {
		return fusion.DefaultForwardArc()
	}
	out := make([]fusion.AngleRange, len(c.ForwardArcs))
	copy(out, c.ForwardArcs)
	return out
}

// GetProximityThresholdMm returns the close-ahead threshold or the default.
func (c *FusionConfig) GetProximityThresholdMm() float32 {
	if c.ProximityThresholdMm == nil {
		return fusion.DefaultProximityThresholdMm
	}
	return float32(*c.ProximityThresholdMm)
}

// NewProximityMonitor builds the process-lifetime proximity monitor.
func (c *FusionConfig) NewProximityMonitor() *fusion.ProximityMonitor {
	return fusion.NewProximityMonitor(c.GetForwardArcs(), c.GetProximityThresholdMm())
}

// PortOptions returns the serial port options. Unset fields stay zero and
// are defaulted by PortOptions.Normalise.
func (c *FusionConfig) PortOptions() transport.PortOptions {
	var o transport.PortOptions
	if c.SerialBaudRate != nil {
		o.BaudRate = *c.SerialBaudRate
	}
	if c.SerialDataBits != nil {
		o.DataBits = *c.SerialDataBits
	}
	if c.SerialStopBits != nil {
		o.StopBits = *c.SerialStopBits
	}
	if c.SerialParity != nil {
		o.Parity = *c.SerialParity
	}
	if c.SerialReadTimeoutMs != nil {
		o.ReadTimeoutMs = *c.SerialReadTimeoutMs
	}
	return o
}
