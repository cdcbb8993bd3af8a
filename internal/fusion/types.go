package fusion

import (
	"fmt"
	"math"
)

// UnknownDistance is reported when no lidar sample could be matched to a
// detection. It is larger than any reading the sensor can produce.
const UnknownDistance float32 = math.MaxFloat32

// DetectionBox is one detector output: the class id and the left/right pixel
// edges of its bounding box.
type DetectionBox struct {
	ClassID    int     `json:"class_id"`
	Left       float32 `json:"left"`
	Right      float32 `json:"right"`
	Confidence float32 `json:"confidence,omitempty"`
}

// Width returns the box width in pixels.
func (d DetectionBox) Width() float32 {
	return d.Right - d.Left
}

// LidarSample is a single return of the rotating lidar.
type LidarSample struct {
	AngleDegrees float32 `json:"angle"`
	DistanceMm   float32 `json:"dist"`
}

// finite reports whether both fields are real numbers. Drivers can emit NaN
// or Inf for dropped returns; such samples never match.
func (s LidarSample) finite() bool {
	return !math.IsNaN(float64(s.AngleDegrees)) && !math.IsInf(float64(s.AngleDegrees), 0) &&
		!math.IsNaN(float64(s.DistanceMm)) && !math.IsInf(float64(s.DistanceMm), 0)
}

// ObjectType is the coarse category of a detected object. The numeric values
// are the digits carried on the wire.
type ObjectType uint8

const (
	ObjectNone ObjectType = iota
	ObjectPerson
	ObjectAnimal
	ObjectVehicle
	ObjectOther
)

func (o ObjectType) String() string {
	switch o {
	case ObjectNone:
		return "none"
	case ObjectPerson:
		return "person"
	case ObjectAnimal:
		return "animal"
	case ObjectVehicle:
		return "vehicle"
	case ObjectOther:
		return "other"
	default:
		return fmt.Sprintf("object(%d)", uint8(o))
	}
}

// Valid reports whether o is one of the defined object types.
func (o ObjectType) Valid() bool { return o <= ObjectOther }

// HazardLevel tells the receiving vehicle how to react.
type HazardLevel uint8

const (
	HazardNone HazardLevel = iota
	HazardCaution
	HazardStop
)

func (h HazardLevel) String() string {
	switch h {
	case HazardNone:
		return "none"
	case HazardCaution:
		return "caution"
	case HazardStop:
		return "stop"
	default:
		return fmt.Sprintf("hazard(%d)", uint8(h))
	}
}

// Valid reports whether h is one of the defined hazard levels.
func (h HazardLevel) Valid() bool { return h <= HazardStop }

// Sector is a coarse angular bucket around the vehicle.
type Sector uint8

const (
	SectorNA Sector = iota
	SectorLeft
	SectorFront
	SectorRight
	SectorBack
)

func (s Sector) String() string {
	switch s {
	case SectorNA:
		return "n/a"
	case SectorLeft:
		return "left"
	case SectorFront:
		return "front"
	case SectorRight:
		return "right"
	case SectorBack:
		return "back"
	default:
		return fmt.Sprintf("sector(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the defined sectors.
func (s Sector) Valid() bool { return s <= SectorBack }

// FusedObservation is the per-detection result of a fusion cycle.
type FusedObservation struct {
	ClassID      int         `json:"class_id"`
	AngleDegrees float32     `json:"angle"`
	DistanceMm   float32     `json:"distance_mm"`
	Object       ObjectType  `json:"object"`
	Hazard       HazardLevel `json:"hazard"`
	Sector       Sector      `json:"sector"`
}

// EmptyObservation is the report sent when nothing was detected.
func EmptyObservation() FusedObservation {
	return FusedObservation{
		DistanceMm: UnknownDistance,
		Object:     ObjectNone,
		Hazard:     HazardNone,
		Sector:     SectorNA,
	}
}

// HasDistance reports whether a lidar distance was fused into the observation.
func (o FusedObservation) HasDistance() bool {
	return o.DistanceMm != UnknownDistance
}

func (o FusedObservation) String() string {
	dist := "unknown"
	if o.HasDistance() {
		dist = fmt.Sprintf("%.0fmm", o.DistanceMm)
	}
	return fmt.Sprintf("%s/%s sector=%s angle=%.2f dist=%s", o.Object, o.Hazard, o.Sector, o.AngleDegrees, dist)
}
