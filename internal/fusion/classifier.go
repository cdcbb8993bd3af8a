package fusion

// Default class ids follow the 91-entry COCO label map used by the SSD
// detector: 0 is the background label, 1 is person.
const (
	DefaultPersonClassID = 1
)

// ClassRange is an inclusive range of detector class ids.
type ClassRange struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Contains reports whether Lo <= id <= Hi.
func (r ClassRange) Contains(id int) bool {
	return id >= r.Lo && id <= r.Hi
}

// SectorBounds are the open angle intervals mapped to the side sectors.
// Anything outside both is Front.
type SectorBounds struct {
	Left  AngleRange `json:"left"`
	Right AngleRange `json:"right"`
}

// DefaultSectorBounds matches a 62° camera: the outer ~5° of each image edge
// are reported as side sectors.
func DefaultSectorBounds() SectorBounds {
	return SectorBounds{
		Left:  AngleRange{Min: 321, Max: 333},
		Right: AngleRange{Min: 27, Max: 39},
	}
}

// Classifier maps detector class ids to object types and hazard levels.
type Classifier struct {
	PersonID int
	Vehicle  ClassRange
	Animal   ClassRange
	Sectors  SectorBounds
}

// DefaultClassifier returns the COCO based classifier: bicycle through boat
// are vehicles, bird through giraffe are animals.
func DefaultClassifier() Classifier {
	return Classifier{
		PersonID: DefaultPersonClassID,
		Vehicle:  ClassRange{Lo: 2, Hi: 9},
		Animal:   ClassRange{Lo: 16, Hi: 25},
		Sectors:  DefaultSectorBounds(),
	}
}

// Classify returns the object type and hazard level for a class id. It is
// total: every int maps to exactly one defined pair. The sector is accepted
// so hazard policy can depend on position, but the current policy does not.
func (c Classifier) Classify(classID int, sector Sector) (ObjectType, HazardLevel) {
	switch {
	case classID == c.PersonID:
		return ObjectPerson, HazardStop
	case c.Vehicle.Contains(classID):
		return ObjectVehicle, HazardCaution
	case c.Animal.Contains(classID):
		return ObjectAnimal, HazardCaution
	case classID <= 0:
		return ObjectNone, HazardNone
	default:
		return ObjectOther, HazardNone
	}
}

// SectorFor buckets a fused angle.
func (c Classifier) SectorFor(angle float32) Sector {
	switch {
	case c.Sectors.Left.Contains(angle):
		return SectorLeft
	case c.Sectors.Right.Contains(angle):
		return SectorRight
	default:
		return SectorFront
	}
}

// Fuse builds the observation for one detection. A nil sweep means no lidar
// data this cycle and the distance stays unknown.
func (c Classifier) Fuse(d DetectionBox, geom CameraGeometry, m Matcher, sweep []LidarSample) FusedObservation {
	angle := geom.MapBox(d)
	dist := UnknownDistance
	if sweep != nil {
		dist, _ = m.Find(sweep, angle)
	}
	sector := c.SectorFor(angle)
	object, hazard := c.Classify(d.ClassID, sector)
	return FusedObservation{
		ClassID:      d.ClassID,
		AngleDegrees: angle,
		DistanceMm:   dist,
		Object:       object,
		Hazard:       hazard,
		Sector:       sector,
	}
}
