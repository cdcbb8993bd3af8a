package fusion

import "math"

// CameraGeometry describes the horizontal optics of the camera feeding the
// detector. The camera is mounted looking along the lidar's 0° axis.
type CameraGeometry struct {
	WidthPixels          float32
	HorizontalFOVDegrees float32
}

// DegreesPerPixel is the fixed angular resolution across the image.
func (g CameraGeometry) DegreesPerPixel() float32 {
	if g.WidthPixels <= 0 {
		return 0
	}
	return g.HorizontalFOVDegrees / g.WidthPixels
}

// HalfFOV is the angle between the image centre and either edge.
func (g CameraGeometry) HalfFOV() float32 {
	return g.HorizontalFOVDegrees / 2
}

// MapBox maps a detection box onto the lidar angle frame.
func (g CameraGeometry) MapBox(d DetectionBox) float32 {
	return MapToLidarAngle(d.Left, d.Right, g.DegreesPerPixel(), g.HalfFOV())
}

// MapToLidarAngle converts the left/right pixel edges of a box into the angle
// of its midpoint in the lidar's unsigned [0,360) frame. Pixel angles are
// signed around the image centre, positive to the right, so boxes left of
// centre wrap to just below 360.
func MapToLidarAngle(leftPixel, rightPixel, degreesPerPixel, halfFieldOfView float32) float32 {
	left := leftPixel*degreesPerPixel - halfFieldOfView
	right := rightPixel*degreesPerPixel - halfFieldOfView

	mid := left + (right-left)/2
	if mid < 0 {
		mid += 360
	}
	// a tiny negative midpoint rounds to exactly 360 in float32
	if mid >= 360 {
		mid -= 360
	}
	return mid
}

// AngularDistance is the absolute difference between two angles on the
// circle, in [0,180]. A non-finite input gives +Inf, which lies outside any
// tolerance.
func AngularDistance(a, b float32) float32 {
	d := math.Mod(math.Abs(float64(a)-float64(b)), 360)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return float32(math.Inf(1))
	}
	if d > 180 {
		d = 360 - d
	}
	return float32(d)
}
