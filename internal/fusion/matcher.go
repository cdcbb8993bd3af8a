package fusion

import "fmt"

// DefaultMatchTolerance is the angular window, in degrees, within which a
// lidar sample is considered co-located with a detection.
const DefaultMatchTolerance float32 = 0.5

// MatchPolicy decides which sample wins when several fall within tolerance.
type MatchPolicy string

const (
	// MatchLastWins keeps overwriting the result while scanning, so the last
	// matching sample in sweep order wins. This is the field-tested behaviour
	// and the default.
	MatchLastWins MatchPolicy = "last"
	// MatchClosestAngle keeps the sample with the smallest angular distance
	// to the target. Equal distances keep the later sample.
	MatchClosestAngle MatchPolicy = "closest"
)

// ParseMatchPolicy parses a policy name. The empty string selects MatchLastWins.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch MatchPolicy(s) {
	case "", MatchLastWins:
		return MatchLastWins, nil
	case MatchClosestAngle:
		return MatchClosestAngle, nil
	default:
		return "", fmt.Errorf("unknown match policy %q: expected %q or %q", s, MatchLastWins, MatchClosestAngle)
	}
}

// Matcher searches a sweep for the distance sample matching a target angle.
type Matcher struct {
	Tolerance float32
	Policy    MatchPolicy
}

// DefaultMatcher returns a last-match-wins matcher with the default tolerance.
func DefaultMatcher() Matcher {
	return Matcher{Tolerance: DefaultMatchTolerance, Policy: MatchLastWins}
}

// Find returns the matched distance, or (UnknownDistance, false).
func (m Matcher) Find(samples []LidarSample, target float32) (float32, bool) {
	tol := m.Tolerance
	if tol <= 0 {
		tol = DefaultMatchTolerance
	}
	if m.Policy == MatchClosestAngle {
		return findClosestAngle(samples, target, tol)
	}
	return FindNearestDistance(samples, target, tol)
}

// FindNearestDistance scans every sample and returns the distance of the last
// one whose angle lies strictly within tolerance of target, accounting for
// the 0°/360° seam. Non-finite samples are skipped. It returns (UnknownDistance, false) when none match.
func FindNearestDistance(samples []LidarSample, target, tolerance float32) (float32, bool) {
	dist := UnknownDistance
	found := false
	for _, s := range samples {
		if !s.finite() {
			continue
		}
		if AngularDistance(s.AngleDegrees, target) < tolerance {
			dist = s.DistanceMm
			found = true
		}
	}
	return dist, found
}

func findClosestAngle(samples []LidarSample, target, tolerance float32) (float32, bool) {
	dist := UnknownDistance
	best := tolerance
	found := false
	for _, s := range samples {
		if !s.finite() {
			continue
		}
		d := AngularDistance(s.AngleDegrees, target)
		if d < tolerance && d <= best {
			best = d
			dist = s.DistanceMm
			found = true
		}
	}
	return dist, found
}
