package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testGeometry() CameraGeometry {
	return CameraGeometry{WidthPixels: 1280, HorizontalFOVDegrees: 62.2}
}

func TestMapToLidarAngle(t *testing.T) {
	t.Parallel()

	g := testGeometry()
	dpp := g.DegreesPerPixel()
	half := g.HalfFOV()

	tests := []struct {
		name  string
		left  float32
		right float32
		want  float32
	}{
		{name: "centred box maps to 0", left: 540, right: 740, want: 0},
		{name: "right half is a small positive angle", left: 1180, right: 1280, want: 28.67},
		{name: "left half wraps below 360", left: 0, right: 100, want: 331.33},
		{name: "full width box is dead ahead", left: 0, right: 1280, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MapToLidarAngle(tt.left, tt.right, dpp, half)
			assert.LessOrEqual(t, AngularDistance(tt.want, got), float32(0.01), "got %v", got)
		})
	}
}

func TestMapToLidarAngle_Range(t *testing.T) {
	t.Parallel()

	g := testGeometry()
	for left := float32(0); left <= g.WidthPixels; left += 7 {
		for right := left; right <= g.WidthPixels; right += 13 {
			a := g.MapBox(DetectionBox{Left: left, Right: right})
			if a < 0 || a >= 360 {
				t.Fatalf("MapBox(%v, %v) = %v, want [0,360)", left, right, a)
			}
		}
	}
}

func TestMapToLidarAngle_SeamContinuity(t *testing.T) {
	t.Parallel()

	g := testGeometry()
	centre := g.WidthPixels / 2
	width := float32(40)
	boxAngularWidth := width * g.DegreesPerPixel()

	prev := g.MapBox(DetectionBox{Left: centre - width - 20, Right: centre - 20})
	for shift := float32(-19); shift <= 20; shift++ {
		cur := g.MapBox(DetectionBox{Left: centre - width + shift, Right: centre + shift})
		assert.LessOrEqual(t, AngularDistance(prev, cur), boxAngularWidth,
			"nudging the box by one pixel at shift %v jumped from %v to %v", shift, prev, cur)
		prev = cur
	}
}

func TestMapToLidarAngle_TinyNegativeWrapsToZero(t *testing.T) {
	t.Parallel()

	// -1e-6 + 360 rounds to 360 in float32 and must fold back to 0.
	got := MapToLidarAngle(0, 0, 1, 1e-6)
	assert.GreaterOrEqual(t, got, float32(0))
	assert.Less(t, got, float32(360))
}

func TestAngularDistance(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.3, AngularDistance(10, 10.3), 1e-5)
	assert.InDelta(t, 0.4, AngularDistance(359.8, 0.2), 1e-4)
	assert.InDelta(t, 0.4, AngularDistance(0.2, 359.8), 1e-4)
	assert.InDelta(t, 180, AngularDistance(0, 180), 1e-5)
	assert.InDelta(t, 90, AngularDistance(45, 315), 1e-5)
}

func TestAngularDistance_LargeAndNonFinite(t *testing.T) {
	t.Parallel()

	inf := float32(math.Inf(1))
	assert.InDelta(t, 10, AngularDistance(730, 0), 1e-4)
	assert.InDelta(t, 0, AngularDistance(math.MaxFloat32, math.MaxFloat32), 1e-4)
	assert.LessOrEqual(t, AngularDistance(math.MaxFloat32, 0), float32(180))
	assert.Equal(t, inf, AngularDistance(inf, 0))
	assert.Equal(t, inf, AngularDistance(0, -inf))
	assert.Equal(t, inf, AngularDistance(float32(math.NaN()), 0))
}

func TestCameraGeometry_ZeroWidth(t *testing.T) {
	t.Parallel()

	g := CameraGeometry{}
	assert.Equal(t, float32(0), g.DegreesPerPixel())
}
