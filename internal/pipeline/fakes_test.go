package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/banshee-data/hazardlink/internal/fusion"
)

// fakeCamera hands out frames until it runs out, then reports it has stopped.
type fakeCamera struct {
	frames    int
	errs      []error // consumed before frames
	captured  int
	streaming bool
	closeErr  error
	closed    int
}

func newFakeCamera(frames int) *fakeCamera {
	return &fakeCamera{frames: frames, streaming: true}
}

func (c *fakeCamera) Capture(timeout time.Duration) (image.Image, error) {
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return nil, err
	}
	if c.captured >= c.frames {
		c.streaming = false
		return nil, errors.New("end of stream")
	}
	c.captured++
	return image.NewGray(image.Rect(0, 0, 4, 4)), nil
}

func (c *fakeCamera) IsStreaming() bool { return c.streaming }

func (c *fakeCamera) Close() error {
	c.closed++
	return c.closeErr
}

type fakeDetector struct {
	boxes [][]fusion.DetectionBox // per call; the last entry repeats
	err   error
	calls int
}

func (d *fakeDetector) Detect(img image.Image) ([]fusion.DetectionBox, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.boxes) == 0 {
		return nil, nil
	}
	i := d.calls - 1
	if i >= len(d.boxes) {
		i = len(d.boxes) - 1
	}
	return d.boxes[i], nil
}

type fakeLidar struct {
	sweep []fusion.LidarSample
	err   error
	calls int
}

func (l *fakeLidar) GrabScan() ([]fusion.LidarSample, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return append([]fusion.LidarSample(nil), l.sweep...), nil
}

// fakeTransport replies with a fixed buffer or error.
type fakeTransport struct {
	reply []byte
	err   error
	sent  [][]byte
}

func (t *fakeTransport) Transfer(ctx context.Context, tx []byte) ([]byte, error) {
	t.sent = append(t.sent, append([]byte(nil), tx...))
	if t.err != nil {
		return nil, t.err
	}
	return t.reply, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []CycleResult
	err     error
}

func (r *fakeRecorder) RecordCycle(ctx context.Context, res CycleResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return r.err
}

// centredPerson is a box straddling the image centre of a 1280px camera.
func centredPerson() fusion.DetectionBox {
	return fusion.DetectionBox{ClassID: 1, Left: 620, Right: 660, Confidence: 0.9}
}

func testGeometry() fusion.CameraGeometry {
	return fusion.CameraGeometry{WidthPixels: 1280, HorizontalFOVDegrees: 62}
}
