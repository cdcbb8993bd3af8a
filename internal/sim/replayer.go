package sim

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/banshee-data/hazardlink/internal/fusion"
	"github.com/banshee-data/hazardlink/internal/monitoring"
	"github.com/banshee-data/hazardlink/internal/pipeline"
	"github.com/banshee-data/hazardlink/internal/timeutil"
)

var (
	// ErrExhausted is returned once a non-looping scenario has played its
	// last frame.
	ErrExhausted = errors.New("scenario exhausted")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("replayer closed")

	errScriptedCapture = errors.New("scripted capture failure")
	errScriptedLidar   = errors.New("scripted lidar failure")
	errNoSweep         = errors.New("no lidar sweep for frame")
)

const (
	snapshotWidth  = 64
	snapshotHeight = 48
)

// Snapshot is the image handed to the detector. It carries the index of the
// scenario frame it came from so Detect can look the boxes up.
type Snapshot struct {
	*image.Gray
	Index int
}

// Replayer plays a Scenario as camera, detector and lidar at once.
type Replayer struct {
	sc       *Scenario
	interval time.Duration
	clock    timeutil.Clock

	mu      sync.Mutex
	next    int
	played  int
	stopped bool
	closed  bool
}

// NewReplayer returns a replayer positioned at the first frame.
func NewReplayer(sc *Scenario) (*Replayer, error) {
	if sc == nil {
		return nil, fmt.Errorf("nil scenario")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &Replayer{sc: sc, interval: sc.Interval(), clock: timeutil.RealClock{}}, nil
}

// SetClock replaces the clock used to pace frames. Call before playing.
func (r *Replayer) SetClock(c timeutil.Clock) {
	r.clock = timeutil.Or(c)
}

// upcoming returns the index of the frame the next Capture will deliver, or
// -1 when the scenario is exhausted. Caller holds mu.
func (r *Replayer) upcoming() int {
	if r.next < len(r.sc.Frames) {
		return r.next
	}
	if r.sc.Loop {
		return 0
	}
	return -1
}

// GrabScan returns the sweep scripted for the upcoming frame. The loop grabs
// the sweep before capturing, so the pair stays aligned.
func (r *Replayer) GrabScan() ([]fusion.LidarSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	i := r.upcoming()
	if i < 0 {
		return nil, ErrExhausted
	}
	f := r.sc.Frames[i]
	switch {
	case f.LidarError != "":
		return nil, fmt.Errorf("frame %d: %w (%s)", i, errScriptedLidar, f.LidarError)
	case f.NoLidar:
		return nil, fmt.Errorf("frame %d: %w", i, errNoSweep)
	case len(f.Sweep) > 0:
		out := make([]fusion.LidarSample, len(f.Sweep))
		copy(out, f.Sweep)
		return out, nil
	case f.Synthetic != nil:
		return f.Synthetic.Samples(), nil
	}
	return nil, fmt.Errorf("frame %d: %w", i, errNoSweep)
}

// Capture delivers the next frame. A frame interval longer than timeout
// yields pipeline.ErrCaptureTimeout without consuming the frame.
func (r *Replayer) Capture(timeout time.Duration) (image.Image, error) {
	if r.interval > 0 {
		wait := r.interval
		if timeout > 0 && timeout < wait {
			r.clock.Sleep(timeout)
			return nil, pipeline.ErrCaptureTimeout
		}
		r.clock.Sleep(wait)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	i := r.upcoming()
	if i < 0 {
		r.stopped = true
		return nil, ErrExhausted
	}
	r.next = i + 1
	r.played++
	f := r.sc.Frames[i]
	monitoring.Debugf("sim %s: frame %d (%d detections)", r.sc.Name, i, len(f.Detections))

	switch f.CaptureError {
	case FailTimeout:
		return nil, pipeline.ErrCaptureTimeout
	case FailError:
		return nil, fmt.Errorf("frame %d: %w", i, errScriptedCapture)
	}
	return newSnapshot(i), nil
}

func newSnapshot(i int) *Snapshot {
	img := image.NewGray(image.Rect(0, 0, snapshotWidth, snapshotHeight))
	shade := color.Gray{Y: uint8(i * 37)}
	for y := 0; y < snapshotHeight; y++ {
		for x := 0; x < snapshotWidth; x++ {
			img.SetGray(x, y, shade)
		}
	}
	return &Snapshot{Gray: img, Index: i}
}

// IsStreaming is false once the scenario is exhausted or the replayer closed.
func (r *Replayer) IsStreaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.stopped && !r.closed
}

// Detect returns the boxes scripted for the frame the snapshot came from.
func (r *Replayer) Detect(img image.Image) ([]fusion.DetectionBox, error) {
	snap, ok := img.(*Snapshot)
	if !ok {
		return nil, fmt.Errorf("sim detector: unexpected image type %T", img)
	}
	if snap.Index < 0 || snap.Index >= len(r.sc.Frames) {
		return nil, fmt.Errorf("sim detector: frame %d out of range", snap.Index)
	}
	dets := r.sc.Frames[snap.Index].Detections
	out := make([]fusion.DetectionBox, len(dets))
	copy(out, dets)
	return out, nil
}

// Played returns how many frames Capture has consumed, including failed ones.
func (r *Replayer) Played() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.played
}

// Close stops the replayer. It is safe to call more than once.
func (r *Replayer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
