package pipeline

import (
	"context"
	"errors"
	"image"
	"reflect"
	"time"

	"github.com/banshee-data/hazardlink/internal/fusion"
)

var (
	// ErrSourceStopped is returned when the camera fails a capture and
	// reports it is no longer streaming. It ends the loop.
	ErrSourceStopped = errors.New("camera source stopped streaming")
	// ErrCaptureTimeout is returned by a FrameSource whose capture timed out
	// while still streaming. The cycle is skipped.
	ErrCaptureTimeout = errors.New("camera capture timed out")
)

// FrameSource delivers camera frames.
type FrameSource interface {
	// Capture blocks for at most timeout waiting for the next frame.
	Capture(timeout time.Duration) (image.Image, error)
	IsStreaming() bool
}

// Detector runs object detection over one frame.
type Detector interface {
	Detect(img image.Image) ([]fusion.DetectionBox, error)
}

// LidarSource returns the latest complete sweep. The returned slice is owned
// by the caller for the duration of one cycle.
type LidarSource interface {
	GrabScan() ([]fusion.LidarSample, error)
}

// Transport performs one half-duplex exchange: write tx, then read exactly
// one reply of the same length. transport.SerialTransport implements it.
type Transport interface {
	Transfer(ctx context.Context, tx []byte) ([]byte, error)
}

// Recorder persists completed cycles. db.DB implements it.
type Recorder interface {
	RecordCycle(ctx context.Context, r CycleResult) error
}

// isNil reports whether v is nil or an interface holding a nil pointer, so a
// typed nil collaborator is treated as absent rather than dereferenced.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
