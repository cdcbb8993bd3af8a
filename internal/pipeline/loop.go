package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/hazardlink/internal/framecodec"
	"github.com/banshee-data/hazardlink/internal/fusion"
	"github.com/banshee-data/hazardlink/internal/timeutil"
)

// DefaultCaptureTimeout bounds each camera capture.
const DefaultCaptureTimeout = time.Second

// LoopConfig wires the collaborators and tuning for a Loop. Camera and
// Detector are required. A nil Lidar disables distance fusion and a nil
// Transport disables the peer exchange; neither is an error.
type LoopConfig struct {
	Geometry       fusion.CameraGeometry
	Matcher        fusion.Matcher
	Classifier     fusion.Classifier
	Proximity      *fusion.ProximityMonitor
	CaptureTimeout time.Duration

	Camera    FrameSource
	Detector  Detector
	Lidar     LidarSource
	Transport Transport
	Recorder  Recorder
	Status    *StatusBoard
	// Clock stamps cycles. Nil uses the wall clock.
	Clock timeutil.Clock

	// OnPeerReport is called synchronously for every valid inbound frame.
	OnPeerReport func(framecodec.PeerReport)
}

// Loop runs fusion cycles. It is not safe for concurrent use; only the
// StatusBoard may be read from other goroutines.
type Loop struct {
	cfg   LoopConfig
	runID uuid.UUID
	seq   uint64
}

// NewLoop validates cfg and returns a Loop. Zero-valued tuning fields take
// their defaults.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if isNil(cfg.Camera) {
		return nil, errors.New("pipeline: camera source is required")
	}
	if isNil(cfg.Detector) {
		return nil, errors.New("pipeline: detector is required")
	}
	if cfg.Geometry.DegreesPerPixel() == 0 {
		return nil, fmt.Errorf("pipeline: invalid camera geometry %+v", cfg.Geometry)
	}
	if isNil(cfg.Lidar) {
		cfg.Lidar = nil
		diagf("no lidar source: distance fusion disabled")
	}
	if isNil(cfg.Transport) {
		cfg.Transport = nil
		diagf("no transport: peer exchange disabled")
	}
	if isNil(cfg.Recorder) {
		cfg.Recorder = nil
	}
	if cfg.Matcher.Tolerance <= 0 {
		cfg.Matcher.Tolerance = fusion.DefaultMatchTolerance
	}
	if cfg.Matcher.Policy == "" {
		cfg.Matcher.Policy = fusion.MatchLastWins
	}
	if cfg.Classifier == (fusion.Classifier{}) {
		cfg.Classifier = fusion.DefaultClassifier()
	}
	if cfg.Proximity == nil {
		cfg.Proximity = fusion.NewProximityMonitor(nil, 0)
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = DefaultCaptureTimeout
	}
	cfg.Clock = timeutil.Or(cfg.Clock)
	return &Loop{cfg: cfg, runID: uuid.New()}, nil
}

// RunID identifies this process run in recorded cycles.
func (l *Loop) RunID() uuid.UUID { return l.runID }

// RunCycle executes one fusion cycle. Skipped cycles return a result with
// Skipped set and a nil error. The only errors are ErrSourceStopped and a
// done ctx. ctx is checked once at the start; a cycle that has begun runs
// to completion, including its transfer and record.
func (l *Loop) RunCycle(ctx context.Context) (CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}
	ctx = context.WithoutCancel(ctx)
	l.seq++
	res := CycleResult{
		RunID:    l.runID,
		CycleID:  uuid.New(),
		Seq:      l.seq,
		Started:  l.cfg.Clock.Now(),
		Outbound: fusion.EmptyObservation(),
	}

	l.grabSweep(&res)

	img, err := l.cfg.Camera.Capture(l.cfg.CaptureTimeout)
	if err != nil {
		if !l.cfg.Camera.IsStreaming() {
			opsf("camera stopped streaming: %v", err)
			return res, fmt.Errorf("%w: %v", ErrSourceStopped, err)
		}
		l.skip(ctx, &res, SkipCapture, err)
		return res, nil
	}

	dets, err := l.cfg.Detector.Detect(img)
	if err != nil {
		l.skip(ctx, &res, SkipDetect, err)
		return res, nil
	}
	res.Detections = dets
	res.Observations = make([]fusion.FusedObservation, 0, len(dets))
	for _, d := range dets {
		obs := l.cfg.Classifier.Fuse(d, l.cfg.Geometry, l.cfg.Matcher, res.Sweep)
		res.Observations = append(res.Observations, obs)
		// Single outbound slot: the last detection wins.
		res.Outbound = obs
	}

	if l.cfg.Transport != nil {
		l.exchange(ctx, &res)
	}

	l.finish(ctx, &res)
	return res, nil
}

func (l *Loop) grabSweep(res *CycleResult) {
	if l.cfg.Lidar == nil {
		return
	}
	sweep, err := l.cfg.Lidar.GrabScan()
	if err != nil {
		opsf("lidar grab failed, continuing without distances: %v", err)
		return
	}
	res.Sweep = sweep
	res.SweepValid = true
	summary := l.cfg.Proximity.Observe(sweep)
	res.Proximity = &summary
	if summary.CloseAhead {
		diagf("obstacle ahead: sweep min %.0fmm", summary.SweepMinMm)
	}
}

func (l *Loop) exchange(ctx context.Context, res *CycleResult) {
	tx, err := framecodec.EncodeObservation(res.Outbound)
	if err != nil {
		res.LinkErr = &LinkError{Kind: LinkErrorFrame, Detail: err.Error()}
		opsf("not transmitting %s: %v", res.Outbound, err)
		return
	}
	res.Tx = tx
	rx, err := l.cfg.Transport.Transfer(ctx, res.Tx.Bytes())
	if err != nil {
		res.LinkErr = &LinkError{Kind: LinkErrorTransport, Detail: err.Error()}
		opsf("peer exchange failed: %v", err)
		return
	}
	res.Transmitted = true

	peer, err := framecodec.DecodeBytes(rx)
	if err != nil {
		res.LinkErr = &LinkError{Kind: LinkErrorFrame, Detail: err.Error(), RxHex: fmt.Sprintf("%x", rx)}
		opsf("discarding peer frame %x: %v", rx, err)
		return
	}
	res.Peer = &peer
	diagf("%s", peer)
	if l.cfg.OnPeerReport != nil {
		l.cfg.OnPeerReport(peer)
	}
}

func (l *Loop) skip(ctx context.Context, res *CycleResult, reason SkipReason, err error) {
	res.Skipped = reason
	res.SkipErr = err.Error()
	opsf("cycle %d skipped at %s: %v", res.Seq, reason, err)
	l.finish(ctx, res)
}

func (l *Loop) finish(ctx context.Context, res *CycleResult) {
	res.Duration = l.cfg.Clock.Since(res.Started)
	tracef("%s", res)
	if l.cfg.Recorder != nil {
		if err := l.cfg.Recorder.RecordCycle(ctx, *res); err != nil {
			opsf("failed to record cycle %d: %v", res.Seq, err)
		}
	}
	if l.cfg.Status != nil {
		l.cfg.Status.Update(*res)
	}
}

// Run executes cycles until ctx is done or the camera stops. Cancellation
// is checked between cycles and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := l.RunCycle(ctx); err != nil {
			if errors.Is(err, ErrSourceStopped) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Close releases every collaborator that implements io.Closer. A value
// wired into several roles is closed once.
func (l *Loop) Close() error {
	var errs []error
	var closed []io.Closer
	for _, c := range []interface{}{l.cfg.Camera, l.cfg.Detector, l.cfg.Lidar, l.cfg.Transport, l.cfg.Recorder} {
		closer, ok := c.(io.Closer)
		if !ok || isNil(closer) || containsCloser(closed, closer) {
			continue
		}
		closed = append(closed, closer)
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func containsCloser(list []io.Closer, c io.Closer) bool {
	if !reflect.TypeOf(c).Comparable() {
		return false
	}
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}
