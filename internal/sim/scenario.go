// Package sim replays recorded or hand-written scenarios through the fusion
// loop. A Replayer plays the camera, detector and lidar roles at once, so
// the whole pipeline can run on a bench without hardware.
package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/hazardlink/internal/fusion"
)

const maxScenarioFileSize = 16 * 1024 * 1024 // 16MB

// MinStepDegrees is the finest synthetic sweep resolution, 3600 samples.
const MinStepDegrees = 0.1

// Failure names understood in a frame's capture_error and lidar_error.
const (
	FailTimeout = "timeout"
	FailError   = "error"
)

// Scenario is a JSON script of camera frames and lidar sweeps.
type Scenario struct {
	Name string `json:"name"`
	// Loop restarts from the first frame instead of stopping the camera.
	Loop bool `json:"loop,omitempty"`
	// FrameInterval paces Capture, e.g. "100ms". Empty runs flat out.
	FrameInterval string  `json:"frame_interval,omitempty"`
	Frames        []Frame `json:"frames"`
}

// Frame is one camera frame and the sweep grabbed just before it.
type Frame struct {
	Detections []fusion.DetectionBox `json:"detections,omitempty"`
	Sweep      []fusion.LidarSample  `json:"sweep,omitempty"`
	// Synthetic sweep generated when Sweep is empty.
	Synthetic *SyntheticSweep `json:"synthetic,omitempty"`
	// CaptureError makes Capture fail for this frame: "timeout" or "error".
	CaptureError string `json:"capture_error,omitempty"`
	// LidarError makes GrabScan fail for this frame.
	LidarError string `json:"lidar_error,omitempty"`
	// NoLidar omits the sweep entirely for this frame.
	NoLidar bool `json:"no_lidar,omitempty"`
}

// SyntheticSweep describes a full-circle sweep at a uniform background
// distance with nearer obstacles.
type SyntheticSweep struct {
	StepDegrees  float32    `json:"step_degrees"`
	BackgroundMm float32    `json:"background_mm"`
	Obstacles    []Obstacle `json:"obstacles,omitempty"`
}

// Obstacle is an arc of returns at a fixed distance, centred on Angle.
type Obstacle struct {
	AngleDegrees float32 `json:"angle"`
	WidthDegrees float32 `json:"width"`
	DistanceMm   float32 `json:"dist"`
}

// Samples expands the sweep into lidar samples in angle order.
func (s SyntheticSweep) Samples() []fusion.LidarSample {
	step := s.StepDegrees
	if !(step > 0) {
		step = 1
	} else if step < MinStepDegrees {
		step = MinStepDegrees
	}
	n := int(360 / step)
	out := make([]fusion.LidarSample, 0, n)
	for i := 0; i < n; i++ {
		a := float32(i) * step
		d := s.BackgroundMm
		for _, o := range s.Obstacles {
			if fusion.AngularDistance(a, o.AngleDegrees) <= o.WidthDegrees/2 {
				d = o.DistanceMm
			}
		}
		out = append(out, fusion.LidarSample{AngleDegrees: a, DistanceMm: d})
	}
	return out
}

// Interval parses FrameInterval. Invalid or empty values give zero.
func (s *Scenario) Interval() time.Duration {
	if s.FrameInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(s.FrameInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Validate checks the scenario is playable.
func (s *Scenario) Validate() error {
	if len(s.Frames) == 0 {
		return fmt.Errorf("scenario %q has no frames", s.Name)
	}
	if s.FrameInterval != "" {
		if d, err := time.ParseDuration(s.FrameInterval); err != nil || d < 0 {
			return fmt.Errorf("invalid frame_interval %q", s.FrameInterval)
		}
	}
	for i, f := range s.Frames {
		for _, v := range []string{f.CaptureError, f.LidarError} {
			switch v {
			case "", FailTimeout, FailError:
			default:
				return fmt.Errorf("frame %d: unknown failure %q: expected %q or %q", i, v, FailTimeout, FailError)
			}
		}
		for j, d := range f.Detections {
			if d.Right < d.Left {
				return fmt.Errorf("frame %d detection %d: right edge %g is left of %g", i, j, d.Right, d.Left)
			}
		}
		if f.Synthetic != nil {
			if st := f.Synthetic.StepDegrees; st != 0 && (st < MinStepDegrees || st > 360) {
				return fmt.Errorf("frame %d: step_degrees %g out of range [%g,360]", i, st, MinStepDegrees)
			}
		}
		for j, smp := range f.Sweep {
			if smp.AngleDegrees < 0 || smp.AngleDegrees >= 360 || smp.DistanceMm < 0 {
				return fmt.Errorf("frame %d sample %d out of range: %+v", i, j, smp)
			}
		}
	}
	return nil
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("scenario file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat scenario file: %w", err)
	}
	if fileInfo.Size() > maxScenarioFileSize {
		return nil, fmt.Errorf("scenario file too large: %d bytes (max %d)", fileInfo.Size(), maxScenarioFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario JSON: %w", err)
	}
	if sc.Name == "" {
		sc.Name = filepath.Base(cleanPath)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}
