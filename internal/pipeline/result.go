package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/hazardlink/internal/framecodec"
	"github.com/banshee-data/hazardlink/internal/fusion"
)

// SkipReason names the stage that ended a cycle early.
type SkipReason string

const (
	SkipNone    SkipReason = ""
	SkipCapture SkipReason = "capture"
	SkipDetect  SkipReason = "detect"
)

// LinkErrorKind classifies a failed peer exchange.
type LinkErrorKind string

const (
	LinkErrorTransport LinkErrorKind = "transport"
	LinkErrorFrame     LinkErrorKind = "frame"
)

// LinkError describes a discarded peer exchange.
type LinkError struct {
	Kind   LinkErrorKind `json:"kind"`
	Detail string        `json:"detail"`
	RxHex  string        `json:"rx_hex,omitempty"`
}

// CycleResult is everything one fusion cycle produced. It is owned by the
// caller of RunCycle; the loop keeps no reference to its slices.
type CycleResult struct {
	RunID    uuid.UUID     `json:"run_id"`
	CycleID  uuid.UUID     `json:"cycle_id"`
	Seq      uint64        `json:"seq"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`

	Skipped SkipReason `json:"skipped,omitempty"`
	SkipErr string     `json:"skip_error,omitempty"`

	Detections   []fusion.DetectionBox     `json:"detections"`
	Observations []fusion.FusedObservation `json:"observations"`
	// Outbound is the observation placed in the single transmit slot: the
	// last detection of the cycle, or the empty report.
	Outbound fusion.FusedObservation `json:"outbound"`

	SweepValid bool                     `json:"sweep_valid"`
	Sweep      []fusion.LidarSample     `json:"-"`
	Proximity  *fusion.ProximitySummary `json:"proximity,omitempty"`

	Transmitted bool                   `json:"transmitted"`
	Tx          framecodec.Frame       `json:"-"`
	Peer        *framecodec.PeerReport `json:"peer,omitempty"`
	LinkErr     *LinkError             `json:"link_error,omitempty"`
}

// TxHex is the transmitted frame as hex, or "" when nothing was sent.
func (r CycleResult) TxHex() string {
	if !r.Transmitted {
		return ""
	}
	return r.Tx.String()
}

func (r CycleResult) String() string {
	if r.Skipped != SkipNone {
		return fmt.Sprintf("cycle %d skipped at %s: %s", r.Seq, r.Skipped, r.SkipErr)
	}
	s := fmt.Sprintf("cycle %d: %d detections, out=%s", r.Seq, len(r.Detections), r.Outbound)
	if r.Peer != nil {
		s += ", " + r.Peer.String()
	}
	if r.LinkErr != nil {
		s += fmt.Sprintf(", link %s error: %s", r.LinkErr.Kind, r.LinkErr.Detail)
	}
	return s
}
