package pipeline

import (
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/hazardlink/internal/fusion"
	"github.com/banshee-data/hazardlink/internal/httputil"
	"github.com/banshee-data/hazardlink/internal/monitoring"
)

// Counters are cumulative since the StatusBoard was created.
type Counters struct {
	Cycles          uint64 `json:"cycles"`
	Skipped         uint64 `json:"skipped"`
	Detections      uint64 `json:"detections"`
	Transmitted     uint64 `json:"transmitted"`
	PeerReports     uint64 `json:"peer_reports"`
	FrameErrors     uint64 `json:"frame_errors"`
	TransportErrors uint64 `json:"transport_errors"`
	NoSweep         uint64 `json:"no_sweep"`
}

// Status is a point-in-time copy of the board.
type Status struct {
	Since    time.Time    `json:"since"`
	Counters Counters     `json:"counters"`
	Last     *CycleResult `json:"last,omitempty"`
}

// StatusBoard holds the latest cycle and running counters for the debug
// routes. It is the only loop state read from other goroutines.
type StatusBoard struct {
	mu        sync.Mutex
	since     time.Time
	counters  Counters
	last      *CycleResult
	lastSweep []fusion.LidarSample
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{since: time.Now()}
}

// Update folds one cycle into the board.
func (b *StatusBoard) Update(r CycleResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := &b.counters
	c.Cycles++
	if r.Skipped != SkipNone {
		c.Skipped++
	}
	c.Detections += uint64(len(r.Detections))
	if r.Transmitted {
		c.Transmitted++
	}
	if r.Peer != nil {
		c.PeerReports++
	}
	if r.LinkErr != nil {
		switch r.LinkErr.Kind {
		case LinkErrorFrame:
			c.FrameErrors++
		case LinkErrorTransport:
			c.TransportErrors++
		}
	}
	if !r.SweepValid {
		c.NoSweep++
	} else {
		b.lastSweep = append(b.lastSweep[:0], r.Sweep...)
	}

	last := r
	last.Sweep = nil
	last.Detections = append([]fusion.DetectionBox(nil), r.Detections...)
	last.Observations = append([]fusion.FusedObservation(nil), r.Observations...)
	b.last = &last
}

// Snapshot returns a copy of the board.
func (b *StatusBoard) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Status{Since: b.since, Counters: b.counters}
	if b.last != nil {
		last := *b.last
		s.Last = &last
	}
	return s
}

// LastSweep returns a copy of the most recent valid sweep and the
// observations fused against the most recent cycle.
func (b *StatusBoard) LastSweep() ([]fusion.LidarSample, []fusion.FusedObservation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sweep := append([]fusion.LidarSample(nil), b.lastSweep...)
	var obs []fusion.FusedObservation
	if b.last != nil {
		obs = append(obs, b.last.Observations...)
	}
	return sweep, obs
}

// AttachAdminRoutes mounts /debug/status and /debug/sweep.png.
func (b *StatusBoard) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("status", "Fusion loop counters and last cycle (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, b.Snapshot())
	}))
	debug.Handle("sweep.png", "Latest lidar sweep with fused detections", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sweep, obs := b.LastSweep()
		w.Header().Set("Content-Type", "image/png")
		if err := monitoring.PlotSweep(w, sweep, obs); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
}
