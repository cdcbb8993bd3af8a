package pipeline

import (
	"encoding/json"
	"image/png"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hazardlink/internal/framecodec"
	"github.com/banshee-data/hazardlink/internal/fusion"
	"github.com/banshee-data/hazardlink/internal/testutil"
)

func TestStatusBoard_Counters(t *testing.T) {
	b := NewStatusBoard()
	b.Update(CycleResult{Seq: 1, Skipped: SkipCapture})
	b.Update(CycleResult{
		Seq:         2,
		Detections:  []fusion.DetectionBox{centredPerson(), centredPerson()},
		SweepValid:  true,
		Sweep:       []fusion.LidarSample{{AngleDegrees: 1, DistanceMm: 100}},
		Transmitted: true,
		Peer:        &framecodec.PeerReport{},
	})
	b.Update(CycleResult{Seq: 3, Transmitted: true, LinkErr: &LinkError{Kind: LinkErrorFrame}})
	b.Update(CycleResult{Seq: 4, LinkErr: &LinkError{Kind: LinkErrorTransport}})

	s := b.Snapshot()
	want := Counters{
		Cycles:          4,
		Skipped:         1,
		Detections:      2,
		Transmitted:     2,
		PeerReports:     1,
		FrameErrors:     1,
		TransportErrors: 1,
		NoSweep:         3,
	}
	assert.Equal(t, want, s.Counters)
	require.NotNil(t, s.Last)
	assert.Equal(t, uint64(4), s.Last.Seq)

	// The sweep from cycle 2 is kept until a newer valid sweep arrives.
	sweep, _ := b.LastSweep()
	assert.Equal(t, []fusion.LidarSample{{AngleDegrees: 1, DistanceMm: 100}}, sweep)
}

func TestStatusBoard_UpdateCopiesSlices(t *testing.T) {
	b := NewStatusBoard()
	obs := []fusion.FusedObservation{{ClassID: 1}}
	sweep := []fusion.LidarSample{{AngleDegrees: 5, DistanceMm: 500}}
	b.Update(CycleResult{Observations: obs, Sweep: sweep, SweepValid: true})

	obs[0].ClassID = 99
	sweep[0].DistanceMm = 1

	gotSweep, gotObs := b.LastSweep()
	assert.Equal(t, 1, gotObs[0].ClassID)
	assert.Equal(t, float32(500), gotSweep[0].DistanceMm)
	assert.Nil(t, b.Snapshot().Last.Sweep)
}

func TestStatusBoard_AdminRoutes(t *testing.T) {
	b := NewStatusBoard()
	b.Update(CycleResult{
		Seq:          7,
		Observations: []fusion.FusedObservation{{AngleDegrees: 3, DistanceMm: 1200}},
		Outbound:     fusion.FusedObservation{AngleDegrees: 3, DistanceMm: 1200},
		SweepValid:   true,
		Sweep:        []fusion.LidarSample{{AngleDegrees: 3, DistanceMm: 1200}, {AngleDegrees: 90, DistanceMm: 3000}},
	})

	mux := http.NewServeMux()
	b.AttachAdminRoutes(mux)

	t.Run("status", func(t *testing.T) {
		rec := testutil.ServeDebug(mux, http.MethodGet, "/debug/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got Status
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, uint64(1), got.Counters.Cycles)
		require.NotNil(t, got.Last)
		assert.Equal(t, uint64(7), got.Last.Seq)
	})

	t.Run("sweep plot", func(t *testing.T) {
		rec := testutil.ServeDebug(mux, http.MethodGet, "/debug/sweep.png", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		_, err := png.Decode(rec.Body)
		assert.NoError(t, err)
	})
}
