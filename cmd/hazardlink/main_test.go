package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hazardlink/internal/config"
	"github.com/banshee-data/hazardlink/internal/db"
	"github.com/banshee-data/hazardlink/internal/testutil"
)

const benchScenario = `{
  "name": "bench",
  "frames": [
    {
      "detections": [{"class_id": 1, "left": 620, "right": 660}],
      "sweep": [{"angle": 0.2, "dist": 1500}, {"angle": 180, "dist": 4000}]
    },
    {"capture_error": "timeout"},
    {"synthetic": {"step_degrees": 10, "background_mm": 5000}}
  ]
}`

func TestParseFlags_Defaults(t *testing.T) {
	o, rest, err := parseFlags(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, defaultDBPath, o.dbPath)
	assert.Equal(t, "/dev/ttyUSB0", o.serialPath)
	assert.False(t, o.loopback)
	assert.False(t, o.once)
	assert.Empty(t, o.listen)
}

func TestParseFlags_DevAliasesLoopback(t *testing.T) {
	o, rest, err := parseFlags([]string{"-dev", "migrate", "up"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, o.loopback)
	assert.Equal(t, []string{"migrate", "up"}, rest)
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &out, &bytes.Buffer{}))
	assert.True(t, strings.HasPrefix(out.String(), "hazardlink "), out.String())
}

func TestRun_UnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"frobnicate"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown command")
}

func TestRun_RequiresScenario(t *testing.T) {
	err := run(context.Background(), []string{"-disable-serial", "-db", ""}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "-scenario is required")
}

func TestRun_BadSerialDevice(t *testing.T) {
	scenario := testutil.WriteTempFile(t, "bench.json", benchScenario)
	missing := filepath.Join(t.TempDir(), "no-such-tty")

	var out bytes.Buffer
	err := run(context.Background(), []string{"-scenario", scenario, "-serial", missing, "-db", "", "-once"}, &out, &bytes.Buffer{})
	require.NoError(t, err, "an unavailable link degrades instead of stopping the process")
	assert.Contains(t, out.String(), "cycle 1: 1 detections, out=person/stop")
	assert.NotContains(t, out.String(), "peer")
	assert.NotContains(t, out.String(), "link")
}

func TestWire_BadSerialDeviceLeavesLinkNil(t *testing.T) {
	scenario := testutil.WriteTempFile(t, "bench.json", benchScenario)
	missing := filepath.Join(t.TempDir(), "no-such-tty")
	opts, _, err := parseFlags([]string{"-scenario", scenario, "-serial", missing, "-db", ""}, &bytes.Buffer{})
	require.NoError(t, err)

	a, err := wire(opts, config.DefaultFusionConfig())
	require.NoError(t, err)
	defer a.loop.Close()
	assert.Nil(t, a.link)

	res, err := a.loop.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Transmitted)
	assert.Nil(t, res.LinkErr)
}

func TestRun_Migrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cycles.db")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-db", dbPath, "migrate", "up"}, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "All migrations applied")
	assert.Contains(t, out.String(), "Dirty: false")
}

func TestRun_Once(t *testing.T) {
	scenario := testutil.WriteTempFile(t, "bench.json", benchScenario)
	dbPath := filepath.Join(t.TempDir(), "cycles.db")

	var out, errOut bytes.Buffer
	err := run(context.Background(), []string{"-scenario", scenario, "-loopback", "-db", dbPath, "-once"}, &out, &errOut)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "cycle 1: 1 detections")
	assert.Contains(t, out.String(), "peer")

	store, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer store.Close()
	rows, err := store.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	wantPrefix := hex.EncodeToString([]byte("$2,1,2,*1D"))
	assert.True(t, strings.HasPrefix(rows[0].TxHex, wantPrefix), "tx = %s", rows[0].TxHex)
	require.NotNil(t, rows[0].Peer)
}

func TestRun_ReplaysToEnd(t *testing.T) {
	scenario := testutil.WriteTempFile(t, "bench.json", benchScenario)
	dbPath := filepath.Join(t.TempDir(), "cycles.db")

	err := run(context.Background(), []string{"-scenario", scenario, "-loopback", "-db", dbPath}, &bytes.Buffer{}, &bytes.Buffer{})
	require.NoError(t, err, "an exhausted scenario is a clean exit")

	store, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer store.Close()
	rows, err := store.RecentCycles(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestRun_CancelledContext(t *testing.T) {
	scenario := testutil.WriteTempFile(t, "bench.json", benchScenario)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, []string{"-scenario", scenario, "-disable-serial", "-db", ""}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.NoError(t, err)
}

func TestApp_AdminRoutes(t *testing.T) {
	scenario := testutil.WriteTempFile(t, "bench.json", benchScenario)
	opts, _, err := parseFlags([]string{"-scenario", scenario, "-loopback", "-db", filepath.Join(t.TempDir(), "c.db")}, &bytes.Buffer{})
	require.NoError(t, err)

	a, err := wire(opts, config.DefaultFusionConfig())
	require.NoError(t, err)
	defer a.loop.Close()

	_, err = a.loop.RunCycle(context.Background())
	require.NoError(t, err)

	mux := http.NewServeMux()
	require.NoError(t, a.attachAdminRoutes(mux))

	for _, path := range []string{"/debug/status", "/debug/serial-last", "/debug/sweep.png", "/debug/backup"} {
		rec := testutil.ServeDebug(mux, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
