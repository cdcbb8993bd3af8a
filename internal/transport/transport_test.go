package transport

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hazardlink/internal/framecodec"
	"github.com/banshee-data/hazardlink/internal/fusion"
	"github.com/banshee-data/hazardlink/internal/testutil"
)

func stopFrame() framecodec.Frame {
	return framecodec.MustEncode(framecodec.TxMessage{
		Hazard: fusion.HazardStop,
		Object: fusion.ObjectPerson,
		Sector: fusion.SectorFront,
	})
}

func TestTransfer_WritesThenReadsOneFrame(t *testing.T) {
	port := NewTestableSerialPort()
	reply := framecodec.MustEncode(framecodec.TxMessage{Hazard: fusion.HazardCaution, Object: fusion.ObjectVehicle, Sector: fusion.SectorLeft})
	port.AddReadData(reply.Bytes())
	tr := New(port)

	tx := stopFrame()
	rx, err := tr.Transfer(context.Background(), tx.Bytes())
	require.NoError(t, err)

	assert.Equal(t, tx.Bytes(), port.GetWrittenData())
	assert.Equal(t, reply.Bytes(), rx)

	last := tr.Last()
	assert.Equal(t, tx.String(), last.Tx)
	assert.Equal(t, reply.String(), last.Rx)
	assert.Empty(t, last.Err)
}

func TestTransfer_ReadsInPieces(t *testing.T) {
	port := NewTestableSerialPort()
	reply := stopFrame().Bytes()
	port.AddReadData(reply[:5])
	port.AddReadData(reply[5:])

	rx, err := New(port).Transfer(context.Background(), stopFrame().Bytes())
	require.NoError(t, err)
	assert.Equal(t, reply, rx)
}

func TestTransfer_Errors(t *testing.T) {
	t.Run("short reply", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.AddReadData([]byte("$2,1"))
		_, err := New(port).Transfer(context.Background(), stopFrame().Bytes())
		assert.ErrorIs(t, err, ErrShortRead)
	})

	t.Run("read timeout", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.TimeoutReads = true
		tr := New(port)
		_, err := tr.Transfer(context.Background(), stopFrame().Bytes())
		assert.ErrorIs(t, err, ErrShortRead)
		assert.NotEmpty(t, tr.Last().Err)
	})

	t.Run("write error", func(t *testing.T) {
		port := NewTestableSerialPort()
		boom := errors.New("boom")
		port.WriteError = boom
		_, err := New(port).Transfer(context.Background(), stopFrame().Bytes())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("short write", func(t *testing.T) {
		port := NewTestableSerialPort()
		port.ShortWrite = true
		_, err := New(port).Transfer(context.Background(), stopFrame().Bytes())
		assert.ErrorIs(t, err, ErrWriteFailed)
	})

	t.Run("wrong frame length", func(t *testing.T) {
		port := NewTestableSerialPort()
		_, err := New(port).Transfer(context.Background(), []byte("$"))
		assert.Error(t, err)
		assert.Zero(t, port.WriteCalls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		port := NewTestableSerialPort()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(port).Transfer(ctx, stopFrame().Bytes())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, port.WriteCalls)
	})

	t.Run("closed", func(t *testing.T) {
		port := NewTestableSerialPort()
		tr := New(port)
		require.NoError(t, tr.Close())
		require.NoError(t, tr.Close())
		assert.True(t, port.Closed)
		_, err := tr.Transfer(context.Background(), stopFrame().Bytes())
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestLoopback_EchoesFrame(t *testing.T) {
	tr := NewLoopback()
	defer tr.Close()

	tx := stopFrame()
	for i := 0; i < 3; i++ {
		rx, err := tr.Transfer(context.Background(), tx.Bytes())
		require.NoError(t, err)
		report, err := framecodec.DecodeBytes(rx)
		require.NoError(t, err)
		assert.Equal(t, fusion.ObjectPerson, report.Object)
		assert.Equal(t, fusion.HazardStop, report.Hazard)
	}
}

func TestOpen_UsesOpener(t *testing.T) {
	port := NewTestableSerialPort()
	var gotPath string
	opener := func(path string, opts PortOptions) (SerialPorter, error) {
		gotPath = path
		return port, nil
	}
	tr, err := Open("/dev/ttyTHS1", PortOptions{}, opener)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyTHS1", gotPath)
	require.NoError(t, tr.Close())

	_, err = Open("/dev/none", PortOptions{}, func(string, PortOptions) (SerialPorter, error) {
		return nil, errors.New("no such device")
	})
	assert.Error(t, err)
}

func TestAdminRoutes(t *testing.T) {
	tr := NewLoopback()
	defer tr.Close()
	mux := http.NewServeMux()
	tr.AttachAdminRoutes(mux)

	form := url.Values{"hex": {stopFrame().String()}}
	rec := testutil.ServeDebug(mux, http.MethodPost, "/debug/serial-send", strings.NewReader(form.Encode()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, stopFrame().String(), rec.Body.String())

	rec = testutil.ServeDebug(mux, http.MethodGet, "/debug/serial-last", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "decode: peer person/stop sector=front")

	rec = testutil.ServeDebug(mux, http.MethodPost, "/debug/serial-send", strings.NewReader("hex=zz"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
