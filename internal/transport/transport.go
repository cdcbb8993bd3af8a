package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/hazardlink/internal/framecodec"
	"github.com/banshee-data/hazardlink/internal/httputil"
	"github.com/banshee-data/hazardlink/internal/monitoring"
)

var (
	ErrWriteFailed = errors.New("failed to write to serial port")
	// ErrShortRead means the reply frame did not arrive in full before the
	// port timed out or closed.
	ErrShortRead = errors.New("short read from serial port")
	ErrClosed    = errors.New("transport closed")
)

// SerialTransport performs half-duplex, fixed-length frame exchanges over a
// serial port. One Transfer is in flight at a time.
type SerialTransport struct {
	port     SerialPorter
	frameLen int

	mu     sync.Mutex
	closed bool

	lastMu sync.Mutex
	last   Exchange
}

// Exchange records the most recent transfer for the debug routes.
type Exchange struct {
	At  time.Time `json:"at"`
	Tx  string    `json:"tx"`
	Rx  string    `json:"rx"`
	Err string    `json:"err,omitempty"`
}

// New wraps an open port. Frames are framecodec.FrameLength bytes.
func New(port SerialPorter) *SerialTransport {
	return &SerialTransport{port: port, frameLen: framecodec.FrameLength}
}

// Open opens path with opener (OpenSerial when nil) and wraps it.
func Open(path string, opts PortOptions, opener PortOpener) (*SerialTransport, error) {
	if opener == nil {
		opener = OpenSerial
	}
	port, err := opener(path, opts)
	if err != nil {
		return nil, err
	}
	return New(port), nil
}

// Transfer writes tx and blocks until a reply of the same length has been
// read. The context is checked before the exchange starts; an exchange in
// progress is bounded by the port's read timeout instead.
func (s *SerialTransport) Transfer(ctx context.Context, tx []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(tx) != s.frameLen {
		return nil, fmt.Errorf("transfer: got %d byte frame, want %d", len(tx), s.frameLen)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	rx, err := s.exchange(tx)
	s.record(tx, rx, err)
	return rx, err
}

func (s *SerialTransport) exchange(tx []byte) ([]byte, error) {
	n, err := s.port.Write(tx)
	if err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}
	if n != len(tx) {
		return nil, ErrWriteFailed
	}

	rx := make([]byte, s.frameLen)
	if n, err := readFrame(s.port, rx); err != nil {
		return nil, fmt.Errorf("%w: %d of %d bytes: %v", ErrShortRead, n, s.frameLen, err)
	}
	return rx, nil
}

var errReadTimeout = errors.New("read timeout")

// readFrame fills buf. A (0, nil) read is how go.bug.st/serial reports an
// expired read timeout, so it ends the read instead of spinning.
func readFrame(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, errReadTimeout
		}
	}
	return n, nil
}

func (s *SerialTransport) record(tx, rx []byte, err error) {
	ex := Exchange{
		At: time.Now(),
		Tx: hex.EncodeToString(tx),
		Rx: hex.EncodeToString(rx),
	}
	if err != nil {
		ex.Err = err.Error()
	}
	s.lastMu.Lock()
	s.last = ex
	s.lastMu.Unlock()
}

// Last returns the most recent exchange.
func (s *SerialTransport) Last() Exchange {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last
}

// Close closes the underlying port. Further transfers fail with ErrClosed.
func (s *SerialTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

// AttachAdminRoutes mounts serial debugging endpoints under /debug/. These
// are served only on the local/tailnet debug listener.
func (s *SerialTransport) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("serial-last", "last frame exchange on the serial link", func(w http.ResponseWriter, r *http.Request) {
		ex := s.Last()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "at:  %s\ntx:  %s\nrx:  %s\n", ex.At.Format(time.RFC3339Nano), ex.Tx, ex.Rx)
		if ex.Err != "" {
			fmt.Fprintf(w, "err: %s\n", ex.Err)
		}
		if ex.Rx != "" {
			if raw, err := hex.DecodeString(ex.Rx); err == nil {
				report, err := framecodec.DecodeBytes(raw)
				if err != nil {
					fmt.Fprintf(w, "decode: %v\n", err)
				} else {
					fmt.Fprintf(w, "decode: %s\n", report)
				}
			}
		}
	})

	// POST hex=<32 hex chars> performs one raw exchange.
	debug.HandleSilentFunc("serial-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		raw, err := hex.DecodeString(strings.TrimSpace(r.FormValue("hex")))
		if err != nil {
			httputil.BadRequest(w, "invalid hex frame")
			return
		}
		rx, err := s.Transfer(r.Context(), raw)
		if err != nil {
			monitoring.Logf("debug serial-send failed: %v", err)
			httputil.BadGateway(w, fmt.Sprintf("transfer failed: %v", err))
			return
		}
		io.WriteString(w, hex.EncodeToString(rx))
	})
}
