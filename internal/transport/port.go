// Package transport moves fixed-length frames over a half-duplex serial link:
// write one outbound frame, then read exactly one inbound frame of the same
// length.
package transport

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// go.bug.st/serial ports implement it; Read then returns (0, nil) when the
// timeout expires with nothing received.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// PortOpener opens a serial port. Tests substitute it to avoid hardware.
type PortOpener func(path string, opts PortOptions) (SerialPorter, error)
