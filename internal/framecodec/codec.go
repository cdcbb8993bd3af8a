// Package framecodec encodes and decodes the fixed-length frames exchanged
// with the peer over the half-duplex serial link.
//
// A frame is FrameLength bytes:
//
//	offset  0      preamble '$'
//	offset  1      hazard level digit
//	offset  2      separator ','
//	offset  3      object type digit
//	offset  4      separator ','
//	offset  5      sector digit
//	offset  6      separator ','
//	offset  7      asterisk '*'
//	offset  8..9   checksum, two upper-case hex digits
//	offset 10..15  padding, zero
//
// The checksum is the XOR of every byte between the preamble and the
// asterisk, both exclusive. Outbound and inbound frames share this layout but
// carry different schemas: TxMessage describes this vehicle's observation,
// PeerReport describes what another vehicle reported.
package framecodec

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/banshee-data/hazardlink/internal/fusion"
)

const (
	Preamble  byte = '$'
	Separator byte = ','
	Asterisk  byte = '*'
)

// Field offsets. Both ends agree on these; there is no version byte.
const (
	OffsetPreamble  = 0
	OffsetHazard    = 1
	OffsetSep1      = 2
	OffsetObject    = 3
	OffsetSep2      = 4
	OffsetSector    = 5
	OffsetSep3      = 6
	OffsetAsterisk  = 7
	OffsetChecksumH = 8
	OffsetChecksumL = 9

	PayloadLength = 10
	PaddingLength = 6
	FrameLength   = PayloadLength + PaddingLength
)

var (
	// ErrMalformed means the frame failed sync (preamble/asterisk) or carried
	// a field value outside its schema. The frame is discarded.
	ErrMalformed = errors.New("malformed frame")
	// ErrChecksumMismatch means the checksum bytes were not hex or did not
	// match the payload.
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	// ErrInvalidField means an outbound message carried an enum value with
	// no wire digit. Nothing is encoded.
	ErrInvalidField = errors.New("invalid frame field")
)

// Frame is one wire buffer. It is a value type: each cycle builds its own.
type Frame [FrameLength]byte

// String renders the frame as hex for logs and debug pages.
func (f Frame) String() string {
	return hex.EncodeToString(f[:])
}

// Bytes returns a copy of the frame as a slice for the transport.
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameLength)
	copy(b, f[:])
	return b
}

// FrameFromBytes copies a received buffer into a Frame. The buffer must be
// exactly FrameLength bytes.
func FrameFromBytes(b []byte) (Frame, error) {
	var f Frame
	if len(b) != FrameLength {
		return f, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformed, len(b), FrameLength)
	}
	copy(f[:], b)
	return f, nil
}

// TxMessage is the outbound schema: this vehicle's fused observation.
type TxMessage struct {
	Hazard fusion.HazardLevel
	Object fusion.ObjectType
	Sector fusion.Sector
}

// TxFromObservation selects the transmitted fields of an observation.
func TxFromObservation(o fusion.FusedObservation) TxMessage {
	return TxMessage{Hazard: o.Hazard, Object: o.Object, Sector: o.Sector}
}

// PeerReport is the inbound schema: another vehicle's report.
type PeerReport struct {
	Hazard fusion.HazardLevel `json:"hazard"`
	Object fusion.ObjectType  `json:"object"`
	Sector fusion.Sector      `json:"sector"`
}

func (p PeerReport) String() string {
	return fmt.Sprintf("peer %s/%s sector=%s", p.Object, p.Hazard, p.Sector)
}

// Validate checks every field has a defined wire digit.
func (m TxMessage) Validate() error {
	switch {
	case !m.Hazard.Valid():
		return fmt.Errorf("%w: hazard %d", ErrInvalidField, uint8(m.Hazard))
	case !m.Object.Valid():
		return fmt.Errorf("%w: object %d", ErrInvalidField, uint8(m.Object))
	case !m.Sector.Valid():
		return fmt.Errorf("%w: sector %d", ErrInvalidField, uint8(m.Sector))
	}
	return nil
}

// Encode builds an outbound frame. Enum values are written as single ASCII
// digits; a message that fails Validate is rejected.
func Encode(m TxMessage) (Frame, error) {
	var f Frame
	if err := m.Validate(); err != nil {
		return f, err
	}
	f[OffsetPreamble] = Preamble
	f[OffsetHazard] = digit(uint8(m.Hazard))
	f[OffsetSep1] = Separator
	f[OffsetObject] = digit(uint8(m.Object))
	f[OffsetSep2] = Separator
	f[OffsetSector] = digit(uint8(m.Sector))
	f[OffsetSep3] = Separator
	f[OffsetAsterisk] = Asterisk

	sum := Checksum(f)
	f[OffsetChecksumH] = HexDigit(sum >> 4)
	f[OffsetChecksumL] = HexDigit(sum & 0x0f)
	// padding stays zero
	return f, nil
}

// MustEncode is like Encode but panics on an invalid message. It is meant
// for fixed values known to be valid.
func MustEncode(m TxMessage) Frame {
	f, err := Encode(m)
	if err != nil {
		panic(err)
	}
	return f
}

// EncodeObservation is Encode(TxFromObservation(o)).
func EncodeObservation(o fusion.FusedObservation) (Frame, error) {
	return Encode(TxFromObservation(o))
}

// Decode validates and parses an inbound frame. Sync markers are checked
// first, then the checksum; no field is read before both pass.
func Decode(f Frame) (PeerReport, error) {
	if f[OffsetPreamble] != Preamble {
		return PeerReport{}, fmt.Errorf("%w: preamble 0x%02x", ErrMalformed, f[OffsetPreamble])
	}
	if f[OffsetAsterisk] != Asterisk {
		return PeerReport{}, fmt.Errorf("%w: asterisk 0x%02x", ErrMalformed, f[OffsetAsterisk])
	}

	hi, okH := ParseHexDigit(f[OffsetChecksumH])
	lo, okL := ParseHexDigit(f[OffsetChecksumL])
	if !okH || !okL {
		return PeerReport{}, fmt.Errorf("%w: checksum bytes %q", ErrChecksumMismatch, f[OffsetChecksumH:OffsetChecksumL+1])
	}
	if want, got := hi<<4|lo, Checksum(f); want != got {
		return PeerReport{}, fmt.Errorf("%w: frame says %02X, payload is %02X", ErrChecksumMismatch, want, got)
	}

	hazard, okH := parseDigit(f[OffsetHazard])
	object, okO := parseDigit(f[OffsetObject])
	sector, okS := parseDigit(f[OffsetSector])
	r := PeerReport{
		Hazard: fusion.HazardLevel(hazard),
		Object: fusion.ObjectType(object),
		Sector: fusion.Sector(sector),
	}
	if !okH || !okO || !okS || !r.Hazard.Valid() || !r.Object.Valid() || !r.Sector.Valid() {
		return PeerReport{}, fmt.Errorf("%w: fields %q", ErrMalformed, f[OffsetHazard:OffsetAsterisk])
	}
	return r, nil
}

// DecodeBytes decodes a transport buffer.
func DecodeBytes(b []byte) (PeerReport, error) {
	f, err := FrameFromBytes(b)
	if err != nil {
		return PeerReport{}, err
	}
	return Decode(f)
}

// Checksum XORs the payload bytes between the preamble and the asterisk.
func Checksum(f Frame) byte {
	var sum byte
	for _, b := range f[OffsetPreamble+1 : OffsetAsterisk] {
		sum ^= b
	}
	return sum
}

// HexDigit encodes the low nibble of n as '0'-'9' or 'A'-'F'.
func HexDigit(n byte) byte {
	n &= 0x0f
	if n < 10 {
		return '0' + n
	}
	return 'A' + n - 10
}

// ParseHexDigit is the inverse of HexDigit. Anything else, including
// lower-case letters, is rejected.
func ParseHexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// digit expects a validated value in 0-9.
func digit(v uint8) byte {
	return '0' + v
}

func parseDigit(c byte) (uint8, bool) {
	if c < '0' || c > '9' {
		return 0, false
	}
	return c - '0', true
}
