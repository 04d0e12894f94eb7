// ABOUTME: Encoding and parsing of raw MACP frames.
// ABOUTME: Handles the 3-byte address/port header and payload bounds checks.

package macp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrTruncated indicates a frame shorter than the MACP header.
var ErrTruncated = errors.New("macp: truncated frame")

// ErrPayloadTooLarge indicates a payload exceeding the CRTP data field.
var ErrPayloadTooLarge = errors.New("macp: payload too large")

// ErrBadPayload indicates a payload whose length does not match the
// port's expected layout.
var ErrBadPayload = errors.New("macp: malformed payload")

// HeaderSize is the fixed MACP header length in bytes.
const HeaderSize = 3

// Packet is one decoded MACP frame.
type Packet struct {
	DstID   uint8
	SrcID   uint8
	Port    uint8
	SubPort uint8
	Payload []byte
}

// Marshal serializes the packet into wire format.
// Returns ErrPayloadTooLarge if the payload exceeds MaxPayload.
func (p Packet) Marshal() ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Payload))
	}

	frame := make([]byte, HeaderSize+len(p.Payload))
	frame[0] = (p.DstID&0x0F)<<4 | (p.SrcID & 0x0F)
	frame[1] = p.Port
	frame[2] = p.SubPort
	copy(frame[HeaderSize:], p.Payload)
	return frame, nil
}

// Unmarshal parses a wire frame into a Packet. The payload slice aliases
// the input. Returns ErrTruncated if the frame is shorter than the header.
func Unmarshal(frame []byte) (Packet, error) {
	if len(frame) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrTruncated, len(frame))
	}

	return Packet{
		DstID:   (frame[0] & 0xF0) >> 4,
		SrcID:   frame[0] & 0x0F,
		Port:    frame[1],
		SubPort: frame[2],
		Payload: frame[HeaderSize:],
	}, nil
}

// readFloat32 decodes a little-endian float32 at offset off.
func readFloat32(payload []byte, off int) float64 {
	bits := binary.LittleEndian.Uint32(payload[off : off+4])
	return float64(math.Float32frombits(bits))
}

// putFloat32 appends v as a little-endian float32.
func putFloat32(payload []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint32(payload, math.Float32bits(float32(v)))
}
