// ABOUTME: Typed encoders for commands and decoders for telemetry payloads.
// ABOUTME: Malformed payloads produce errors, never partial values.

package macp

import (
	"fmt"
	"unicode/utf8"
)

// EncodeGoal builds a set-goal command frame carrying an (x, y) target in
// meters.
func EncodeGoal(dst, src uint8, x, y float64) Packet {
	payload := make([]byte, 0, 8)
	payload = putFloat32(payload, x)
	payload = putFloat32(payload, y)
	return Packet{DstID: dst, SrcID: src, Port: PortCommand, SubPort: SubGoal, Payload: payload}
}

// EncodeTakeoff builds a takeoff command frame with the target hover
// height in meters.
func EncodeTakeoff(dst, src uint8, height float64) Packet {
	return Packet{DstID: dst, SrcID: src, Port: PortCommand, SubPort: SubTakeoff, Payload: putFloat32(nil, height)}
}

// EncodeLand builds a land command frame.
func EncodeLand(dst, src uint8) Packet {
	return Packet{DstID: dst, SrcID: src, Port: PortCommand, SubPort: SubLand}
}

// EncodeParam builds a parameter-set command frame. The payload is a
// length-prefixed parameter name followed by a float32 value.
// Returns ErrPayloadTooLarge if the name does not fit a CRTP frame.
func EncodeParam(dst, src uint8, name string, value float64) (Packet, error) {
	if len(name) > MaxPayload-5 {
		return Packet{}, fmt.Errorf("%w: parameter name %q", ErrPayloadTooLarge, name)
	}

	payload := make([]byte, 0, 1+len(name)+4)
	payload = append(payload, byte(len(name)))
	payload = append(payload, name...)
	payload = putFloat32(payload, value)
	return Packet{DstID: dst, SrcID: src, Port: PortCommand, SubPort: SubParam, Payload: payload}, nil
}

// DecodePosition parses a position telemetry payload: three little-endian
// float32 values for x, y, z in meters.
func DecodePosition(p Packet) (x, y, z float64, err error) {
	if len(p.Payload) != 12 {
		return 0, 0, 0, fmt.Errorf("%w: position payload is %d bytes, want 12", ErrBadPayload, len(p.Payload))
	}
	return readFloat32(p.Payload, 0), readFloat32(p.Payload, 4), readFloat32(p.Payload, 8), nil
}

// DecodeConsole parses a console text payload. The firmware sends raw
// UTF-8; anything else is rejected as malformed.
func DecodeConsole(p Packet) (string, error) {
	if !utf8.Valid(p.Payload) {
		return "", fmt.Errorf("%w: console payload is not valid UTF-8", ErrBadPayload)
	}
	return string(p.Payload), nil
}

// DecodeBattery parses a battery telemetry payload: one little-endian
// float32 voltage.
func DecodeBattery(p Packet) (float64, error) {
	if len(p.Payload) != 4 {
		return 0, fmt.Errorf("%w: battery payload is %d bytes, want 4", ErrBadPayload, len(p.Payload))
	}
	return readFloat32(p.Payload, 0), nil
}
