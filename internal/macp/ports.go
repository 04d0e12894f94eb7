// ABOUTME: Port, channel and address constants for the MACP wire protocol.
// ABOUTME: Mirrors the numbering used by the on-board firmware.

package macp

// CRTP carrier for all MACP traffic.
const (
	CRTPPortMACP       = 0x09
	CRTPDefaultChannel = 0x0
)

// Reserved 4-bit addresses.
const (
	ClientAddr    = 0x0
	BroadcastAddr = 0xF
)

// MACP ports. Ports below 0x10 travel over the radio; the range from
// 0x10 upward is reserved for local inter-process traffic.
const (
	PortPosition = 0x01
	PortConsole  = 0x02
	PortCommand  = 0x03
	PortBattery  = 0x04

	LocalPortBase = 0x10
)

// Sub-ports on PortCommand selecting the command variant.
const (
	SubGoal    = 0x01
	SubTakeoff = 0x02
	SubLand    = 0x03
	SubParam   = 0x04
)

// MaxPayload is the largest payload that fits a CRTP data field after
// the 3-byte MACP header.
const MaxPayload = 28
