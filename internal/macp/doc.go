// Package macp implements the wire codec for the Multi Agent Communication
// Protocol used between the base station and the Crazyflies.
//
// # Frame Layout
//
// Every MACP frame starts with a 3-byte header followed by the payload:
//
//	byte 0: address header, destination ID in the high nibble,
//	        sender ID in the low nibble
//	byte 1: MACP port
//	byte 2: MACP sub-port
//
// Multi-byte payload values are little-endian float32, matching the
// on-board firmware. All MACP traffic travels on CRTP port 0x09.
//
// # Addressing
//
// Agent IDs are 4-bit values. Two addresses are reserved:
//
//   - 0x0: the base station client itself
//   - 0xF: broadcast to every connected agent
//
// # Ports
//
// Telemetry arrives on PortPosition, PortConsole and PortBattery.
// Outgoing commands are sent on PortCommand, with the sub-port selecting
// the command variant (goal, takeoff, land, parameter set).
package macp
