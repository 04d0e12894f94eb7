// ABOUTME: Telemetry event and command variants exchanged with agents.
// ABOUTME: Events flow agent-to-station, commands station-to-agent.

package agent

import (
	"github.com/paulmach/orb"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/macp"
)

// TelemetryEvent is one observation originating from a single agent.
// The concrete type carries the payload; events for different agents
// are never ordered relative to each other.
type TelemetryEvent interface {
	isTelemetryEvent()
}

// PositionUpdate carries an agent position sample in meters.
type PositionUpdate struct {
	X, Y, Z float64
	// Stale marks a sample delivered after older samples were evicted
	// from a full queue, or retained from before a disconnect.
	Stale bool
}

// DebugLine carries one line of console text from the agent firmware.
type DebugLine struct {
	Text string
}

// BatteryUpdate carries the agent battery voltage.
type BatteryUpdate struct {
	Voltage float64
}

// LinkEstablished signals that the agent link came up.
type LinkEstablished struct{}

// LinkLost signals that the agent link went down. Cause is nil for a
// requested disconnect and non-nil for a transport fault.
type LinkLost struct {
	Cause error
}

func (PositionUpdate) isTelemetryEvent()  {}
func (DebugLine) isTelemetryEvent()       {}
func (BatteryUpdate) isTelemetryEvent()   {}
func (LinkEstablished) isTelemetryEvent() {}
func (LinkLost) isTelemetryEvent()        {}

// Command is one instruction the station can issue to an agent.
type Command interface {
	// Kind names the command for logs.
	Kind() string
	packet(dst uint8) (macp.Packet, error)
}

// SetGoal steers the agent toward a 2D target in meters.
type SetGoal struct {
	Target orb.Point
}

func (SetGoal) Kind() string { return "set-goal" }

func (c SetGoal) packet(dst uint8) (macp.Packet, error) {
	return macp.EncodeGoal(dst, macp.ClientAddr, c.Target.X(), c.Target.Y()), nil
}

// Takeoff commands the agent to ascend to Height meters and hover.
type Takeoff struct {
	Height float64
}

func (Takeoff) Kind() string { return "takeoff" }

func (c Takeoff) packet(dst uint8) (macp.Packet, error) {
	return macp.EncodeTakeoff(dst, macp.ClientAddr, c.Height), nil
}

// Land commands the agent to descend and stop.
type Land struct{}

func (Land) Kind() string { return "land" }

func (Land) packet(dst uint8) (macp.Packet, error) {
	return macp.EncodeLand(dst, macp.ClientAddr), nil
}

// SetParameter writes one named firmware parameter.
type SetParameter struct {
	Param string
	Value float64
}

func (SetParameter) Kind() string { return "set-parameter" }

func (c SetParameter) packet(dst uint8) (macp.Packet, error) {
	return macp.EncodeParam(dst, macp.ClientAddr, c.Param, c.Value)
}
