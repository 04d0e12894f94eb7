// ABOUTME: Connection state machine values and agent state snapshots.
// ABOUTME: Snapshots are immutable copies safe to hand to subscribers.

package agent

import "github.com/paulmach/orb"

// ConnState is the link state of one agent session.
type ConnState int

const (
	// StateDisconnected is the initial state and the result of a clean
	// disconnect.
	StateDisconnected ConnState = iota
	// StateConnecting means a transport connect is in flight.
	StateConnecting
	// StateConnected means telemetry flows and commands are accepted.
	StateConnected
	// StateFaulted means the link died on a transport error. A faulted
	// session is never revived; reconnecting replaces it.
	StateFaulted
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// active reports whether the state counts against mode changes and
// reconfiguration.
func (s ConnState) active() bool {
	return s == StateConnecting || s == StateConnected
}

// AgentState is a point-in-time snapshot of one agent.
type AgentState struct {
	Conn ConnState

	// Last known position in meters. HavePosition is false until the
	// first sample arrives.
	X, Y, Z      float64
	HavePosition bool

	// Goal is the last accepted set-goal target, nil if none was issued.
	Goal *orb.Point

	// Console is the last console line received.
	Console string

	// Battery is the last reported voltage, zero until the first sample.
	Battery float64

	// Stale is set while the position predates a disconnect or queue
	// eviction.
	Stale bool

	// Malformed counts inbound frames dropped as undecodable.
	Malformed uint64
}

// StateChange notifies subscribers that an agent changed state.
type StateChange struct {
	Identity Identity
	State    AgentState
}
