// Package agent manages the roster of flying agents and their links.
//
// # Overview
//
// The agent package owns the lifecycle of every configured agent: the
// fixed identity assigned at configuration time, the session driving
// one radio link, the registry coordinating all sessions, and the mode
// controller that decides whether new links use the real radio or the
// simulator.
//
// # Registry
//
// The Registry tracks all configured agents:
//
//	reg := agent.NewRegistry(logger, modes, router)
//
// Key operations:
//
//   - Configure(roster): Install the agent roster (max 8 entries)
//   - ConnectAgent(ctx, uri): Bring up one agent link
//   - DisconnectAgent(uri): Tear one link down cleanly
//   - Send(uri, cmd): Route a command to one agent
//   - State(uri): Snapshot one agent's current state
//   - SubscribeStates(ctx): Receive state change notifications
//
// # Session
//
// A Session owns exactly one transport link and moves through
//
//	connecting -> connected -> (disconnected | faulted)
//
// in one direction only. Once a session has left the connected state
// it is dead; reconnecting an agent replaces the session object. The
// last known position and console line survive the replacement and
// stay flagged stale until fresh telemetry arrives.
//
// Commands are rejected with ErrNotConnected unless the session is
// connected. Inbound frames that fail to decode are dropped and
// counted; they never tear the link down.
//
// # Isolation
//
// Each session runs its own read loop. A fault, stall or burst on one
// agent's link never blocks another agent's session: telemetry is
// handed to the sink per event and state fan-out is non-blocking.
package agent
