// Package station assembles the ground-station core.
//
// A Station wires the validated configuration into the agent registry,
// the two transport backends behind the mode controller, the telemetry
// router, the flight commander and the map coordinate model, and
// exposes the operation surface a display layer consumes: connect and
// disconnect agents, issue goals from map clicks, take off and land,
// and subscribe to telemetry and state changes.
package station
