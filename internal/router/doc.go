// Package router dispatches per-agent telemetry to typed sinks.
//
// Every agent gets one bounded FIFO queue and one worker goroutine.
// The worker model gives two guarantees: events of a single agent
// reach the sinks in the order they were published, and no agent can
// delay another agent's delivery, no matter how bursty its link or how
// slow its sink is.
//
// When a queue overflows, console lines are evicted before position
// samples, and evicting a position flags the next delivered position
// as stale so consumers know samples were lost. Battery samples are
// evicted only as a last resort; link status events never are.
package router
