// ABOUTME: Per-agent link session: owns one Link and its state machine.
// ABOUTME: Decodes inbound frames to telemetry events and gates outbound commands.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/macp"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/transport"
)

// ErrNotConnected indicates a command was issued to an agent whose
// session is not in the connected state.
var ErrNotConnected = errors.New("agent not connected")

// Session drives one agent link through
// connecting -> connected -> (disconnected | faulted). A session is
// single-use: once it leaves the connected state it never re-enters it.
type Session struct {
	identity Identity
	logger   *slog.Logger

	onEvent func(Identity, TelemetryEvent)
	onState func(Identity, AgentState)

	// cancel aborts the in-flight Transport.Connect.
	cancel context.CancelFunc

	mu        sync.Mutex
	conn      ConnState
	link      transport.Link
	closing   bool
	state     AgentState
	malformed uint64

	done chan struct{}
}

// newSession creates a session in the connecting state. prev seeds the
// snapshot with the last known readings of an earlier session for the
// same agent; they stay marked stale until fresh telemetry arrives.
func newSession(identity Identity, prev AgentState, cancel context.CancelFunc, logger *slog.Logger, onEvent func(Identity, TelemetryEvent), onState func(Identity, AgentState)) *Session {
	st := prev
	st.Conn = StateConnecting
	st.Stale = st.HavePosition
	st.Malformed = 0
	return &Session{
		identity: identity,
		cancel:   cancel,
		logger:   logger.With("uri", identity.URI, "agent_id", identity.ID),
		onEvent:  onEvent,
		onState:  onState,
		conn:     StateConnecting,
		state:    st,
		done:     make(chan struct{}),
	}
}

// State returns the current link state.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Snapshot returns a copy of the agent state.
func (s *Session) Snapshot() AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() AgentState {
	st := s.state
	st.Conn = s.conn
	st.Malformed = s.malformed
	if st.Goal != nil {
		g := *st.Goal
		st.Goal = &g
	}
	return st
}

// attach binds the connected link and starts the read loop. A link
// arriving after Close is discarded and the session ends disconnected.
// The establishment event is published before the read loop starts so
// no telemetry can precede it.
func (s *Session) attach(link transport.Link) {
	s.mu.Lock()
	if s.closing {
		s.conn = StateDisconnected
		s.state.Stale = s.state.HavePosition
		snap := s.snapshotLocked()
		s.mu.Unlock()

		link.Close()
		close(s.done)

		s.logger.Info("link discarded, session closed during connect")
		s.onState(s.identity, snap)
		return
	}
	s.link = link
	s.conn = StateConnected
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("link established")
	s.onEvent(s.identity, LinkEstablished{})
	s.onState(s.identity, snap)
	go s.run()
}

// abort records a failed connect attempt.
func (s *Session) abort(err error) {
	s.mu.Lock()
	s.conn = StateDisconnected
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	close(s.done)

	s.logger.Warn("connect failed", "error", err)
	s.onState(s.identity, snap)
}

// Send encodes and transmits a command. Fails with ErrNotConnected
// unless the session is connected; a successful set-goal updates the
// stored goal.
func (s *Session) Send(cmd Command) error {
	s.mu.Lock()
	if s.conn != StateConnected {
		conn := s.conn
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotConnected, s.identity.URI, conn)
	}
	link := s.link
	s.mu.Unlock()

	pkt, err := cmd.packet(s.identity.ID)
	if err != nil {
		return fmt.Errorf("encode %s for %s: %w", cmd.Kind(), s.identity.URI, err)
	}
	frame, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("encode %s for %s: %w", cmd.Kind(), s.identity.URI, err)
	}
	if err := link.Send(frame); err != nil {
		return fmt.Errorf("send %s to %s: %w", cmd.Kind(), s.identity.URI, err)
	}

	if g, ok := cmd.(SetGoal); ok {
		s.mu.Lock()
		target := g.Target
		s.state.Goal = &target
		s.mu.Unlock()
	}

	s.logger.Debug("command sent", "command", cmd.Kind())
	return nil
}

// Close requests a clean disconnect and waits for the session to
// reach a terminal state. Safe to call in any state: closing a
// connecting session cancels the in-flight connect, and a link that
// arrives afterwards is discarded.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closing = true
	link := s.link
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if link == nil {
		// Connect in flight; the cancelled connect path finishes the
		// teardown via attach or abort.
		<-s.done
		return nil
	}
	err := link.Close()
	<-s.done
	return err
}

// run consumes link events until the link terminates.
func (s *Session) run() {
	defer close(s.done)

	for ev := range s.link.Events() {
		if ev.Disconnected {
			s.finish(ev.Err)
			return
		}
		s.handleFrame(ev.Frame)
	}
	// Stream closed without a terminal event; treat as a clean drop.
	s.finish(nil)
}

// finish transitions out of the connected state exactly once.
func (s *Session) finish(cause error) {
	s.mu.Lock()
	if s.conn != StateConnected {
		s.mu.Unlock()
		return
	}
	if cause != nil {
		s.conn = StateFaulted
	} else {
		s.conn = StateDisconnected
	}
	s.state.Stale = s.state.HavePosition
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if cause != nil {
		s.logger.Warn("link lost", "error", cause)
	} else {
		s.logger.Info("link closed")
	}
	s.onEvent(s.identity, LinkLost{Cause: cause})
	s.onState(s.identity, snap)
}

func (s *Session) handleFrame(frame []byte) {
	pkt, err := macp.Unmarshal(frame)
	if err != nil {
		s.dropFrame(err)
		return
	}
	if pkt.DstID != macp.ClientAddr && pkt.DstID != macp.BroadcastAddr {
		s.dropFrame(fmt.Errorf("frame for foreign destination %#x", pkt.DstID))
		return
	}

	switch pkt.Port {
	case macp.PortPosition:
		x, y, z, err := macp.DecodePosition(pkt)
		if err != nil {
			s.dropFrame(err)
			return
		}
		s.mu.Lock()
		s.state.X, s.state.Y, s.state.Z = x, y, z
		s.state.HavePosition = true
		s.state.Stale = false
		s.mu.Unlock()
		s.onEvent(s.identity, PositionUpdate{X: x, Y: y, Z: z})

	case macp.PortConsole:
		text, err := macp.DecodeConsole(pkt)
		if err != nil {
			s.dropFrame(err)
			return
		}
		s.mu.Lock()
		s.state.Console = text
		s.mu.Unlock()
		s.onEvent(s.identity, DebugLine{Text: text})

	case macp.PortBattery:
		voltage, err := macp.DecodeBattery(pkt)
		if err != nil {
			s.dropFrame(err)
			return
		}
		s.mu.Lock()
		s.state.Battery = voltage
		s.mu.Unlock()
		s.onEvent(s.identity, BatteryUpdate{Voltage: voltage})

	default:
		s.dropFrame(fmt.Errorf("unexpected port %#x", pkt.Port))
	}
}

// dropFrame counts and logs a malformed or unroutable inbound frame.
// The session stays connected; one bad frame never tears down a link.
func (s *Session) dropFrame(err error) {
	s.mu.Lock()
	s.malformed++
	n := s.malformed
	s.mu.Unlock()

	s.logger.Debug("dropped inbound frame", "error", err, "dropped_total", n)
}
