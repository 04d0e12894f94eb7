// ABOUTME: End-to-end tests for the station over the simulated backend.
// ABOUTME: Covers the two-agent scenario, click goals, mode guard and shutdown.

package station

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/agent"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/config"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/transport"
)

const (
	uriA = "radio://0/80/2M/E7E7E7E701"
	uriB = "radio://0/80/2M/E7E7E7E702"
)

func labConfig() *config.Config {
	return &config.Config{
		Mode:       "normal",
		Simulation: true,
		MapSetting: config.SettingLaboratory,
		MapWidth:   5,
		MapDepth:   4,
		Roster: []agent.LinkSpec{
			{URI: uriA, Address: 0xE7E7E7E701},
			{URI: uriB, Address: 0xE7E7E7E702},
		},
		LogLevel: "info",
	}
}

func newTestStation(t *testing.T) *Station {
	t.Helper()
	s, err := New(labConfig(), slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTwoAgentScenario(t *testing.T) {
	s := newTestStation(t)

	ids := s.Identities()
	if len(ids) != 2 {
		t.Fatalf("expected 2 identities, got %d", len(ids))
	}
	if ids[0].Color == ids[1].Color {
		t.Error("agents must get distinct display colors")
	}

	if err := s.ConnectAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, uri := range []string{uriA, uriB} {
		st, err := s.State(uri)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if st.Conn != agent.StateConnected {
			t.Fatalf("%s: expected connected, got %s", uri, st.Conn)
		}
	}

	// Both simulated agents stream telemetry independently.
	waitFor(t, func() bool {
		a, _ := s.State(uriA)
		b, _ := s.State(uriB)
		return a.HavePosition && b.HavePosition
	})

	// A center click in the 5x4 laboratory area maps to the physical
	// origin.
	if err := s.IssueGoal(uriA, orb.Point{DefaultViewportW / 2, DefaultViewportH / 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stA, _ := s.State(uriA)
	if stA.Goal == nil {
		t.Fatal("expected a stored goal after issueGoal")
	}
	if x, y := stA.Goal.X(), stA.Goal.Y(); x < -0.01 || x > 0.01 || y < -0.01 || y > 0.01 {
		t.Errorf("center click should map to (0, 0), got (%g, %g)", x, y)
	}

	// A click far off the canvas clamps to the area boundary.
	if err := s.IssueGoal(uriB, orb.Point{-500, -500}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stB, _ := s.State(uriB)
	if stB.Goal == nil {
		t.Fatal("expected a stored goal after issueGoal")
	}
	if stB.Goal.X() != -2.5 || stB.Goal.Y() != 2 {
		t.Errorf("expected clamped goal (-2.5, 2), got %v", *stB.Goal)
	}
	if !s.Area().Contains(*stB.Goal) {
		t.Error("clamped goal must lie inside the flight area")
	}

	// Disconnecting one agent leaves the other streaming.
	if err := s.DisconnectAgent(uriA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stA, _ = s.State(uriA)
	if stA.Conn != agent.StateDisconnected {
		t.Fatalf("expected disconnected, got %s", stA.Conn)
	}
	if !stA.Stale {
		t.Error("disconnected agent must keep its last position marked stale")
	}
	goalBefore := *stA.Goal

	stB, _ = s.State(uriB)
	if stB.Conn != agent.StateConnected {
		t.Errorf("disconnecting one agent must not touch the other, got %s", stB.Conn)
	}

	// Goals for a disconnected agent are rejected and do not overwrite
	// the stored goal.
	err := s.IssueGoal(uriA, orb.Point{100, 100})
	if !errors.Is(err, agent.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	stA, _ = s.State(uriA)
	if stA.Goal == nil || *stA.Goal != goalBefore {
		t.Error("failed goal must leave the stored goal unchanged")
	}
}

func TestTrailRecording(t *testing.T) {
	s := newTestStation(t)
	if err := s.ConnectAgent(context.Background(), uriA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, func() bool { return len(s.Trail(uriA)) >= 2 })
}

func TestTelemetrySubscription(t *testing.T) {
	s := newTestStation(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := s.SubscribeTelemetry(ctx)
	if err := s.ConnectAgent(context.Background(), uriA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.After(3 * time.Second)
	var sawEstablished, sawPosition bool
	for !sawEstablished || !sawPosition {
		select {
		case n := <-ch:
			if n.Identity.URI != uriA {
				t.Fatalf("unexpected identity %s", n.Identity.URI)
			}
			switch n.Event.(type) {
			case agent.LinkEstablished:
				sawEstablished = true
			case agent.PositionUpdate:
				sawPosition = true
			}
		case <-deadline:
			t.Fatal("timeout waiting for telemetry notices")
		}
	}
}

func TestModeGuard(t *testing.T) {
	s := newTestStation(t)
	if s.Mode() != transport.ModeSimulated {
		t.Fatalf("unexpected initial mode %s", s.Mode())
	}

	if err := s.ConnectAgent(context.Background(), uriA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetMode(transport.ModeReal); !errors.Is(err, agent.ErrModeChangeRejected) {
		t.Fatalf("expected ErrModeChangeRejected, got %v", err)
	}

	if err := s.DisconnectAll(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.SetMode(transport.ModeReal); err != nil {
		t.Fatalf("expected mode change after disconnect: %v", err)
	}
	if s.Mode() != transport.ModeReal {
		t.Errorf("unexpected mode %s", s.Mode())
	}
}

func TestStateSubscription(t *testing.T) {
	s := newTestStation(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := s.SubscribeStates(ctx)
	if err := s.ConnectAgent(context.Background(), uriA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case change := <-ch:
			if change.Identity.URI != uriA {
				continue
			}
			if change.State.Conn == agent.StateConnected {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for connected state change")
		}
	}
}

func TestIssueCommandRouting(t *testing.T) {
	s := newTestStation(t)
	if err := s.ConnectAgent(context.Background(), uriA); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.IssueCommand(uriA, agent.Takeoff{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.IssueCommand(uriA, agent.SetGoal{Target: orb.Point{100, 100}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, _ := s.State(uriA)
	if st.Goal == nil || !s.Area().Contains(*st.Goal) {
		t.Error("meter goals must be clamped into the flight area")
	}
	if err := s.IssueCommand(uriA, agent.Land{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.IssueCommand(uriA, agent.SetParameter{Param: "ring.effect", Value: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
