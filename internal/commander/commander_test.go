// ABOUTME: Tests for the flight commander and low-battery watchdog.
// ABOUTME: Validates takeoff/land tracking and the undercut streak rule.

package commander

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/agent"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []sentCmd
	err  error
}

type sentCmd struct {
	uri string
	cmd agent.Command
}

func (s *fakeSender) Send(uri string, cmd agent.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentCmd{uri: uri, cmd: cmd})
	return nil
}

func (s *fakeSender) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, c := range s.sent {
		out[i] = c.cmd.Kind()
	}
	return out
}

const uri = "radio://0/80/2M/E7E7E7E701"

var id = agent.Identity{URI: uri, ID: 1}

func TestTakeoffLand(t *testing.T) {
	t.Run("takeoff uses default hover height", func(t *testing.T) {
		sender := &fakeSender{}
		c := New(slog.Default(), sender)
		if err := c.Takeoff(uri); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !c.Flying(uri) {
			t.Error("expected agent marked flying after takeoff")
		}
		to, ok := sender.sent[0].cmd.(agent.Takeoff)
		if !ok {
			t.Fatalf("expected a takeoff command, got %T", sender.sent[0].cmd)
		}
		if to.Height != DefaultHoverHeight {
			t.Errorf("expected height %g, got %g", DefaultHoverHeight, to.Height)
		}
	})

	t.Run("rejects non-positive height", func(t *testing.T) {
		c := New(slog.Default(), &fakeSender{})
		if err := c.TakeoffTo(uri, 0); err == nil {
			t.Error("expected error for zero height")
		}
	})

	t.Run("failed send leaves agent grounded", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("link down")}
		c := New(slog.Default(), sender)
		if err := c.Takeoff(uri); err == nil {
			t.Fatal("expected send error")
		}
		if c.Flying(uri) {
			t.Error("agent must not be marked flying after a failed takeoff")
		}
	})

	t.Run("land clears flying", func(t *testing.T) {
		sender := &fakeSender{}
		c := New(slog.Default(), sender)
		if err := c.Takeoff(uri); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := c.Land(uri); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Flying(uri) {
			t.Error("expected agent grounded after landing")
		}
	})
}

func TestGoalDispatch(t *testing.T) {
	sender := &fakeSender{}
	c := New(slog.Default(), sender)
	if err := c.Goal(uri, orb.Point{1.5, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	goal, ok := sender.sent[0].cmd.(agent.SetGoal)
	if !ok {
		t.Fatalf("expected a set-goal command, got %T", sender.sent[0].cmd)
	}
	if goal.Target.X() != 1.5 || goal.Target.Y() != 2 {
		t.Errorf("unexpected target %v", goal.Target)
	}
}

func TestLowBatteryWatchdog(t *testing.T) {
	t.Run("lands after a full undercut streak", func(t *testing.T) {
		sender := &fakeSender{}
		c := New(slog.Default(), sender)
		if err := c.Takeoff(uri); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for i := 0; i < LowBatteryStreak-1; i++ {
			c.ObserveBattery(id, 3.0)
		}
		if kinds := sender.kinds(); len(kinds) != 1 {
			t.Fatalf("no landing before the streak completes, sent %v", kinds)
		}

		c.ObserveBattery(id, 3.0)
		kinds := sender.kinds()
		if len(kinds) != 2 || kinds[1] != "land" {
			t.Fatalf("expected an automatic landing, sent %v", kinds)
		}
		if c.Flying(uri) {
			t.Error("expected agent grounded after automatic landing")
		}
	})

	t.Run("a healthy sample resets the streak", func(t *testing.T) {
		sender := &fakeSender{}
		c := New(slog.Default(), sender)
		if err := c.Takeoff(uri); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for i := 0; i < LowBatteryStreak-1; i++ {
			c.ObserveBattery(id, 3.0)
		}
		c.ObserveBattery(id, 3.8)
		for i := 0; i < LowBatteryStreak-1; i++ {
			c.ObserveBattery(id, 3.0)
		}

		if kinds := sender.kinds(); len(kinds) != 1 {
			t.Errorf("recovery must reset the streak, sent %v", kinds)
		}
	})

	t.Run("grounded agents are not auto-landed", func(t *testing.T) {
		sender := &fakeSender{}
		c := New(slog.Default(), sender)
		for i := 0; i < LowBatteryStreak*2; i++ {
			c.ObserveBattery(id, 3.0)
		}
		if kinds := sender.kinds(); len(kinds) != 0 {
			t.Errorf("no commands expected for a grounded agent, sent %v", kinds)
		}
	})

	t.Run("link loss clears flight tracking", func(t *testing.T) {
		sender := &fakeSender{}
		c := New(slog.Default(), sender)
		if err := c.Takeoff(uri); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		c.ObserveLinkLost(id)
		if c.Flying(uri) {
			t.Error("expected flight tracking cleared after link loss")
		}
	})
}
