// ABOUTME: Tests for the telemetry router.
// ABOUTME: Validates per-agent ordering, isolation and the overflow policy.

package router

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/agent"
)

type recorder struct {
	mu     sync.Mutex
	events []recorded
}

type recorded struct {
	uri string
	ev  agent.TelemetryEvent
}

func (r *recorder) sinks() Sinks {
	return Sinks{
		Position: func(id agent.Identity, ev agent.PositionUpdate) { r.add(id, ev) },
		Console:  func(id agent.Identity, ev agent.DebugLine) { r.add(id, ev) },
		Status:   func(id agent.Identity, ev agent.TelemetryEvent) { r.add(id, ev) },
	}
}

func (r *recorder) add(id agent.Identity, ev agent.TelemetryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{uri: id.URI, ev: ev})
}

func (r *recorder) forAgent(uri string) []agent.TelemetryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []agent.TelemetryEvent
	for _, rec := range r.events {
		if rec.uri == uri {
			out = append(out, rec.ev)
		}
	}
	return out
}

func (r *recorder) count(uri string) int {
	return len(r.forAgent(uri))
}

func ident(uri string, id uint8) agent.Identity {
	return agent.Identity{URI: uri, ID: id}
}

func TestMissingSinkRejected(t *testing.T) {
	_, err := New(slog.Default(), Sinks{Console: func(agent.Identity, agent.DebugLine) {}})
	require.ErrorIs(t, err, ErrMissingSink)
}

func TestPerAgentOrdering(t *testing.T) {
	rec := &recorder{}
	r, err := New(slog.Default(), rec.sinks())
	require.NoError(t, err)

	a := ident("radio://a", 1)
	for i := 0; i < 50; i++ {
		r.Publish(a, agent.PositionUpdate{X: float64(i)})
		r.Publish(a, agent.DebugLine{Text: "line"})
	}
	r.Close()

	events := rec.forAgent("radio://a")
	require.Len(t, events, 100)
	next := 0.0
	for i, ev := range events {
		if i%2 == 0 {
			pos, ok := ev.(agent.PositionUpdate)
			require.True(t, ok, "event %d should be a position", i)
			assert.Equal(t, next, pos.X)
			next++
		} else {
			_, ok := ev.(agent.DebugLine)
			require.True(t, ok, "event %d should be a console line", i)
		}
	}
}

func TestAgentIsolation(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	slowSinks := rec.sinks()
	fast := slowSinks.Position
	slowSinks.Position = func(id agent.Identity, ev agent.PositionUpdate) {
		if id.URI == "radio://slow" {
			<-release
		}
		fast(id, ev)
	}

	r, err := New(slog.Default(), slowSinks)
	require.NoError(t, err)
	defer func() {
		close(release)
		r.Close()
	}()

	slow := ident("radio://slow", 1)
	quick := ident("radio://quick", 2)

	// The slow agent's worker blocks on its first event.
	r.Publish(slow, agent.PositionUpdate{})
	for i := 0; i < 20; i++ {
		r.Publish(quick, agent.PositionUpdate{X: float64(i)})
	}

	require.Eventually(t, func() bool {
		return rec.count("radio://quick") == 20
	}, 2*time.Second, 5*time.Millisecond, "fast agent must not wait for the slow agent's sink")
}

// blockingPosition wraps a position sink so the first delivery parks
// the worker. entered signals that the worker is inside the sink.
func blockingPosition(inner PositionSink, entered chan<- struct{}, release <-chan struct{}) PositionSink {
	var once sync.Once
	return func(id agent.Identity, ev agent.PositionUpdate) {
		once.Do(func() {
			entered <- struct{}{}
			<-release
		})
		inner(id, ev)
	}
}

func TestOverflowEvictsConsoleFirst(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	release := make(chan struct{})
	sinks := rec.sinks()
	sinks.Position = blockingPosition(sinks.Position, entered, release)

	r, err := New(slog.Default(), sinks, WithQueueSize(4))
	require.NoError(t, err)

	a := ident("radio://a", 1)
	// First position occupies the worker; the queue then holds two
	// consoles and two positions.
	r.Publish(a, agent.PositionUpdate{X: 0})
	<-entered
	r.Publish(a, agent.DebugLine{Text: "one"})
	r.Publish(a, agent.DebugLine{Text: "two"})
	r.Publish(a, agent.PositionUpdate{X: 1})
	r.Publish(a, agent.PositionUpdate{X: 2})

	// Overflow: the oldest console line goes first.
	r.Publish(a, agent.PositionUpdate{X: 3})

	close(release)
	r.Close()

	var consoles []string
	for _, ev := range rec.forAgent("radio://a") {
		if line, ok := ev.(agent.DebugLine); ok {
			consoles = append(consoles, line.Text)
		}
	}
	assert.Equal(t, []string{"two"}, consoles, "oldest console line should have been evicted")
}

func TestOverflowFlagsStalePosition(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	release := make(chan struct{})
	sinks := rec.sinks()
	sinks.Position = blockingPosition(sinks.Position, entered, release)

	r, err := New(slog.Default(), sinks, WithQueueSize(2))
	require.NoError(t, err)

	a := ident("radio://a", 1)
	// Worker blocks on the first position; the queue then fills with
	// positions only, so overflow must evict a position.
	r.Publish(a, agent.PositionUpdate{X: 0})
	<-entered
	r.Publish(a, agent.PositionUpdate{X: 1})
	r.Publish(a, agent.PositionUpdate{X: 2})
	r.Publish(a, agent.PositionUpdate{X: 3})

	close(release)
	r.Close()

	events := rec.forAgent("radio://a")
	require.NotEmpty(t, events)

	staleSeen := false
	for _, ev := range events {
		if pos, ok := ev.(agent.PositionUpdate); ok && pos.Stale {
			staleSeen = true
		}
	}
	assert.True(t, staleSeen, "a position after an eviction must be flagged stale")
}

func TestStatusEventsSurviveOverflow(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	release := make(chan struct{})
	sinks := rec.sinks()
	sinks.Position = blockingPosition(sinks.Position, entered, release)

	r, err := New(slog.Default(), sinks, WithQueueSize(2))
	require.NoError(t, err)

	a := ident("radio://a", 1)
	r.Publish(a, agent.PositionUpdate{X: 0})
	<-entered
	r.Publish(a, agent.PositionUpdate{X: 1})
	r.Publish(a, agent.PositionUpdate{X: 2})
	r.Publish(a, agent.LinkLost{})

	close(release)
	r.Close()

	lostSeen := false
	for _, ev := range rec.forAgent("radio://a") {
		if _, ok := ev.(agent.LinkLost); ok {
			lostSeen = true
		}
	}
	assert.True(t, lostSeen, "link status must never be dropped")
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	rec := &recorder{}
	r, err := New(slog.Default(), rec.sinks())
	require.NoError(t, err)

	a := ident("radio://a", 1)
	r.Publish(a, agent.PositionUpdate{})
	r.Close()
	r.Publish(a, agent.PositionUpdate{})

	assert.Equal(t, 1, rec.count("radio://a"))
}

func TestOverflowEvictsOldestBattery(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	release := make(chan struct{})
	sinks := rec.sinks()
	sinks.Position = blockingPosition(sinks.Position, entered, release)

	r, err := New(slog.Default(), sinks, WithQueueSize(2))
	require.NoError(t, err)

	a := ident("radio://a", 1)
	r.Publish(a, agent.PositionUpdate{X: 0})
	<-entered
	r.Publish(a, agent.BatteryUpdate{Voltage: 3.9})
	r.Publish(a, agent.BatteryUpdate{Voltage: 3.8})
	r.Publish(a, agent.BatteryUpdate{Voltage: 3.7})
	r.Publish(a, agent.LinkLost{})

	close(release)
	r.Close()

	var voltages []float64
	lostSeen := false
	for _, ev := range rec.forAgent("radio://a") {
		switch e := ev.(type) {
		case agent.BatteryUpdate:
			voltages = append(voltages, e.Voltage)
		case agent.LinkLost:
			lostSeen = true
		}
	}
	assert.Equal(t, []float64{3.7}, voltages, "older battery samples give way to newer ones")
	assert.True(t, lostSeen, "link status must never be dropped")
}
