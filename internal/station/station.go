// ABOUTME: Station orchestrator: wires config, transports, registry,
// ABOUTME: router and commander into the ground-station core.

package station

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/agent"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/commander"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/config"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/intmap"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/router"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/transport"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/transport/radio"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/transport/sim"
)

// Default viewport used until the display reports its real size.
const (
	DefaultViewportW = 800
	DefaultViewportH = 600
)

// TelemetryNotice pairs a telemetry event with the agent it came from.
type TelemetryNotice struct {
	Identity agent.Identity
	Event    agent.TelemetryEvent
}

// Station is the ground-station core. It owns the agent registry, the
// telemetry router, the flight commander and the coordinate model, and
// exposes the operations the display layer calls.
type Station struct {
	logger *slog.Logger
	cfg    *config.Config

	area      intmap.FlightArea
	registry  *agent.Registry
	modes     *agent.ModeController
	router    *router.Router
	commander *commander.Commander

	mu     sync.RWMutex
	view   intmap.View
	trails map[string]*intmap.Trail
	subs   map[string]chan TelemetryNotice
}

// New builds a station from validated configuration. Both transport
// backends are constructed; the configured mode decides which one new
// links use.
func New(cfg *config.Config, logger *slog.Logger) (*Station, error) {
	area, err := cfg.FlightArea()
	if err != nil {
		return nil, err
	}
	view, err := intmap.NewDefaultView(area, DefaultViewportW, DefaultViewportH)
	if err != nil {
		return nil, err
	}

	s := &Station{
		logger: logger.With("component", "station"),
		cfg:    cfg,
		area:   area,
		view:   view,
		trails: make(map[string]*intmap.Trail),
		subs:   make(map[string]chan TelemetryNotice),
	}

	backends := map[transport.Mode]transport.Transport{
		transport.ModeSimulated: sim.New(logger, sim.Options{}),
		transport.ModeReal:      radio.New(logger, radio.Options{BridgeAddr: cfg.BridgeAddr}),
	}
	s.modes, err = agent.NewModeController(cfg.TransportMode(), backends)
	if err != nil {
		return nil, err
	}

	s.router, err = router.New(logger, router.Sinks{
		Position: s.onPosition,
		Console:  s.onConsole,
		Status:   s.onStatus,
	})
	if err != nil {
		return nil, err
	}

	s.registry = agent.NewRegistry(logger, s.modes, s.router)
	s.modes.Bind(s.registry)
	s.commander = commander.New(logger, s.registry)

	if err := s.registry.Configure(cfg.Roster); err != nil {
		return nil, err
	}

	logger.Info("station assembled",
		"agents", len(cfg.Roster),
		"mode", cfg.TransportMode().String(),
		"map", cfg.MapSetting,
		"area_m", fmt.Sprintf("%gx%g", area.Width, area.Depth),
	)
	return s, nil
}

// Area returns the configured flight area.
func (s *Station) Area() intmap.FlightArea { return s.area }

// Identities returns the roster in configuration order.
func (s *Station) Identities() []agent.Identity { return s.registry.Identities() }

// State returns the current snapshot for one agent.
func (s *Station) State(uri string) (agent.AgentState, error) { return s.registry.State(uri) }

// Mode returns the currently selected transport mode.
func (s *Station) Mode() transport.Mode { return s.modes.Mode() }

// SetMode switches the transport backend for future connects. Fails
// while any agent link is up.
func (s *Station) SetMode(mode transport.Mode) error { return s.modes.SetMode(mode) }

// SetViewport updates the pixel dimensions used for click transforms.
func (s *Station) SetViewport(width, height float64) error {
	view, err := intmap.NewDefaultView(s.area, width, height)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.view = view
	s.mu.Unlock()
	return nil
}

// ConnectAgent brings one agent link up.
func (s *Station) ConnectAgent(ctx context.Context, uri string) error {
	return s.registry.ConnectAgent(ctx, uri)
}

// ConnectAll connects every configured agent concurrently and returns
// the first failure, if any. Agents that connected stay connected.
func (s *Station) ConnectAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range s.registry.Identities() {
		id := id
		g.Go(func() error { return s.registry.ConnectAgent(ctx, id.URI) })
	}
	return g.Wait()
}

// DisconnectAgent cleanly tears one agent link down.
func (s *Station) DisconnectAgent(uri string) error {
	return s.registry.DisconnectAgent(uri)
}

// DisconnectAll tears down every active link.
func (s *Station) DisconnectAll() error { return s.registry.DisconnectAll() }

// IssueGoal turns a map click into a goal command. The pixel is
// transformed to meters, clamped to the flight area, and sent to the
// agent. Fails with agent.ErrNotConnected on a non-connected agent,
// leaving the stored goal unchanged.
func (s *Station) IssueGoal(uri string, pixel orb.Point) error {
	s.mu.RLock()
	view := s.view
	s.mu.RUnlock()

	target := view.PixelToMeters(pixel)
	return s.commander.Goal(uri, target)
}

// IssueGoalMeters sends a goal already expressed in meters, clamped to
// the flight area.
func (s *Station) IssueGoalMeters(uri string, target orb.Point) error {
	return s.commander.Goal(uri, s.area.Clamp(target))
}

// IssueCommand routes an arbitrary command to an agent. Takeoff, land
// and goal commands go through the commander so flight tracking and
// the battery watchdog stay accurate.
func (s *Station) IssueCommand(uri string, cmd agent.Command) error {
	switch c := cmd.(type) {
	case agent.Takeoff:
		if c.Height <= 0 {
			return s.commander.Takeoff(uri)
		}
		return s.commander.TakeoffTo(uri, c.Height)
	case agent.Land:
		return s.commander.Land(uri)
	case agent.SetGoal:
		return s.commander.Goal(uri, s.area.Clamp(c.Target))
	default:
		return s.registry.Send(uri, cmd)
	}
}

// Takeoff sends a takeoff to the default hover height.
func (s *Station) Takeoff(uri string) error { return s.commander.Takeoff(uri) }

// Land sends a landing command.
func (s *Station) Land(uri string) error { return s.commander.Land(uri) }

// Trail returns the recent path of one agent, oldest first.
func (s *Station) Trail(uri string) []orb.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.trails[uri]
	if !ok {
		return nil
	}
	return tr.Points()
}

// SubscribeStates registers for agent state change notifications.
func (s *Station) SubscribeStates(ctx context.Context) (<-chan agent.StateChange, string) {
	return s.registry.SubscribeStates(ctx)
}

// SubscribeTelemetry registers for telemetry notifications across all
// agents. The subscription is cleaned up when ctx is cancelled.
func (s *Station) SubscribeTelemetry(ctx context.Context) (<-chan TelemetryNotice, string) {
	subID := uuid.New().String()
	ch := make(chan TelemetryNotice, 64)

	s.mu.Lock()
	s.subs[subID] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.UnsubscribeTelemetry(subID)
	}()

	return ch, subID
}

// UnsubscribeTelemetry removes a telemetry subscription.
func (s *Station) UnsubscribeTelemetry(subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.subs[subID]
	if !ok {
		return
	}
	delete(s.subs, subID)
	close(ch)
}

// Shutdown disconnects all agents and stops the router after its
// queues drain.
func (s *Station) Shutdown() error {
	err := s.registry.DisconnectAll()
	s.router.Close()
	s.logger.Info("station stopped")
	return err
}

// onPosition is the router position sink: it records the trail and
// fans the event out.
func (s *Station) onPosition(id agent.Identity, ev agent.PositionUpdate) {
	s.mu.Lock()
	tr, ok := s.trails[id.URI]
	if !ok {
		tr = &intmap.Trail{}
		s.trails[id.URI] = tr
	}
	tr.Push(orb.Point{ev.X, ev.Y})
	s.mu.Unlock()

	s.notify(id, ev)
}

// onConsole is the router console sink.
func (s *Station) onConsole(id agent.Identity, ev agent.DebugLine) {
	s.notify(id, ev)
}

// onStatus is the router status sink: battery samples feed the
// watchdog, link loss clears flight tracking.
func (s *Station) onStatus(id agent.Identity, ev agent.TelemetryEvent) {
	switch e := ev.(type) {
	case agent.BatteryUpdate:
		s.commander.ObserveBattery(id, e.Voltage)
	case agent.LinkLost:
		s.commander.ObserveLinkLost(id)
	}
	s.notify(id, ev)
}

// notify fans a telemetry event out to subscribers, dropping for the
// slow ones.
func (s *Station) notify(id agent.Identity, ev agent.TelemetryEvent) {
	s.mu.RLock()
	targets := make([]chan TelemetryNotice, 0, len(s.subs))
	for _, ch := range s.subs {
		targets = append(targets, ch)
	}
	s.mu.RUnlock()

	notice := TelemetryNotice{Identity: id, Event: ev}
	for _, ch := range targets {
		select {
		case ch <- notice:
		default:
		}
	}
}
