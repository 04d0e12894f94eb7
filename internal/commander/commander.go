// ABOUTME: Flight commander: takeoff/land sequences, goal dispatch and
// ABOUTME: the low-battery watchdog that forces an automatic landing.

package commander

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/agent"
)

const (
	// DefaultHoverHeight is the takeoff target in meters.
	DefaultHoverHeight = 0.8
	// LowBatteryVolts is the voltage below which a sample counts as an
	// undercut.
	LowBatteryVolts = 3.15
	// LowBatteryStreak is how many consecutive undercuts trigger an
	// automatic landing. Single dips under load are normal; a streak
	// means the cell is actually empty.
	LowBatteryStreak = 10
)

// Sender routes commands to agents. The agent registry implements it.
type Sender interface {
	Send(uri string, cmd agent.Command) error
}

// Commander tracks per-agent flight status and issues flight commands
// through the sender. It is safe for concurrent use.
type Commander struct {
	logger *slog.Logger
	sender Sender

	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	flying    bool
	undercuts int
}

// New creates a commander.
func New(logger *slog.Logger, sender Sender) *Commander {
	return &Commander{
		logger:  logger.With("component", "commander"),
		sender:  sender,
		flights: make(map[string]*flight),
	}
}

// Takeoff sends a takeoff to the default hover height.
func (c *Commander) Takeoff(uri string) error {
	return c.TakeoffTo(uri, DefaultHoverHeight)
}

// TakeoffTo sends a takeoff to an explicit hover height.
func (c *Commander) TakeoffTo(uri string, height float64) error {
	if height <= 0 {
		return fmt.Errorf("takeoff height must be positive, got %g", height)
	}
	if err := c.sender.Send(uri, agent.Takeoff{Height: height}); err != nil {
		return err
	}

	c.mu.Lock()
	f := c.flightLocked(uri)
	f.flying = true
	c.mu.Unlock()

	c.logger.Info("takeoff issued", "uri", uri, "height_m", height)
	return nil
}

// Land sends a landing command and clears the flight status.
func (c *Commander) Land(uri string) error {
	if err := c.sender.Send(uri, agent.Land{}); err != nil {
		return err
	}

	c.mu.Lock()
	f := c.flightLocked(uri)
	f.flying = false
	f.undercuts = 0
	c.mu.Unlock()

	c.logger.Info("landing issued", "uri", uri)
	return nil
}

// Goal steers an agent toward a physical 2D target.
func (c *Commander) Goal(uri string, target orb.Point) error {
	return c.sender.Send(uri, agent.SetGoal{Target: target})
}

// SetParameter writes one firmware parameter on an agent.
func (c *Commander) SetParameter(uri, param string, value float64) error {
	return c.sender.Send(uri, agent.SetParameter{Param: param, Value: value})
}

// Flying reports whether the commander believes the agent is airborne.
func (c *Commander) Flying(uri string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[uri]
	return ok && f.flying
}

// ObserveBattery feeds one battery sample into the watchdog. After
// LowBatteryStreak consecutive samples below LowBatteryVolts on a
// flying agent, the commander lands it.
func (c *Commander) ObserveBattery(id agent.Identity, voltage float64) {
	c.mu.Lock()
	f := c.flightLocked(id.URI)
	if voltage >= LowBatteryVolts {
		f.undercuts = 0
		c.mu.Unlock()
		return
	}

	f.undercuts++
	trigger := f.flying && f.undercuts >= LowBatteryStreak
	streak := f.undercuts
	if trigger {
		f.undercuts = 0
	}
	c.mu.Unlock()

	if !trigger {
		c.logger.Debug("battery undercut", "uri", id.URI, "voltage", voltage, "streak", streak)
		return
	}

	c.logger.Warn("battery critically low, landing",
		"uri", id.URI,
		"voltage", voltage,
		"threshold", LowBatteryVolts,
	)
	if err := c.Land(id.URI); err != nil {
		c.logger.Error("automatic landing failed", "uri", id.URI, "error", err)
	}
}

// ObserveLinkLost clears flight tracking for a dropped agent.
func (c *Commander) ObserveLinkLost(id agent.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.flights[id.URI]; ok {
		f.flying = false
		f.undercuts = 0
	}
}

func (c *Commander) flightLocked(uri string) *flight {
	f, ok := c.flights[uri]
	if !ok {
		f = &flight{}
		c.flights[uri] = f
	}
	return f
}
