// ABOUTME: In-process simulated radio backend with one agent per link.
// ABOUTME: Generates position, battery and console traffic and obeys commands.

package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/macp"
	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/transport"
)

// Options tune the simulated agents. Zero values fall back to the
// defaults, which match the log periods of the real firmware.
type Options struct {
	PositionPeriod time.Duration // default 200ms
	BatteryPeriod  time.Duration // default 500ms
	Speed          float64       // horizontal speed in m/s, default 0.5
	HoverHeight    float64       // default 0.8
}

func (o Options) withDefaults() Options {
	if o.PositionPeriod <= 0 {
		o.PositionPeriod = 200 * time.Millisecond
	}
	if o.BatteryPeriod <= 0 {
		o.BatteryPeriod = 500 * time.Millisecond
	}
	if o.Speed <= 0 {
		o.Speed = 0.5
	}
	if o.HoverHeight <= 0 {
		o.HoverHeight = 0.8
	}
	return o
}

// Transport is the simulated backend. Each Connect spawns an independent
// agent goroutine; links never share state.
type Transport struct {
	opts   Options
	logger *slog.Logger

	mu    sync.Mutex
	links map[string]*link
}

// New creates a simulated transport. Pass nil logger for the default.
func New(logger *slog.Logger, opts Options) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		opts:   opts.withDefaults(),
		logger: logger.With("component", "sim"),
		links:  make(map[string]*link),
	}
}

// Connect opens a simulated link. The agent identifier is taken from the
// trailing byte of the link URI, as on the real radio.
func (t *Transport) Connect(ctx context.Context, uri string, address uint64) (transport.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.links[uri]; exists {
		return nil, fmt.Errorf("%w: %s already connected", transport.ErrConnect, uri)
	}

	l := newLink(t, uri, address, t.opts, t.logger)
	t.links[uri] = l
	go l.run()

	t.logger.Debug("simulated link opened", "uri", uri)
	return l, nil
}

// FailLink injects an unrecoverable transport fault on the named link,
// as if the radio watchdog gave up. No-op for unknown URIs.
func (t *Transport) FailLink(uri string) {
	t.mu.Lock()
	l := t.links[uri]
	t.mu.Unlock()

	if l != nil {
		l.fail(fmt.Errorf("sim: injected radio fault on %s", uri))
	}
}

func (t *Transport) forget(uri string) {
	t.mu.Lock()
	delete(t.links, uri)
	t.mu.Unlock()
}

// link is one simulated agent. The goroutine in run owns all flight
// state; commands arrive through the commands channel.
type link struct {
	uri     string
	agentID uint8
	opts    Options
	logger  *slog.Logger
	parent  *Transport

	events   chan transport.Event
	commands chan macp.Packet

	closeOnce sync.Once
	done      chan struct{}
	failErr   chan error
}

func newLink(parent *Transport, uri string, address uint64, opts Options, logger *slog.Logger) *link {
	return &link{
		uri:     uri,
		agentID: uint8(address & 0x0F),
		opts:    opts,
		logger:  logger,
		parent:  parent,

		events:   make(chan transport.Event, 64),
		commands: make(chan macp.Packet, 16),
		done:     make(chan struct{}),
		failErr:  make(chan error, 1),
	}
}

func (l *link) Send(frame []byte) error {
	pkt, err := macp.Unmarshal(frame)
	if err != nil {
		return err
	}

	select {
	case <-l.done:
		return transport.ErrLinkClosed
	case l.commands <- pkt:
		return nil
	default:
		// Radio queue full: best-effort, the frame is lost.
		return nil
	}
}

func (l *link) Events() <-chan transport.Event {
	return l.events
}

func (l *link) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	return nil
}

func (l *link) fail(err error) {
	select {
	case l.failErr <- err:
	default:
	}
	l.Close()
}

// run simulates the agent until the link is torn down. Position frames
// chase the current goal, battery drains slowly, console lines announce
// state changes.
func (l *link) run() {
	defer l.parent.forget(l.uri)

	posTick := time.NewTicker(l.opts.PositionPeriod)
	defer posTick.Stop()
	batTick := time.NewTicker(l.opts.BatteryPeriod)
	defer batTick.Stop()

	var (
		pos     = [3]float64{0, 0, 0}
		goal    = [2]float64{0, 0}
		flying  bool
		voltage = 4.0
	)

	l.console("SYS: boot ok")
	l.console(fmt.Sprintf("SYS: agent id %d ready", l.agentID))

	for {
		select {
		case <-l.done:
			var cause error
			select {
			case cause = <-l.failErr:
			default:
			}
			l.emitDisconnect(cause)
			return

		case pkt := <-l.commands:
			l.handleCommand(pkt, &goal, &flying)

		case <-posTick.C:
			step(&pos, goal, flying, l.opts)
			l.emitPosition(pos)

		case <-batTick.C:
			if flying {
				voltage -= 0.002
			} else {
				voltage -= 0.0002
			}
			l.emitBattery(voltage)
		}
	}
}

func (l *link) handleCommand(pkt macp.Packet, goal *[2]float64, flying *bool) {
	if pkt.Port != macp.PortCommand {
		return
	}

	switch pkt.SubPort {
	case macp.SubGoal:
		x, y, _, err := decodeGoal(pkt)
		if err != nil {
			l.logger.Warn("sim agent dropped malformed goal", "uri", l.uri, "err", err)
			return
		}
		goal[0], goal[1] = x, y

	case macp.SubTakeoff:
		*flying = true
		l.console("CMD: takeoff")

	case macp.SubLand:
		*flying = false
		l.console("CMD: landing")

	case macp.SubParam:
		l.console("CMD: param set")
	}
}

func decodeGoal(pkt macp.Packet) (x, y, z float64, err error) {
	if len(pkt.Payload) != 8 {
		return 0, 0, 0, fmt.Errorf("%w: goal payload is %d bytes", macp.ErrBadPayload, len(pkt.Payload))
	}
	// Reuse the position decoder layout for the two coordinates.
	widened := macp.Packet{Payload: append(append([]byte{}, pkt.Payload...), 0, 0, 0, 0)}
	return macp.DecodePosition(widened)
}

// step advances the simulated position one tick toward the goal.
func step(pos *[3]float64, goal [2]float64, flying bool, opts Options) {
	dt := opts.PositionPeriod.Seconds()
	maxStep := opts.Speed * dt

	targetZ := 0.0
	if flying {
		targetZ = opts.HoverHeight

		dx := goal[0] - pos[0]
		dy := goal[1] - pos[1]
		dist := math.Hypot(dx, dy)
		if dist > 0 {
			scale := math.Min(1, maxStep/dist)
			pos[0] += dx * scale
			pos[1] += dy * scale
		}
	}

	dz := targetZ - pos[2]
	if math.Abs(dz) > maxStep {
		dz = math.Copysign(maxStep, dz)
	}
	pos[2] += dz
}

func (l *link) emitPosition(pos [3]float64) {
	payload := make([]byte, 0, 12)
	for _, v := range pos {
		payload = appendFloat32(payload, v)
	}
	l.emit(macp.Packet{
		DstID:   macp.ClientAddr,
		SrcID:   l.agentID,
		Port:    macp.PortPosition,
		Payload: payload,
	})
}

func (l *link) emitBattery(voltage float64) {
	l.emit(macp.Packet{
		DstID:   macp.ClientAddr,
		SrcID:   l.agentID,
		Port:    macp.PortBattery,
		Payload: appendFloat32(nil, voltage),
	})
}

func (l *link) console(text string) {
	l.emit(macp.Packet{
		DstID:   macp.ClientAddr,
		SrcID:   l.agentID,
		Port:    macp.PortConsole,
		Payload: []byte(text),
	})
}

// emitDisconnect delivers the final disconnect event, evicting buffered
// frames if the reader is behind, then closes the stream.
func (l *link) emitDisconnect(cause error) {
	ev := transport.Event{Disconnected: true, Err: cause}
	for {
		select {
		case l.events <- ev:
			close(l.events)
			return
		default:
			select {
			case <-l.events:
			default:
			}
		}
	}
}

func (l *link) emit(pkt macp.Packet) {
	frame, err := pkt.Marshal()
	if err != nil {
		return
	}
	select {
	case l.events <- transport.Event{Frame: frame}:
	default:
		// Slow reader: the radio would have dropped it too.
	}
}

func appendFloat32(payload []byte, v float64) []byte {
	bits := math.Float32bits(float32(v))
	return append(payload, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}
