// ABOUTME: Telemetry router: one bounded queue and one dispatch worker per agent.
// ABOUTME: Preserves per-agent order while isolating agents from each other.

package router

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/agent"
)

// DefaultQueueSize is the per-agent queue capacity used when the
// caller does not override it.
const DefaultQueueSize = 128

// ErrMissingSink indicates a router was constructed without a handler
// for one of the event kinds.
var ErrMissingSink = errors.New("missing sink")

// PositionSink consumes position samples for one agent.
type PositionSink func(agent.Identity, agent.PositionUpdate)

// ConsoleSink consumes console lines for one agent.
type ConsoleSink func(agent.Identity, agent.DebugLine)

// StatusSink consumes link and battery status events for one agent.
type StatusSink func(agent.Identity, agent.TelemetryEvent)

// Sinks carries exactly one handler per event kind.
type Sinks struct {
	Position PositionSink
	Console  ConsoleSink
	Status   StatusSink
}

// Router fans telemetry out to the sinks. Every agent gets its own
// bounded queue drained by its own worker goroutine, so a burst or a
// slow sink on one agent never delays another agent's events. Within
// one agent, events reach the sinks in publish order.
type Router struct {
	logger    *slog.Logger
	sinks     Sinks
	queueSize int

	mu     sync.Mutex
	queues map[string]*queue
	closed bool
	wg     sync.WaitGroup
}

// Option adjusts router construction.
type Option func(*Router)

// WithQueueSize overrides the per-agent queue capacity.
func WithQueueSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// New creates a router. All three sinks are required.
func New(logger *slog.Logger, sinks Sinks, opts ...Option) (*Router, error) {
	if sinks.Position == nil || sinks.Console == nil || sinks.Status == nil {
		return nil, ErrMissingSink
	}
	r := &Router{
		logger:    logger.With("component", "router"),
		sinks:     sinks,
		queueSize: DefaultQueueSize,
		queues:    make(map[string]*queue),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Publish enqueues one event for dispatch. It never blocks: when the
// agent's queue is full the oldest console line is evicted first, then
// the oldest position sample, in which case the next delivered position
// is flagged stale, then the oldest battery sample. Status events are
// always accepted.
// Implements the agent.TelemetrySink interface.
func (r *Router) Publish(id agent.Identity, ev agent.TelemetryEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	q, ok := r.queues[id.URI]
	if !ok {
		q = newQueue(r, id)
		r.queues[id.URI] = q
		r.wg.Add(1)
		go q.dispatch()
	}
	r.mu.Unlock()

	q.push(ev)
}

// Close stops all workers after their queues drain. Publish becomes a
// no-op once Close has been called.
func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	queues := make([]*queue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.mu.Unlock()

	for _, q := range queues {
		q.stop()
	}
	r.wg.Wait()
}

// queue is one agent's bounded event buffer plus its worker handle.
type queue struct {
	router *Router
	id     agent.Identity

	mu           sync.Mutex
	buf          []agent.TelemetryEvent
	pendingStale bool

	notify   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newQueue(r *Router, id agent.Identity) *queue {
	return &queue{
		router: r,
		id:     id,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *queue) push(ev agent.TelemetryEvent) {
	q.mu.Lock()
	if len(q.buf) >= q.router.queueSize {
		if !q.evictLocked(ev) {
			q.mu.Unlock()
			return
		}
	}
	q.buf = append(q.buf, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// evictLocked frees one slot in a full queue. Returns false when the
// incoming event should be dropped instead.
func (q *queue) evictLocked(incoming agent.TelemetryEvent) bool {
	for i, ev := range q.buf {
		if _, ok := ev.(agent.DebugLine); ok {
			q.buf = append(q.buf[:i], q.buf[i+1:]...)
			q.router.logger.Debug("evicted console line", "uri", q.id.URI)
			return true
		}
	}
	for i, ev := range q.buf {
		if _, ok := ev.(agent.PositionUpdate); ok {
			q.buf = append(q.buf[:i], q.buf[i+1:]...)
			q.pendingStale = true
			q.router.logger.Debug("evicted position sample", "uri", q.id.URI)
			return true
		}
	}

	for i, ev := range q.buf {
		if _, ok := ev.(agent.BatteryUpdate); ok {
			q.buf = append(q.buf[:i], q.buf[i+1:]...)
			q.router.logger.Debug("evicted battery sample", "uri", q.id.URI)
			return true
		}
	}

	// Queue holds only link events. Those are never evicted and occur
	// at most a few times per session, so the queue stays bounded;
	// drop the incoming event unless it is a status event itself.
	switch incoming.(type) {
	case agent.PositionUpdate:
		q.pendingStale = true
		return false
	case agent.DebugLine:
		return false
	default:
		return true
	}
}

func (q *queue) pop() (agent.TelemetryEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) == 0 {
		return nil, false
	}
	ev := q.buf[0]
	q.buf = q.buf[1:]

	if pos, ok := ev.(agent.PositionUpdate); ok && q.pendingStale {
		pos.Stale = true
		q.pendingStale = false
		ev = pos
	}
	return ev, true
}

func (q *queue) dispatch() {
	defer q.router.wg.Done()

	for {
		for {
			ev, ok := q.pop()
			if !ok {
				break
			}
			q.deliver(ev)
		}

		select {
		case <-q.notify:
		case <-q.done:
			// Final drain, then exit.
			for {
				ev, ok := q.pop()
				if !ok {
					return
				}
				q.deliver(ev)
			}
		}
	}
}

func (q *queue) deliver(ev agent.TelemetryEvent) {
	switch e := ev.(type) {
	case agent.PositionUpdate:
		q.router.sinks.Position(q.id, e)
	case agent.DebugLine:
		q.router.sinks.Console(q.id, e)
	default:
		q.router.sinks.Status(q.id, e)
	}
}

func (q *queue) stop() {
	q.stopOnce.Do(func() { close(q.done) })
}
