// ABOUTME: Manages the agent roster, handles connects, and fans out state changes.
// ABOUTME: Central coordinator for agent sessions and telemetry forwarding.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrLinksActive indicates an operation that requires all links down
// was attempted while sessions were connecting or connected.
var ErrLinksActive = errors.New("links active")

// subscriberBufferSize is the channel buffer for each state subscriber.
const subscriberBufferSize = 64

// TelemetrySink receives every telemetry event the registry's sessions
// produce. The router implements this.
type TelemetrySink interface {
	Publish(Identity, TelemetryEvent)
}

// Registry tracks the configured roster and one session per agent.
// Sessions are keyed by link URI; a reconnect replaces the previous
// session object.
type Registry struct {
	logger *slog.Logger
	modes  *ModeController
	sink   TelemetrySink

	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
	subs    map[string]chan StateChange
}

type entry struct {
	identity Identity
	session  *Session
}

// NewRegistry creates a registry. The mode controller selects which
// transport a connect uses; the sink receives all telemetry.
func NewRegistry(logger *slog.Logger, modes *ModeController, sink TelemetrySink) *Registry {
	return &Registry{
		logger:  logger.With("component", "registry"),
		modes:   modes,
		sink:    sink,
		entries: make(map[string]*entry),
		subs:    make(map[string]chan StateChange),
	}
}

// Configure installs the roster. It rejects more than MaxAgents
// entries, duplicate URIs and reserved addresses, and refuses to run
// while any session is active. Identities get palette colors in roster
// order.
func (r *Registry) Configure(roster []LinkSpec) error {
	if len(roster) > MaxAgents {
		return fmt.Errorf("%w: %d entries, max %d", ErrTooManyAgents, len(roster), MaxAgents)
	}

	identities := make([]Identity, 0, len(roster))
	seenURI := make(map[string]bool, len(roster))
	seenID := make(map[uint8]bool, len(roster))
	for i, spec := range roster {
		if seenURI[spec.URI] {
			return fmt.Errorf("%w: %s", ErrDuplicateURI, spec.URI)
		}
		seenURI[spec.URI] = true

		id, err := newIdentity(spec, i)
		if err != nil {
			return err
		}
		if seenID[id.ID] {
			return fmt.Errorf("%w: %#x collides with another agent id", ErrBadAddress, spec.Address)
		}
		seenID[id.ID] = true
		identities = append(identities, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeLocked() > 0 {
		return fmt.Errorf("cannot reconfigure roster: %w", ErrLinksActive)
	}

	r.order = r.order[:0]
	r.entries = make(map[string]*entry, len(identities))
	for _, id := range identities {
		r.order = append(r.order, id.URI)
		r.entries[id.URI] = &entry{identity: id}
	}

	r.logger.Info("roster configured", "agents", len(identities))
	return nil
}

// Identities returns the roster in configuration order.
func (r *Registry) Identities() []Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Identity, 0, len(r.order))
	for _, uri := range r.order {
		out = append(out, r.entries[uri].identity)
	}
	return out
}

// Identity resolves a link URI to its roster identity.
func (r *Registry) Identity(uri string) (Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[uri]
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnknownAgent, uri)
	}
	return e.identity, nil
}

// State returns the current snapshot for one agent. An agent that was
// never connected reports a zero snapshot in the disconnected state.
func (r *Registry) State(uri string) (AgentState, error) {
	r.mu.RLock()
	e, ok := r.entries[uri]
	r.mu.RUnlock()

	if !ok {
		return AgentState{}, fmt.Errorf("%w: %s", ErrUnknownAgent, uri)
	}
	if e.session == nil {
		return AgentState{Conn: StateDisconnected}, nil
	}
	return e.session.Snapshot(), nil
}

// ConnectAgent brings up the link for one agent using the transport
// the mode controller currently selects. Connecting an agent that is
// already connecting or connected is a no-op.
func (r *Registry) ConnectAgent(ctx context.Context, uri string) error {
	r.mu.Lock()
	e, ok := r.entries[uri]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAgent, uri)
	}
	if e.session != nil && e.session.State().active() {
		r.mu.Unlock()
		return nil
	}

	prev := AgentState{}
	if e.session != nil {
		prev = e.session.Snapshot()
	}
	connectCtx, cancel := context.WithCancel(ctx)
	sess := newSession(e.identity, prev, cancel, r.logger, r.sink.Publish, r.publishState)
	e.session = sess
	tr := r.modes.Transport()
	r.mu.Unlock()

	r.publishState(sess.identity, sess.Snapshot())
	r.logger.Info("connecting agent", "uri", uri, "mode", r.modes.Mode().String())

	link, err := tr.Connect(connectCtx, sess.identity.URI, sess.identity.Address)
	if err != nil {
		sess.abort(err)
		return fmt.Errorf("connect %s: %w", uri, err)
	}

	sess.attach(link)
	return nil
}

// DisconnectAgent cleanly tears down one agent link. A connecting
// session has its in-flight connect cancelled; disconnecting an
// inactive agent is a no-op.
func (r *Registry) DisconnectAgent(uri string) error {
	r.mu.RLock()
	e, ok := r.entries[uri]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, uri)
	}
	if e.session == nil || !e.session.State().active() {
		return nil
	}
	return e.session.Close()
}

// DisconnectAll tears down every active link.
func (r *Registry) DisconnectAll() error {
	r.mu.RLock()
	uris := make([]string, len(r.order))
	copy(uris, r.order)
	r.mu.RUnlock()

	var errs []error
	for _, uri := range uris {
		if err := r.DisconnectAgent(uri); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send routes a command to the agent behind uri.
func (r *Registry) Send(uri string, cmd Command) error {
	r.mu.RLock()
	e, ok := r.entries[uri]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, uri)
	}
	if e.session == nil {
		return fmt.Errorf("%w: %s was never connected", ErrNotConnected, uri)
	}
	return e.session.Send(cmd)
}

// ActiveSessions counts sessions that are connecting or connected.
func (r *Registry) ActiveSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

func (r *Registry) activeLocked() int {
	n := 0
	for _, e := range r.entries {
		if e.session != nil && e.session.State().active() {
			n++
		}
	}
	return n
}

// SubscribeStates registers a subscriber for agent state changes.
// Returns a channel and a subscription ID for later unsubscription.
// The subscription is cleaned up when ctx is cancelled.
func (r *Registry) SubscribeStates(ctx context.Context) (<-chan StateChange, string) {
	subID := uuid.New().String()
	ch := make(chan StateChange, subscriberBufferSize)

	r.mu.Lock()
	r.subs[subID] = ch
	r.mu.Unlock()

	r.logger.Debug("state subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		r.UnsubscribeStates(subID)
	}()

	return ch, subID
}

// UnsubscribeStates removes a subscription and closes its channel.
func (r *Registry) UnsubscribeStates(subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.subs[subID]
	if !ok {
		return
	}
	delete(r.subs, subID)
	close(ch)
}

// publishState fans a state change out to all subscribers.
// Non-blocking: changes are dropped for subscribers whose channels are
// full.
func (r *Registry) publishState(id Identity, st AgentState) {
	r.mu.RLock()
	targets := make([]chan StateChange, 0, len(r.subs))
	for _, ch := range r.subs {
		targets = append(targets, ch)
	}
	r.mu.RUnlock()

	change := StateChange{Identity: id, State: st}
	for _, ch := range targets {
		select {
		case ch <- change:
		default:
			r.logger.Debug("dropped state change for slow subscriber", "uri", id.URI)
		}
	}
}
