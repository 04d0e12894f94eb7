// ABOUTME: Transport abstraction over the real radio bridge and the simulator.
// ABOUTME: Defines the Link contract that agent sessions consume.

package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrConnect indicates the backend could not establish a link.
var ErrConnect = errors.New("transport: connect failed")

// ErrLinkClosed indicates a send on a link that is no longer open.
var ErrLinkClosed = errors.New("transport: link closed")

// Mode selects which backend new links are opened against.
type Mode int

const (
	ModeReal Mode = iota
	ModeSimulated
)

func (m Mode) String() string {
	switch m {
	case ModeReal:
		return "real"
	case ModeSimulated:
		return "simulated"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Event is one notification from a link: either a raw inbound frame or a
// disconnect signal. After a disconnect event the link emits nothing else.
type Event struct {
	Frame        []byte
	Disconnected bool

	// Err carries the transport failure behind an unclean disconnect.
	// Nil for clean teardown.
	Err error
}

// Link is one open channel to a single agent. Send is best-effort: the
// radio gives no delivery guarantee and this layer adds none.
type Link interface {
	// Send transmits one raw frame. Returns ErrLinkClosed after Close or
	// a disconnect event.
	Send(frame []byte) error

	// Events returns the inbound event stream. The channel is closed
	// after a disconnect event has been delivered.
	Events() <-chan Event

	// Close tears the link down and releases its resources. Safe to call
	// more than once.
	Close() error
}

// Transport opens links to agents. Implementations must isolate links
// from each other: a failure on one never affects another.
type Transport interface {
	// Connect opens a link to the agent behind uri. The address is the
	// 64-bit radio address from configuration. Blocks until the link is
	// established, the backend refuses, or ctx is done.
	Connect(ctx context.Context, uri string, address uint64) (Link, error)
}
