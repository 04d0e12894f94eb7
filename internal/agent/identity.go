// ABOUTME: Agent identity: link URI, radio address and display color.
// ABOUTME: Identities are assigned at configuration time and never change.

package agent

import (
	"errors"
	"fmt"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/macp"
)

// MaxAgents is the largest roster a single station supports.
const MaxAgents = 8

// ErrTooManyAgents indicates the configured roster exceeds MaxAgents.
var ErrTooManyAgents = errors.New("too many agents configured")

// ErrDuplicateURI indicates two roster entries share a link URI.
var ErrDuplicateURI = errors.New("duplicate link uri")

// ErrBadAddress indicates a radio address that cannot identify an agent.
var ErrBadAddress = errors.New("invalid radio address")

// ErrUnknownAgent indicates an identity that is not part of the roster.
var ErrUnknownAgent = errors.New("unknown agent")

// palette holds the display colors handed out to agents in roster order.
var palette = [MaxAgents]string{
	"green", "red", "blue", "yellow", "cyan", "magenta", "higreen", "hired",
}

// PaletteColor returns the display color assigned to roster index.
func PaletteColor(index int) string {
	return palette[index%MaxAgents]
}

// LinkSpec is one roster entry as it appears in configuration.
type LinkSpec struct {
	URI     string
	Address uint64
}

// Identity describes one agent for the lifetime of a station run.
type Identity struct {
	// URI is the radio link URI, e.g. "radio://0/80/2M/E7E7E7E701".
	URI string
	// Address is the full 64-bit radio address.
	Address uint64
	// ID is the wire-level agent id, the low nibble of the address.
	ID uint8
	// Color is the display color assigned from the palette.
	Color string
}

// newIdentity derives an Identity from a roster entry.
func newIdentity(spec LinkSpec, index int) (Identity, error) {
	id := uint8(spec.Address & 0x0F)
	if id == macp.ClientAddr || id == macp.BroadcastAddr {
		return Identity{}, fmt.Errorf("%w: %#x maps to reserved id %#x", ErrBadAddress, spec.Address, id)
	}
	return Identity{
		URI:     spec.URI,
		Address: spec.Address,
		ID:      id,
		Color:   PaletteColor(index),
	}, nil
}
