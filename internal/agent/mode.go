// ABOUTME: Mode controller switching between real and simulated transports.
// ABOUTME: Mode changes are rejected while any agent link is up.

package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/CrazyflieTHI/cf-client-multi-agent-thi/internal/transport"
)

// ErrModeChangeRejected indicates a mode switch was attempted while
// agent links were active.
var ErrModeChangeRejected = errors.New("mode change rejected")

// activityCounter reports how many sessions are currently active.
// The Registry implements this.
type activityCounter interface {
	ActiveSessions() int
}

// ModeController selects which transport backend new connections use.
// The selection is consulted only at connect time; established links
// keep the backend they were opened with until they close.
type ModeController struct {
	mu       sync.Mutex
	mode     transport.Mode
	backends map[transport.Mode]transport.Transport
	activity activityCounter
}

// NewModeController creates a controller starting in the given mode.
// Every mode that can be selected must have a backend.
func NewModeController(initial transport.Mode, backends map[transport.Mode]transport.Transport) (*ModeController, error) {
	if _, ok := backends[initial]; !ok {
		return nil, fmt.Errorf("no transport backend for mode %s", initial)
	}
	return &ModeController{mode: initial, backends: backends}, nil
}

// Bind attaches the activity source used to guard mode changes.
func (m *ModeController) Bind(activity activityCounter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = activity
}

// Mode returns the currently selected mode.
func (m *ModeController) Mode() transport.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Transport returns the backend for the currently selected mode.
func (m *ModeController) Transport() transport.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backends[m.mode]
}

// SetMode switches the selected backend. Fails with
// ErrModeChangeRejected while any session is connecting or connected.
func (m *ModeController) SetMode(mode transport.Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.backends[mode]; !ok {
		return fmt.Errorf("no transport backend for mode %s", mode)
	}
	if m.activity != nil {
		if n := m.activity.ActiveSessions(); n > 0 {
			return fmt.Errorf("%w: %d agent links active", ErrModeChangeRejected, n)
		}
	}
	m.mode = mode
	return nil
}
