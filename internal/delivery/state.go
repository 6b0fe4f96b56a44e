package delivery

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/wpprelay/internal/bus"
)

// State is a delivery session lifecycle state.
type State string

const (
	Connecting State = "CONNECTING"
	Active     State = "ACTIVE"
	Closing    State = "CLOSING"
	Closed     State = "CLOSED"
)

var validTransitions = map[State][]State{
	Connecting: {Active, Closing},
	Active:     {Closing},
	Closing:    {Closed},
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu        sync.RWMutex
	current   State
	sessionID string
	bus       *bus.Bus
}

// NewMachine creates a machine in the Connecting state. Transitions are
// published on b when it is non-nil.
func NewMachine(sessionID string, b *bus.Bus) *Machine {
	return &Machine{
		current:   Connecting,
		sessionID: sessionID,
		bus:       b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to a new state. It returns an error if the transition is
// not in the table.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindSessionState, StateChange{SessionID: m.sessionID, From: from, To: to})
	return nil
}

// StateChange is the payload of session state events.
type StateChange struct {
	SessionID string
	From      State
	To        State
}
