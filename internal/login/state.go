package login

import (
	"fmt"
	"slices"
	"sync"
)

// State is one step of the interactive link handshake.
type State string

const (
	// Idle: no handshake in progress.
	Idle State = "IDLE"
	// CodeRequested: a one-time code was sent; the half-open connection
	// waits for Complete. Wrong-code and need-password retries stay here.
	CodeRequested State = "CODE_REQUESTED"
	// Authenticated: terminal success; the credential is persisted.
	Authenticated State = "AUTHENTICATED"
	// Failed: terminal failure; the handshake restarts from Idle.
	Failed State = "FAILED"
)

var validTransitions = map[State][]State{
	Idle:          {CodeRequested, Authenticated, Failed},
	CodeRequested: {Authenticated, Failed},
	Authenticated: {},
	Failed:        {Idle},
}

// Machine enforces handshake state transitions for one pending login.
type Machine struct {
	mu      sync.RWMutex
	current State
}

// NewMachine creates a machine in Idle.
func NewMachine() *Machine {
	return &Machine{current: Idle}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid login transition from %s to %s", m.current, to)
	}
	m.current = to
	return nil
}
