package login

import "testing"

func TestInitialState(t *testing.T) {
	m := NewMachine()
	if m.Current() != Idle {
		t.Errorf("initial state = %s, want IDLE", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Idle, CodeRequested},
		{Idle, Authenticated},
		{Idle, Failed},
		{CodeRequested, Authenticated},
		{CodeRequested, Failed},
		{Failed, Idle},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := &Machine{current: tt.from}
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Authenticated, Idle},
		{Authenticated, CodeRequested},
		{Authenticated, Failed},
		{CodeRequested, Idle},
		{Failed, CodeRequested},
		{Failed, Authenticated},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := &Machine{current: tt.from}
			if err := m.Transition(tt.to); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("failed transition moved state to %s", m.Current())
			}
		})
	}
}

// Authenticated is terminal: a fresh handshake needs a fresh machine.
func TestAuthenticatedIsTerminal(t *testing.T) {
	m := &Machine{current: Authenticated}
	for _, to := range []State{Idle, CodeRequested, Authenticated, Failed} {
		if err := m.Transition(to); err == nil {
			t.Errorf("Transition(AUTHENTICATED -> %s) should fail", to)
		}
	}
}
