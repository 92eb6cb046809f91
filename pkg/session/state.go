package session

import (
	"fmt"
	"sync"
)

// TurnState is one of the five states a turn can occupy.
type TurnState int32

const (
	StateIdle TurnState = iota
	StateListening
	StateSpeculative
	StateCommitted
	StateSpeaking
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateSpeculative:
		return "SPECULATIVE"
	case StateCommitted:
		return "COMMITTED"
	case StateSpeaking:
		return "SPEAKING"
	default:
		return "UNKNOWN"
	}
}

// legalTransitions enumerates the table in spec §4.1. Any pair not present
// here is illegal and transition() returns an INTERNAL_ERROR.
var legalTransitions = map[TurnState]map[TurnState]bool{
	StateIdle:        {StateListening: true},
	StateListening:   {StateSpeculative: true, StateIdle: true},
	StateSpeculative: {StateListening: true, StateCommitted: true, StateIdle: true},
	StateCommitted:   {StateSpeaking: true, StateIdle: true},
	StateSpeaking:    {StateListening: true, StateIdle: true},
}

// StateMachine enforces the legal transition table; it notifies no
// observers (the Turn Controller emits on_state_change itself). It is not safe for concurrent transition()
// calls from multiple goroutines; the Turn Controller serializes access to
// it on its own scheduler goroutine, matching §5's single-writer model.
type StateMachine struct {
	mu      sync.Mutex
	current TurnState
}

// NewStateMachine returns a state machine initialized to IDLE.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateIdle}
}

// Current returns the current state.
func (m *StateMachine) Current() TurnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition attempts to move to "to". It returns an *TurnError(INTERNAL_ERROR)
// if the transition is not in the legal table — per spec this must "fail
// loudly": it indicates a scheduler bug, not a recoverable condition.
func (m *StateMachine) Transition(to TurnState, reason string) (from TurnState, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from = m.current
	if from == to {
		return from, NewTurnError(ErrInternal, fmt.Sprintf("no-op transition %s->%s (%s)", from, to, reason), nil)
	}
	if !legalTransitions[from][to] {
		return from, NewTurnError(ErrInternal, fmt.Sprintf("illegal transition %s->%s (%s)", from, to, reason), nil)
	}
	m.current = to
	return from, nil
}
