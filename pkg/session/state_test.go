package session

import "testing"

func TestStateMachine_InitialStateIsIdle(t *testing.T) {
	m := NewStateMachine()
	if m.Current() != StateIdle {
		t.Fatalf("expected IDLE, got %s", m.Current())
	}
}

func TestStateMachine_LegalTransition(t *testing.T) {
	m := NewStateMachine()
	from, err := m.Transition(StateListening, "first audio chunk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if from != StateIdle {
		t.Fatalf("expected from=IDLE, got %s", from)
	}
	if m.Current() != StateListening {
		t.Fatalf("expected current=LISTENING, got %s", m.Current())
	}
}

func TestStateMachine_IllegalTransition(t *testing.T) {
	m := NewStateMachine()
	// IDLE -> SPECULATIVE is not in the legal table.
	_, err := m.Transition(StateSpeculative, "bogus")
	if err == nil {
		t.Fatal("expected an error for an illegal transition")
	}
	te, ok := err.(*TurnError)
	if !ok {
		t.Fatalf("expected *TurnError, got %T", err)
	}
	if te.Kind != ErrInternal {
		t.Fatalf("expected ErrInternal, got %s", te.Kind)
	}
	if m.Current() != StateIdle {
		t.Fatalf("state must not change on illegal transition, got %s", m.Current())
	}
}

func TestStateMachine_NoOpTransitionIsIllegal(t *testing.T) {
	m := NewStateMachine()
	_, err := m.Transition(StateIdle, "no-op")
	if err == nil {
		t.Fatal("expected an error transitioning to the same state")
	}
}

func TestStateMachine_FullHappyPathSequence(t *testing.T) {
	m := NewStateMachine()
	sequence := []TurnState{StateListening, StateSpeculative, StateCommitted, StateSpeaking, StateListening, StateIdle}
	for _, to := range sequence {
		if _, err := m.Transition(to, "happy path"); err != nil {
			t.Fatalf("unexpected error transitioning to %s: %v", to, err)
		}
	}
	if m.Current() != StateIdle {
		t.Fatalf("expected final state IDLE, got %s", m.Current())
	}
}

func TestTurnState_StringUnknown(t *testing.T) {
	var s TurnState = 99
	if s.String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for out-of-range state, got %s", s.String())
	}
}
