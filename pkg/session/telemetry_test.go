package session

import "testing"

func TestSessionMetrics_RecordTransitionCreatesAndIncrements(t *testing.T) {
	m := newSessionMetrics()
	m.recordTransition(StateIdle, StateListening)
	m.recordTransition(StateIdle, StateListening)

	counter := m.stateTransitions.Get("IDLE_to_LISTENING")
	if counter == nil {
		t.Fatal("expected a counter for IDLE_to_LISTENING")
	}
	if got := counter.String(); got != "2" {
		t.Fatalf("expected count 2, got %s", got)
	}
}

func TestSessionMetrics_DistinctTransitionsTrackedSeparately(t *testing.T) {
	m := newSessionMetrics()
	m.recordTransition(StateIdle, StateListening)
	m.recordTransition(StateListening, StateIdle)

	if m.stateTransitions.Get("IDLE_to_LISTENING") == nil {
		t.Fatal("expected IDLE_to_LISTENING counter")
	}
	if m.stateTransitions.Get("LISTENING_to_IDLE") == nil {
		t.Fatal("expected LISTENING_to_IDLE counter")
	}
}
