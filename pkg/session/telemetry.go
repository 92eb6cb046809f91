package session

import "expvar"

// Telemetry is a snapshot of the session's adaptive-tuning and turn
// accounting state, returned by Controller.Telemetry (spec §4.9.1).
type Telemetry struct {
	CancellationRate  float64
	CurrentDebounceMs int
	TotalTurns        int64
	InterruptionCount int64
	TokensWasted      int64
}

// sessionMetrics holds per-instance expvar counters, mirroring the
// teacher's newAgentMetrics: individually constructed rather than
// globally registered, so tests can spin up many sessions without expvar
// name collisions.
type sessionMetrics struct {
	totalTurns        *expvar.Int
	cancelledTurns    *expvar.Int
	tokensWasted      *expvar.Int
	stateTransitions  *expvar.Map
	currentDebounceMs *expvar.Float
}

func newSessionMetrics() *sessionMetrics {
	transitions := &expvar.Map{}
	transitions.Init()
	return &sessionMetrics{
		totalTurns:        &expvar.Int{},
		cancelledTurns:    &expvar.Int{},
		tokensWasted:      &expvar.Int{},
		stateTransitions:  transitions,
		currentDebounceMs: &expvar.Float{},
	}
}

func (m *sessionMetrics) recordTransition(from, to TurnState) {
	key := from.String() + "_to_" + to.String()
	if counter := m.stateTransitions.Get(key); counter != nil {
		counter.(*expvar.Int).Add(1)
		return
	}
	counter := &expvar.Int{}
	counter.Set(1)
	m.stateTransitions.Set(key, counter)
}
