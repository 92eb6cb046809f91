package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avoxio/turnctl/pkg/turn"
)

func TestSilenceTimer_FiresAfterDebounce(t *testing.T) {
	timer := NewSilenceTimer(SilenceTimerConfig{InitialDebounceMs: 20})
	fired := make(chan struct{})
	timer.Start(func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected timer to fire within 200ms")
	}
}

func TestSilenceTimer_RestartResetsCountdown(t *testing.T) {
	timer := NewSilenceTimer(SilenceTimerConfig{InitialDebounceMs: 40})
	var fireCount int
	var mu sync.Mutex
	onFire := func() {
		mu.Lock()
		fireCount++
		mu.Unlock()
	}

	timer.Start(onFire)
	time.Sleep(20 * time.Millisecond)
	timer.Start(onFire) // restarts before the first would have fired

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fireCount != 1 {
		t.Fatalf("expected exactly 1 fire after restart, got %d", fireCount)
	}
}

func TestSilenceTimer_CancelSuppressesFire(t *testing.T) {
	timer := NewSilenceTimer(SilenceTimerConfig{InitialDebounceMs: 20})
	fired := false
	timer.Start(func() { fired = true })
	timer.Cancel()

	time.Sleep(60 * time.Millisecond)
	if fired {
		t.Fatal("expected cancelled timer to not fire")
	}
}

func TestSilenceTimer_AdjustDebounceWidensOnHighCancellation(t *testing.T) {
	timer := NewSilenceTimer(SilenceTimerConfig{InitialDebounceMs: 400, MaxDebounceMs: 1200, CancellationThreshold: 0.3})
	timer.AdjustDebounce(0.5) // above threshold
	if got := timer.CurrentDebounceMs(); got != 500 {
		t.Fatalf("expected debounce to widen to 500, got %d", got)
	}
}

func TestSilenceTimer_AdjustDebounceNarrowingFlooredAtMin(t *testing.T) {
	timer := NewSilenceTimer(SilenceTimerConfig{InitialDebounceMs: 400, MinDebounceMs: 400, CancellationThreshold: 0.3})
	timer.AdjustDebounce(0.1) // below threshold
	if got := timer.CurrentDebounceMs(); got != 400 {
		t.Fatalf("expected debounce to stay floored at 400, got %d", got)
	}
}

func TestSilenceTimer_AdjustDebounceCapsAtBounds(t *testing.T) {
	timer := NewSilenceTimer(SilenceTimerConfig{InitialDebounceMs: 1190, MaxDebounceMs: 1200})
	timer.AdjustDebounce(1.0)
	if got := timer.CurrentDebounceMs(); got != 1200 {
		t.Fatalf("expected debounce capped at max 1200, got %d", got)
	}
}

type fakeDetector struct {
	threshold     float64
	supports      bool
	predictions   []float64
	predictionErr error
	calls         int
	mu            sync.Mutex
}

func (d *fakeDetector) UnlikelyThreshold(language string) (float64, error) {
	return d.threshold, nil
}

func (d *fakeDetector) SupportsLanguage(language string) bool {
	return d.supports
}

func (d *fakeDetector) PredictEndOfTurn(ctx context.Context, chatCtx turn.ChatContext) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.predictionErr != nil {
		return 0, d.predictionErr
	}
	idx := d.calls
	if idx >= len(d.predictions) {
		idx = len(d.predictions) - 1
	}
	d.calls++
	return d.predictions[idx], nil
}

func TestSilenceTimer_DetectorGatesFireUntilThresholdMet(t *testing.T) {
	detector := &fakeDetector{threshold: 0.8, supports: true, predictions: []float64{0.1, 0.2, 0.9}}
	timer := NewSilenceTimer(SilenceTimerConfig{
		InitialDebounceMs: 10,
		Detector:          detector,
		Language:          "en",
	})

	fired := make(chan struct{})
	timer.Start(func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected detector-gated timer to eventually fire")
	}
}

func TestSilenceTimer_DetectorUnsupportedLanguageDegradesToFire(t *testing.T) {
	detector := &fakeDetector{threshold: 0.8, supports: false}
	timer := NewSilenceTimer(SilenceTimerConfig{
		InitialDebounceMs: 10,
		Detector:          detector,
		Language:          "xx",
	})

	fired := make(chan struct{})
	timer.Start(func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected unsupported-language detector to degrade to firing immediately")
	}
}
