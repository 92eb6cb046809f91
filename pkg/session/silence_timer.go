package session

import (
	"context"
	"sync"
	"time"

	"github.com/avoxio/turnctl/pkg/turn"
)

const (
	defaultMinDebounceMs        = 400
	defaultMaxDebounceMs        = 1200
	defaultCancellationThreshold = 0.30
	debounceIncreaseMs           = 100
	debounceDecreaseMs           = 50
	detectorPollCeiling          = 2 * time.Second
	detectorPollInterval         = 100 * time.Millisecond
)

// SilenceTimer is a single-shot, restartable debounce timer that fires
// on_silence_complete once the user appears to have finished an utterance
// (spec §4.5). Successive Start calls while armed reset the countdown.
type SilenceTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	gen      int
	armed    bool
	debounce int

	minMs, maxMs int
	threshold    float64

	detector turn.Detector
	language string
}

// SilenceTimerConfig configures debounce bounds and the optional ML
// end-of-turn detector enrichment.
type SilenceTimerConfig struct {
	InitialDebounceMs int
	MinDebounceMs     int
	MaxDebounceMs     int
	CancellationThreshold float64
	Detector          turn.Detector // nil disables the enrichment
	Language          string
}

// NewSilenceTimer returns a disarmed timer with the given configuration,
// filling in defaults for zero fields.
func NewSilenceTimer(cfg SilenceTimerConfig) *SilenceTimer {
	debounce := cfg.InitialDebounceMs
	if debounce <= 0 {
		debounce = defaultMinDebounceMs
	}
	minMs := cfg.MinDebounceMs
	if minMs <= 0 {
		minMs = defaultMinDebounceMs
	}
	maxMs := cfg.MaxDebounceMs
	if maxMs <= 0 {
		maxMs = defaultMaxDebounceMs
	}
	threshold := cfg.CancellationThreshold
	if threshold <= 0 {
		threshold = defaultCancellationThreshold
	}
	return &SilenceTimer{
		debounce:  debounce,
		minMs:     minMs,
		maxMs:     maxMs,
		threshold: threshold,
		detector:  cfg.Detector,
		language:  cfg.Language,
	}
}

// Start (re)arms the timer to invoke onFire after the current debounce
// interval, cancelling any timer already running. If a Detector is
// configured, onFire only runs once the detector also clears the
// language's UnlikelyThreshold, polled at a fixed interval up to a 2s
// ceiling; on ceiling or detector error it degrades to firing anyway.
func (s *SilenceTimer) Start(onFire func()) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.armed = true
	debounce := s.debounce
	detector := s.detector
	language := s.language
	s.timer = time.AfterFunc(time.Duration(debounce)*time.Millisecond, func() {
		if detector == nil {
			s.fireIfCurrent(gen, onFire)
			return
		}
		s.pollDetectorThenFire(gen, detector, language, onFire)
	})
	s.mu.Unlock()
}

// Cancel disarms the timer; a pending fire (including mid-poll) is
// suppressed.
func (s *SilenceTimer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	s.armed = false
}

// IsRunning reports whether the timer is currently armed: Start has been
// called and neither Cancel nor a fire has happened since (spec §4.9.4).
func (s *SilenceTimer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *SilenceTimer) fireIfCurrent(gen int, onFire func()) {
	s.mu.Lock()
	current := s.gen == gen
	if current {
		s.armed = false
	}
	s.mu.Unlock()
	if current {
		onFire()
	}
}

func (s *SilenceTimer) pollDetectorThenFire(gen int, detector turn.Detector, language string, onFire func()) {
	ctx, cancel := context.WithTimeout(context.Background(), detectorPollCeiling)
	defer cancel()

	threshold, err := detector.UnlikelyThreshold(language)
	if err != nil || !detector.SupportsLanguage(language) {
		s.fireIfCurrent(gen, onFire)
		return
	}

	ticker := time.NewTicker(detectorPollInterval)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		current := s.gen == gen
		s.mu.Unlock()
		if !current {
			return
		}

		prob, err := detector.PredictEndOfTurn(ctx, turn.ChatContext{Language: language})
		if err != nil || prob >= threshold {
			s.fireIfCurrent(gen, onFire)
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.fireIfCurrent(gen, onFire)
			return
		}
	}
}

// AdjustDebounce updates the current debounce interval from the observed
// cancellation rate: above threshold widens the dwell (favor fewer
// speculative cancellations), otherwise narrows it (favor latency).
func (s *SilenceTimer) AdjustDebounce(cancellationRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancellationRate > s.threshold {
		s.debounce += debounceIncreaseMs
		if s.debounce > s.maxMs {
			s.debounce = s.maxMs
		}
	} else {
		s.debounce -= debounceDecreaseMs
		if s.debounce < s.minMs {
			s.debounce = s.minMs
		}
	}
}

// CurrentDebounceMs returns the current debounce interval.
func (s *SilenceTimer) CurrentDebounceMs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debounce
}
