package session

import (
	"log/slog"
	"sync"
)

const (
	// defaultAudioBufferSeconds bounds the Audio Input Buffer per spec §4.3:
	// max 30s at 16kHz mono 16-bit (~960KB).
	defaultAudioBufferSeconds = 30
	defaultAudioSampleRate    = 16000
	bytesPerSample            = 2 // 16-bit PCM
)

// AudioInputBuffer is a bounded byte ring holding recent user audio. Add
// appends; once the buffer exceeds its capacity, the oldest bytes are
// dropped to keep size at cap, with a warning logged (spec §4.3, Data Model
// invariants).
type AudioInputBuffer struct {
	mu      sync.Mutex
	buf     []byte
	maxSize int
	total   int64
	log     *slog.Logger
}

// NewAudioInputBuffer returns a buffer capped at maxSeconds of audio at
// sampleRate, 16-bit samples.
func NewAudioInputBuffer(maxSeconds, sampleRate int, log *slog.Logger) *AudioInputBuffer {
	if maxSeconds <= 0 {
		maxSeconds = defaultAudioBufferSeconds
	}
	if sampleRate <= 0 {
		sampleRate = defaultAudioSampleRate
	}
	if log == nil {
		log = slog.Default()
	}
	return &AudioInputBuffer{
		maxSize: maxSeconds * sampleRate * bytesPerSample,
		log:     log,
	}
}

// Add appends chunk, dropping the oldest bytes on overflow.
func (a *AudioInputBuffer) Add(chunk []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = append(a.buf, chunk...)
	a.total += int64(len(chunk))
	if len(a.buf) > a.maxSize {
		overflow := len(a.buf) - a.maxSize
		a.buf = a.buf[overflow:]
		a.log.Warn("audio input buffer overflow, dropped oldest bytes", "dropped", overflow)
	}
}

// Clear empties the buffer.
func (a *AudioInputBuffer) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf = a.buf[:0]
}

// SizeBytes returns the current buffered size.
func (a *AudioInputBuffer) SizeBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

// DurationSeconds returns the duration of buffered audio at sampleRate.
func (a *AudioInputBuffer) DurationSeconds(sampleRate int) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sampleRate <= 0 {
		sampleRate = defaultAudioSampleRate
	}
	samples := len(a.buf) / bytesPerSample
	return float64(samples) / float64(sampleRate)
}
