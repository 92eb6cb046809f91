package session

import "sync"

// TranscriptBuffer accumulates partial/final transcript fragments for one
// user utterance (spec §4.2). It is single-writer (the STT callback chain,
// marshaled onto the Turn Controller's scheduler goroutine) but exposes a
// mutex anyway so tests can read it from another goroutine safely.
type TranscriptBuffer struct {
	mu       sync.Mutex
	finals   []string
	partial  string
	locked   bool
	snapshot string
}

// NewTranscriptBuffer returns an empty, unlocked buffer.
func NewTranscriptBuffer() *TranscriptBuffer {
	return &TranscriptBuffer{}
}

// AddPartial records the latest partial hypothesis, also while locked:
// locking only freezes the finalized text that GetFinalText returns.
func (b *TranscriptBuffer) AddPartial(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.partial = text
}

// AddFinal appends a finalized fragment.
func (b *TranscriptBuffer) AddFinal(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finals = append(b.finals, text)
}

// Lock captures an immutable snapshot of the finalized text. GetFinalText
// returns this snapshot until Unlock is called.
func (b *TranscriptBuffer) Lock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locked = true
	b.snapshot = joinFinals(b.finals)
}

// Unlock releases the snapshot; GetFinalText resumes reflecting live state.
func (b *TranscriptBuffer) Unlock() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locked = false
}

// GetFinalText returns the locked snapshot if locked, else the live
// concatenation of finalized fragments.
func (b *TranscriptBuffer) GetFinalText() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.locked {
		return b.snapshot
	}
	return joinFinals(b.finals)
}

// Partial returns the latest partial hypothesis.
func (b *TranscriptBuffer) Partial() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.partial
}

// Locked reports whether the buffer currently holds a snapshot.
func (b *TranscriptBuffer) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// Clear resets all state, including the lock.
func (b *TranscriptBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finals = nil
	b.partial = ""
	b.locked = false
	b.snapshot = ""
}

func joinFinals(finals []string) string {
	out := ""
	for i, f := range finals {
		if i > 0 {
			out += " "
		}
		out += f
	}
	return out
}
