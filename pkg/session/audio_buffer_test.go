package session

import "testing"

func TestAudioInputBuffer_AddAccumulates(t *testing.T) {
	b := NewAudioInputBuffer(30, 16000, nil)
	b.Add([]byte{1, 2, 3, 4})
	b.Add([]byte{5, 6})
	if got := b.SizeBytes(); got != 6 {
		t.Fatalf("expected size 6, got %d", got)
	}
}

func TestAudioInputBuffer_OverflowDropsOldest(t *testing.T) {
	// 1 second at 1 sample/sec, 2 bytes/sample => 2 byte cap.
	b := NewAudioInputBuffer(1, 1, nil)
	b.Add([]byte{1, 2})
	b.Add([]byte{3, 4})
	if got := b.SizeBytes(); got != 2 {
		t.Fatalf("expected buffer capped at 2 bytes, got %d", got)
	}
	if b.buf[0] != 3 || b.buf[1] != 4 {
		t.Fatalf("expected oldest bytes dropped, got %v", b.buf)
	}
}

func TestAudioInputBuffer_Clear(t *testing.T) {
	b := NewAudioInputBuffer(30, 16000, nil)
	b.Add([]byte{1, 2, 3})
	b.Clear()
	if b.SizeBytes() != 0 {
		t.Fatal("expected empty buffer after Clear")
	}
}

func TestAudioInputBuffer_DurationSeconds(t *testing.T) {
	b := NewAudioInputBuffer(30, 16000, nil)
	// 32000 bytes = 16000 samples at 16kHz = 1 second.
	b.Add(make([]byte, 32000))
	if got := b.DurationSeconds(16000); got != 1.0 {
		t.Fatalf("expected 1.0s, got %v", got)
	}
}

func TestAudioInputBuffer_DefaultsAppliedOnZeroArgs(t *testing.T) {
	b := NewAudioInputBuffer(0, 0, nil)
	if b.maxSize != defaultAudioBufferSeconds*defaultAudioSampleRate*bytesPerSample {
		t.Fatalf("expected default cap, got %d", b.maxSize)
	}
}
