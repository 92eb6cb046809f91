package deepgram

import (
	"context"
	"testing"
	"time"

	"github.com/avoxio/turnctl/pkg/ai/stt"
	"github.com/avoxio/turnctl/pkg/rtc"
)

func TestReconnectBackoff_MatchesSchedule(t *testing.T) {
	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, expected := range want {
		if got := reconnectBackoff(attempt); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error when API key is missing")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	d, err := New(Config{APIKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.model != "nova-3" {
		t.Errorf("expected default model nova-3, got %s", d.model)
	}
	if d.baseURL != defaultBaseURL {
		t.Errorf("expected default base URL, got %s", d.baseURL)
	}
}

func newTestStream(t *testing.T) *deepgramStream {
	t.Helper()
	d, err := New(Config{APIKey: "key"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &deepgramStream{
		provider:  d,
		ctx:       context.Background(),
		cfg:       stt.StreamConfig{SampleRate: 16000},
		sendQueue: make(chan []byte, sendQueueCapacity),
		events:    make(chan stt.SpeechEvent, 32),
		closeSend: make(chan struct{}),
	}
}

func TestDialURL_IncludesExpectedParams(t *testing.T) {
	s := newTestStream(t)
	u := s.dialURL()
	for _, want := range []string{"model=nova-3", "encoding=linear16", "sample_rate=16000", "interim_results=true"} {
		if !contains(u, want) {
			t.Errorf("expected dial URL to contain %q, got %s", want, u)
		}
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}

func TestHandleMessage_FinalTranscriptEmitsFinalEvent(t *testing.T) {
	s := newTestStream(t)
	raw := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello world","confidence":0.95}]}}`)
	s.handleMessage(raw)

	select {
	case ev := <-s.events:
		if ev.Type != stt.SpeechEventFinal || !ev.IsFinal || ev.Text != "hello world" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
}

func TestHandleMessage_InterimTranscriptEmitsInterimEvent(t *testing.T) {
	s := newTestStream(t)
	raw := []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`)
	s.handleMessage(raw)

	select {
	case ev := <-s.events:
		if ev.Type != stt.SpeechEventInterim {
			t.Fatalf("expected interim event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
}

func TestHandleMessage_IgnoresEmptyTranscriptAndNonResultsFrames(t *testing.T) {
	s := newTestStream(t)
	s.handleMessage([]byte(`{"type":"Metadata"}`))
	s.handleMessage([]byte(`{"type":"Results","channel":{"alternatives":[{"transcript":""}]}}`))
	select {
	case ev := <-s.events:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHandleMessage_MalformedJSONIsIgnored(t *testing.T) {
	s := newTestStream(t)
	s.handleMessage([]byte(`not json`))
	select {
	case ev := <-s.events:
		t.Fatalf("expected no event for malformed input, got %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPush_ReturnsErrorWhenClosed(t *testing.T) {
	s := newTestStream(t)
	s.closed = true
	if err := s.Push(rtc.AudioFrame{Data: []byte{1, 2}}); err == nil {
		t.Fatal("expected error pushing to a closed stream")
	}
}

func TestPush_DropsAfterQueueBackpressureTimeout(t *testing.T) {
	s := newTestStream(t)
	s.sendQueue = make(chan []byte) // unbuffered: any send blocks until dropped

	start := time.Now()
	if err := s.Push(rtc.AudioFrame{Data: []byte{9}}); err != nil {
		t.Fatalf("Push should drop silently rather than error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < sendEnqueueWait {
		t.Fatalf("expected Push to wait out the backpressure window, only waited %v", elapsed)
	}
}

func TestCloseSend_IsIdempotent(t *testing.T) {
	s := newTestStream(t)
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("expected second CloseSend to be a no-op, got %v", err)
	}
}
