package worker

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/avoxio/turnctl/pkg/session"
	"github.com/matryer/is"
)

func newTestHandler() *connHandler {
	return &connHandler{
		logger:     slog.Default(),
		out:        make(chan ServerFrame, 8),
		sampleRate: defaultSampleRate,
	}
}

func TestCallbacks_StateChange(t *testing.T) {
	is := is.New(t)
	h := newTestHandler()
	cb := h.callbacks()

	cb.OnStateChange(session.StateIdle, session.StateListening)

	select {
	case frame := <-h.out:
		is.Equal(frame.Type, FrameStateChange)
		data := frame.Data.(map[string]any)
		is.Equal(data["from"], "IDLE")
		is.Equal(data["to"], "LISTENING")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected a state_change frame")
	}
}

func TestCallbacks_Error(t *testing.T) {
	is := is.New(t)
	h := newTestHandler()
	cb := h.callbacks()

	cb.OnError(session.ErrLLMTimeout, "timed out", true)

	frame := <-h.out
	is.Equal(frame.Type, FrameError)
	data := frame.Data.(map[string]any)
	is.Equal(data["code"], "LLM_TIMEOUT")
	is.Equal(data["recoverable"], true)
}

func TestSend_DropsWhenQueueFull(t *testing.T) {
	h := &connHandler{logger: slog.Default(), out: make(chan ServerFrame, 1)}
	h.send(ServerFrame{Type: "one"})
	h.send(ServerFrame{Type: "two"}) // queue full; dropped, must not block

	frame := <-h.out
	if frame.Type != "one" {
		t.Fatalf("expected first frame to survive, got %s", frame.Type)
	}
}

func TestHandleFrame_AudioChunk(t *testing.T) {
	h := newTestHandler()
	cfg := session.Config{Callbacks: h.callbacks()}
	h.ctrl = session.New(cfg)

	data, _ := json.Marshal(map[string]any{"audio": "AQID", "format": "pcm", "sample_rate": 16000})
	closeConn := h.handleFrame(&ClientFrame{Type: FrameAudioChunk, Data: data})
	if closeConn {
		t.Fatal("audio_chunk must not close the connection")
	}
}

func TestHandleFrame_AudioChunkRejectsUnsupportedFormat(t *testing.T) {
	h := newTestHandler()
	cfg := session.Config{Callbacks: h.callbacks()}
	h.ctrl = session.New(cfg)

	data, _ := json.Marshal(map[string]any{"audio": "AQID", "format": "mulaw", "sample_rate": 16000})
	closeConn := h.handleFrame(&ClientFrame{Type: FrameAudioChunk, Data: data})
	if closeConn {
		t.Fatal("rejected format must not close the connection")
	}
}

func TestHandleFrame_AudioChunkRejectsSampleRateMismatch(t *testing.T) {
	h := newTestHandler()
	cfg := session.Config{Callbacks: h.callbacks()}
	h.ctrl = session.New(cfg)

	data, _ := json.Marshal(map[string]any{"audio": "AQID", "format": "pcm", "sample_rate": 8000})
	closeConn := h.handleFrame(&ClientFrame{Type: FrameAudioChunk, Data: data})
	if closeConn {
		t.Fatal("rejected sample rate must not close the connection")
	}
}

func TestHandleFrame_Disconnect(t *testing.T) {
	h := newTestHandler()
	cfg := session.Config{Callbacks: h.callbacks()}
	h.ctrl = session.New(cfg)

	if !h.handleFrame(&ClientFrame{Type: FrameDisconnect}) {
		t.Fatal("disconnect frame must signal connection close")
	}
}

func TestHandleFrame_Ping(t *testing.T) {
	h := newTestHandler()
	cfg := session.Config{Callbacks: h.callbacks()}
	h.ctrl = session.New(cfg)

	h.handleFrame(&ClientFrame{Type: FramePing})

	select {
	case frame := <-h.out:
		if frame.Type != FramePong {
			t.Fatalf("expected pong, got %s", frame.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected a pong frame")
	}
}

func TestHandleFrame_UnknownType(t *testing.T) {
	h := newTestHandler()
	cfg := session.Config{Callbacks: h.callbacks()}
	h.ctrl = session.New(cfg)

	if h.handleFrame(&ClientFrame{Type: "something_unrecognized"}) {
		t.Fatal("unknown frame types must not close the connection")
	}
}
