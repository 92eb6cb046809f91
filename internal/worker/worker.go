package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/avoxio/turnctl/pkg/session"
	"github.com/google/uuid"
)

// SessionFactory builds the providers wired to a new Turn Controller for
// one connection. Kept as a function injected by cmd/cli rather than a
// fixed provider set so the server can serve multiple provider
// configurations (e.g. per-tenant credentials) from one listener.
type SessionFactory func(sessionID string) session.Config

// Server upgrades incoming HTTP connections to the §6.1 frame protocol,
// one Turn Controller per connection.
type Server struct {
	logger  *slog.Logger
	factory SessionFactory
}

// NewServer returns a websocket transport server. factory supplies a
// session.Config (minus Callbacks, which Server fills in) per connection.
func NewServer(factory SessionFactory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger, factory: factory}
}

// ServeHTTP upgrades the request and runs the connection until the client
// disconnects or the request context is cancelled.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := upgrade(w, r, s.logger)
	if err != nil {
		s.logger.Error("upgrade failed", slog.String("err", err.Error()))
		return
	}
	sessionID := uuid.NewString()
	conn := &connHandler{
		conn:   c,
		logger: s.logger.With(slog.String("session_id", sessionID)),
		out:    make(chan ServerFrame, 64),
	}

	cfg := s.factory(sessionID)
	cfg.SessionID = sessionID
	cfg.Callbacks = conn.callbacks()
	conn.sampleRate = cfg.SampleRate
	if conn.sampleRate <= 0 {
		conn.sampleRate = defaultSampleRate
	}
	conn.ctrl = session.New(cfg)

	conn.run(r.Context())
}

// expectedAudioFormat is the only wire audio encoding this server accepts
// (spec §6.1's audio_chunk.format); a frame naming anything else is
// rejected rather than passed through to the Turn Controller.
const expectedAudioFormat = "pcm"

// defaultSampleRate mirrors session.Config's own zero-value default so a
// connection that never set SampleRate still validates incoming frames
// against the rate the Controller actually runs at.
const defaultSampleRate = 16000

// connHandler is the per-connection glue: it owns one Turn Controller,
// translates outgoing callback events onto the out channel (so writes are
// serialized through a single goroutine, mirroring the teacher's
// writeCommands idiom), and routes incoming frames to Controller
// operations.
type connHandler struct {
	conn   *conn
	logger *slog.Logger
	ctrl   *session.Controller

	sampleRate int

	out chan ServerFrame
}

func (h *connHandler) callbacks() session.Callbacks {
	return session.Callbacks{
		OnStateChange: func(from, to session.TurnState) {
			h.send(ServerFrame{Type: FrameStateChange, Data: map[string]any{
				"from": from.String(), "to": to.String(),
			}})
		},
		OnTranscriptPartial: func(text string, confidence float64) {
			h.send(ServerFrame{Type: FrameTranscriptPartial, Data: map[string]any{
				"text": text, "confidence": confidence, "timestamp_ms": nowMs(),
			}})
		},
		OnTranscriptFinal: func(text string, confidence float64) {
			h.send(ServerFrame{Type: FrameTranscriptFinal, Data: map[string]any{
				"text": text, "confidence": confidence, "timestamp_ms": nowMs(),
			}})
		},
		OnAgentAudio: func(audioB64 string, chunkIndex int, isFinal bool) {
			h.send(ServerFrame{Type: FrameAgentAudioChunk, Data: map[string]any{
				"audio": audioB64, "chunk_index": chunkIndex, "is_final": isFinal,
			}})
		},
		OnAgentTextFallback: func(text, reason string) {
			h.send(ServerFrame{Type: FrameAgentTextFallback, Data: map[string]any{
				"text": text, "reason": reason,
			}})
		},
		OnTurnComplete: func(turnID, userText, agentText string, durationMs int64, wasInterrupted bool) {
			h.send(ServerFrame{Type: FrameTurnComplete, Data: map[string]any{
				"turn_id": turnID, "user_text": userText, "agent_text": agentText,
				"duration_ms": durationMs, "was_interrupted": wasInterrupted,
				"timestamp_ms": nowMs(),
			}})
		},
		OnError: func(kind session.ErrorKind, message string, recoverable bool) {
			h.send(ServerFrame{Type: FrameError, Data: map[string]any{
				"code": string(kind), "message": message, "recoverable": recoverable,
			}})
		},
	}
}

func (h *connHandler) send(frame ServerFrame) {
	select {
	case h.out <- frame:
	default:
		h.logger.Warn("outgoing frame queue full, dropping", slog.String("type", frame.Type))
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

// run drives the connection until the client disconnects, the request
// context ends, or a read fails. Three goroutines mirror the teacher's
// worker.Run split: a reader pushing client frames onto the Controller, a
// writer draining the out channel, and this goroutine as the lifetime
// owner.
func (h *connHandler) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := h.ctrl.Start(ctx); err != nil {
		h.logger.Warn("controller start failed", slog.String("err", err.Error()))
	}
	defer h.ctrl.Stop()
	defer h.conn.close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		h.readLoop(ctx)
	}()
	wg.Wait()
}

func (h *connHandler) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-h.out:
			if err := h.conn.writeFrame(frame); err != nil {
				h.logger.Warn("write failed, closing connection", slog.String("err", err.Error()))
				return
			}
		}
	}
}

func (h *connHandler) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, err := h.conn.readFrame()
		if err != nil {
			h.logger.Debug("read loop ending", slog.String("err", err.Error()))
			return
		}
		if h.handleFrame(frame) {
			return
		}
	}
}

// handleFrame routes one client frame per §6.1. Returns true if the
// connection should close (disconnect requested).
func (h *connHandler) handleFrame(frame *ClientFrame) bool {
	switch frame.Type {
	case FrameConnect:
		// transport already set up; nothing to do.
	case FramePing:
		h.send(ServerFrame{Type: FramePong})
	case FramePong:
		// heartbeat ack; no controller-side bookkeeping needed.
	case FrameAudioChunk:
		var data struct {
			Audio      string `json:"audio"`
			Format     string `json:"format"`
			SampleRate int    `json:"sample_rate"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			h.logger.Warn("malformed audio_chunk frame", slog.String("err", err.Error()))
			return false
		}
		if data.Format != "" && data.Format != expectedAudioFormat {
			h.logger.Warn("unsupported audio_chunk format, dropping chunk",
				slog.String("format", data.Format))
			return false
		}
		if data.SampleRate != 0 && data.SampleRate != h.sampleRate {
			h.logger.Warn("audio_chunk sample_rate mismatch, dropping chunk",
				slog.Int("got", data.SampleRate), slog.Int("want", h.sampleRate))
			return false
		}
		h.ctrl.HandleAudioChunkBase64(data.Audio)
	case FrameTextInput:
		var data struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			h.logger.Warn("malformed text_input frame", slog.String("err", err.Error()))
			return false
		}
		h.ctrl.HandleFinalTranscript(data.Text, 1.0)
	case FrameInterrupt:
		h.ctrl.HandleInterrupt()
	case FramePlaybackComplete:
		h.ctrl.HandlePlaybackComplete()
	case FrameUpdateSettings:
		var data struct {
			SilenceDebounceMs       int     `json:"silence_debounce_ms"`
			CancellationThreshold   float64 `json:"cancellation_threshold"`
			AdaptiveDebounceEnabled bool    `json:"adaptive_debounce_enabled"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			h.logger.Warn("malformed update_settings frame", slog.String("err", err.Error()))
			return false
		}
		h.ctrl.UpdateSettings(data.SilenceDebounceMs, data.CancellationThreshold, data.AdaptiveDebounceEnabled)
	case FrameDisconnect:
		return true
	default:
		h.logger.Warn("unknown frame type", slog.String("type", frame.Type))
	}
	return false
}
