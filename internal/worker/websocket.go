// Package worker hosts the reference websocket transport: one connection
// per Turn Controller session, translating the typed JSON frame set of
// spec §6.1 to and from Controller operations and callbacks.
package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ClientFrame is an incoming frame from the browser/app client (§6.1).
type ClientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerFrame is an outgoing frame to the client (§6.1).
type ServerFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Frame type constants, both directions.
const (
	FrameConnect         = "connect"
	FramePing            = "ping"
	FramePong            = "pong"
	FrameAudioChunk      = "audio_chunk"
	FrameTextInput       = "text_input"
	FrameInterrupt       = "interrupt"
	FramePlaybackComplete = "playback_complete"
	FrameUpdateSettings  = "update_settings"
	FrameDisconnect      = "disconnect"

	FrameStateChange        = "state_change"
	FrameTranscriptPartial  = "transcript_partial"
	FrameTranscriptFinal    = "transcript_final"
	FrameAgentAudioChunk    = "agent_audio_chunk"
	FrameAgentTextFallback  = "agent_text_fallback"
	FrameTurnComplete       = "turn_complete"
	FrameError              = "error"
)

// conn wraps a server-role websocket connection: reading client frames and
// writing server frames as JSON, the same shape as the teacher's
// WebSocketClient but upgraded from an incoming HTTP request rather than
// dialed outward.
type conn struct {
	ws     *websocket.Conn
	logger *slog.Logger
}

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
}

// SetAllowedOrigins configures the upgrader's CORS check (spec §6.5
// "frontend origin for CORS on the surrounding transport"). An empty list
// leaves CheckOrigin nil, so gorilla/websocket's default check applies: a
// request whose Origin host differs from its Host is rejected.
func SetAllowedOrigins(origins []string) {
	if len(origins) == 0 {
		upgrader.CheckOrigin = nil
		return
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	upgrader.CheckOrigin = func(r *http.Request) bool {
		return allowed[r.Header.Get("Origin")]
	}
}

func upgrade(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade failed: %w", err)
	}
	return &conn{ws: ws, logger: logger}, nil
}

func (c *conn) readFrame() (*ClientFrame, error) {
	var frame ClientFrame
	if err := c.ws.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("read frame failed: %w", err)
	}
	c.logger.Debug("received client frame", slog.String("type", frame.Type))
	return &frame, nil
}

func (c *conn) writeFrame(frame ServerFrame) error {
	c.logger.Debug("sending server frame", slog.String("type", frame.Type))
	if err := c.ws.WriteJSON(frame); err != nil {
		return fmt.Errorf("write frame failed: %w", err)
	}
	return nil
}

func (c *conn) close() error {
	return c.ws.Close()
}
