// Package deepgram provides a streaming STT adapter over Deepgram's
// websocket API, implementing the core's stt.STT contract (spec §4.6).
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/avoxio/turnctl/pkg/ai/stt"
	"github.com/avoxio/turnctl/pkg/rtc"
	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL    = "wss://api.deepgram.com/v1/listen"
	sendQueueCapacity = 100
	sendEnqueueWait   = 100 * time.Millisecond
	idleKeepalive     = 5 * time.Second
	maxReconnects     = 5
)

// reconnectBackoff mirrors the Python original's 2**attempt-1 schedule:
// {0, 1, 2, 4, 8} seconds for attempts 0..4.
func reconnectBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(1<<(attempt-1)) * time.Second
}

// Config configures the Deepgram STT provider.
type Config struct {
	APIKey  string
	Model   string // default: nova-3
	BaseURL string // default: wss://api.deepgram.com/v1/listen
}

// DeepgramSTT implements stt.STT over Deepgram's real-time API.
type DeepgramSTT struct {
	apiKey  string
	model   string
	baseURL string
}

// New returns a Deepgram STT provider.
func New(cfg Config) (*DeepgramSTT, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("deepgram: API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "nova-3"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &DeepgramSTT{apiKey: cfg.APIKey, model: model, baseURL: baseURL}, nil
}

// NewStream opens a streaming recognition session.
func (d *DeepgramSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.STTStream, error) {
	s := &deepgramStream{
		provider:  d,
		ctx:       ctx,
		cfg:       cfg,
		sendQueue: make(chan []byte, sendQueueCapacity),
		events:    make(chan stt.SpeechEvent, 32),
		closeSend: make(chan struct{}),
	}
	if err := s.connect(ctx); err != nil {
		return nil, fmt.Errorf("deepgram: initial connect failed: %w", err)
	}
	go s.sendLoop()
	go s.receiveLoop()
	return s, nil
}

// Capabilities returns the Deepgram provider's capabilities.
func (d *DeepgramSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Streaming:          true,
		InterimResults:     true,
		SupportedLanguages: []string{"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh", "multi"},
		SampleRates:        []int{16000, 48000},
	}
}

type deepgramStream struct {
	provider *DeepgramSTT
	ctx      context.Context
	cfg      stt.StreamConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	sendQueue chan []byte
	events    chan stt.SpeechEvent
	closeSend chan struct{}

	reconnectAttempt int
}

func (s *deepgramStream) dialURL() string {
	u, _ := url.Parse(s.provider.baseURL)
	q := url.Values{}
	q.Set("model", s.provider.model)
	q.Set("encoding", "linear16")
	sampleRate := s.cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	q.Set("sample_rate", fmt.Sprintf("%d", sampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("utterance_end_ms", "1000")
	q.Set("vad_events", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *deepgramStream) connect(ctx context.Context) error {
	headers := map[string][]string{
		"Authorization": {"Token " + s.provider.apiKey},
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, resp, err := dialer.DialContext(ctx, s.dialURL(), headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("deepgram dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("deepgram dial failed: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Push enqueues audio for the send loop; blocks up to ~100ms before
// dropping the chunk and logging a warning, so a slow or stalled
// connection never stalls the Turn Controller (spec §4.6).
func (s *deepgramStream) Push(frame rtc.AudioFrame) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("deepgram: stream is closed")
	}

	select {
	case s.sendQueue <- frame.Data:
		return nil
	case <-time.After(sendEnqueueWait):
		log.Printf("deepgram: audio queue full, dropping chunk to prevent blocking")
		return nil
	}
}

func (s *deepgramStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

func (s *deepgramStream) CloseSend() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	close(s.closeSend)
	if conn != nil {
		_ = conn.WriteJSON(map[string]string{"type": "CloseStream"})
		_ = conn.Close()
	}
	return nil
}

// sendLoop drains the bounded send queue onto the websocket, emitting a
// KeepAlive control frame after 5s of silence so Deepgram does not
// recycle the connection during long user pauses.
func (s *deepgramStream) sendLoop() {
	idle := time.NewTimer(idleKeepalive)
	defer idle.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.closeSend:
			return
		case chunk := <-s.sendQueue:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(idleKeepalive)

			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				log.Printf("deepgram: audio send failed: %v", err)
				s.triggerReconnect()
			}
		case <-idle.C:
			idle.Reset(idleKeepalive)
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn != nil {
				if err := conn.WriteJSON(map[string]string{"type": "KeepAlive"}); err != nil {
					log.Printf("deepgram: keepalive send failed: %v", err)
				}
			}
		}
	}
}

// receiveLoop parses provider frames and reconnects on transport loss,
// with backoff {0,1,2,4,8}s up to 5 attempts (spec §4.6).
func (s *deepgramStream) receiveLoop() {
	defer close(s.events)
	for {
		s.mu.Lock()
		conn := s.conn
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if conn == nil {
			if !s.reconnect() {
				return
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			alreadyClosed := s.closed
			s.mu.Unlock()
			if alreadyClosed {
				return
			}
			log.Printf("deepgram: read failed: %v", err)
			if !s.reconnect() {
				return
			}
			continue
		}
		s.handleMessage(message)
	}
}

func (s *deepgramStream) triggerReconnect() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
}

// reconnect attempts the next backoff step; returns false once attempts
// are exhausted, after reporting an unrecoverable error.
func (s *deepgramStream) reconnect() bool {
	if s.reconnectAttempt >= maxReconnects {
		select {
		case s.events <- stt.SpeechEvent{
			Type:      stt.SpeechEventError,
			Error:     fmt.Errorf("deepgram: reconnect attempts exhausted"),
			Timestamp: time.Now().UnixMilli(),
		}:
		case <-s.ctx.Done():
		}
		return false
	}

	delay := reconnectBackoff(s.reconnectAttempt)
	s.reconnectAttempt++
	select {
	case <-time.After(delay):
	case <-s.ctx.Done():
		return false
	case <-s.closeSend:
		return false
	}

	if err := s.connect(s.ctx); err != nil {
		log.Printf("deepgram: reconnect attempt %d failed: %v", s.reconnectAttempt, err)
		return true // loop will retry with the next backoff step
	}
	s.reconnectAttempt = 0
	return true
}

type deepgramFrame struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Speech  bool   `json:"speech_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramStream) handleMessage(raw []byte) {
	var frame deepgramFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Printf("deepgram: malformed frame: %v", err)
		return
	}
	if frame.Type != "Results" || len(frame.Channel.Alternatives) == 0 {
		return
	}
	alt := frame.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return
	}

	ev := stt.SpeechEvent{
		Text:      alt.Transcript,
		Timestamp: time.Now().UnixMilli(),
	}
	if frame.IsFinal || frame.Speech {
		ev.Type = stt.SpeechEventFinal
		ev.IsFinal = true
	} else {
		ev.Type = stt.SpeechEventInterim
	}

	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
