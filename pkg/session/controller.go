// Package session implements the Turn Controller: a per-session state
// machine and dataflow scheduler coordinating STT, LLM, and TTS with
// speculative execution, cancellation, barge-in, and adaptive
// end-of-utterance detection.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avoxio/turnctl/pkg/ai/llm"
	"github.com/avoxio/turnctl/pkg/ai/stt"
	"github.com/avoxio/turnctl/pkg/ai/tts"
	"github.com/avoxio/turnctl/pkg/rtc"
)

const (
	systemPrompt = "You are a helpful voice assistant. Keep responses concise and " +
		"natural for speech. Use conversation history for context, but answer " +
		"only the latest user request. Do NOT repeat or restate previous " +
		"assistant replies."

	llmTotalTimeout      = 15 * time.Second
	ttsQueueTimeout       = 20 * time.Second
	playbackAckTimeout    = 15 * time.Second
	sentenceQueueCapacity = 16
)

// Callbacks are the client-facing events the Turn Controller emits (spec
// §4.9.2). The host (transport layer) supplies these; nil entries are
// allowed and simply skipped.
type Callbacks struct {
	OnStateChange      func(from, to TurnState)
	OnTranscriptPartial func(text string, confidence float64)
	OnTranscriptFinal   func(text string, confidence float64)
	OnAgentAudio        func(audioB64 string, chunkIndex int, isFinal bool)
	OnAgentTextFallback func(text, reason string)
	OnTurnComplete      func(turnID, userText, agentText string, durationMs int64, wasInterrupted bool)
	OnError             func(kind ErrorKind, message string, recoverable bool)
}

func (c Callbacks) stateChange(from, to TurnState) {
	if c.OnStateChange != nil {
		c.OnStateChange(from, to)
	}
}
func (c Callbacks) transcriptPartial(text string, confidence float64) {
	if c.OnTranscriptPartial != nil {
		c.OnTranscriptPartial(text, confidence)
	}
}
func (c Callbacks) transcriptFinal(text string, confidence float64) {
	if c.OnTranscriptFinal != nil {
		c.OnTranscriptFinal(text, confidence)
	}
}
func (c Callbacks) agentAudio(audioB64 string, chunkIndex int, isFinal bool) {
	if c.OnAgentAudio != nil {
		c.OnAgentAudio(audioB64, chunkIndex, isFinal)
	}
}
func (c Callbacks) agentTextFallback(text, reason string) {
	if c.OnAgentTextFallback != nil {
		c.OnAgentTextFallback(text, reason)
	}
}
func (c Callbacks) turnComplete(turnID, userText, agentText string, durationMs int64, wasInterrupted bool) {
	if c.OnTurnComplete != nil {
		c.OnTurnComplete(turnID, userText, agentText, durationMs, wasInterrupted)
	}
}
func (c Callbacks) emitError(kind ErrorKind, message string, recoverable bool) {
	if c.OnError != nil {
		c.OnError(kind, message, recoverable)
	}
}

// Config wires a Turn Controller to its providers and host callbacks.
type Config struct {
	SessionID string
	STT       stt.STT
	LLM       llm.LLM
	TTS       tts.TTS
	Callbacks Callbacks

	SampleRate int // defaults to 16000
	MaxTurns   int // ConversationHistory cap, 0 = unbounded

	SilenceTimer SilenceTimerConfig
}

// sentence is one unit carried on the internal sentence queue (spec §3).
type sentence struct {
	text    string
	isFinal bool
}

// Controller is the Turn Controller: it owns the state machine,
// transcript/audio buffers, conversation history, silence timer, and the
// per-turn LLM/TTS cancellation tokens, and schedules all of it on a
// single goroutine reading off one select loop (mirrors the teacher's
// Agent.run shape, generalized from 4 states to 5 and from a VAD-driven
// turn boundary to an STT-final + silence-timer boundary).
type Controller struct {
	cfg       Config
	log       *slog.Logger
	callbacks Callbacks

	state      *StateMachine
	transcript *TranscriptBuffer
	audio      *AudioInputBuffer
	history    *ConversationHistory
	silence    *SilenceTimer
	metrics    *sessionMetrics

	sttStream stt.STTStream
	sttDone   chan struct{}

	// Per-turn cancellation tokens, recreated each turn.
	llmCancel chan struct{}
	ttsCancel chan struct{}

	sentenceQueue chan sentence
	ttsDone       chan struct{}

	turnStartTime time.Time
	speechEndTime time.Time
	llmResponse   string // accumulated agent text for the in-flight turn, guarded by mu
	waitingPlayback bool
	playbackTimer   *time.Timer

	totalTurns     atomic.Int64
	cancelledTurns atomic.Int64
	tokensWasted   atomic.Int64

	mu                      sync.Mutex
	adaptiveDebounceEnabled bool
	shutdown                chan struct{}
	closed                  bool
}

// New constructs a Controller wired to its providers. Call Start to open
// the STT connection before feeding audio.
func New(cfg Config) *Controller {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	c := &Controller{
		cfg:           cfg,
		log:           slog.Default().With("session_id", cfg.SessionID),
		callbacks:     cfg.Callbacks,
		state:         NewStateMachine(),
		transcript:    NewTranscriptBuffer(),
		audio:         NewAudioInputBuffer(0, cfg.SampleRate, nil),
		history:       NewConversationHistory(cfg.MaxTurns),
		silence:       NewSilenceTimer(cfg.SilenceTimer),
		metrics:       newSessionMetrics(),
		shutdown:      make(chan struct{}),
	}
	c.adaptiveDebounceEnabled = true
	return c
}

// Start opens the STT connection. On failure it emits a recoverable
// STT_CONNECTION_FAILED error and returns it.
func (c *Controller) Start(ctx context.Context) error {
	stream, err := c.cfg.STT.NewStream(ctx, stt.StreamConfig{
		SampleRate:  c.cfg.SampleRate,
		NumChannels: 1,
		Lang:        "en-US",
		MaxRetry:    5,
	})
	if err != nil {
		c.callbacks.emitError(ErrSTTConnectionFailed, err.Error(), true)
		return NewTurnError(ErrSTTConnectionFailed, "stt connect failed", err)
	}
	c.sttStream = stream
	c.sttDone = make(chan struct{})
	go c.runSTTEvents(ctx, stream.Events())
	return nil
}

// Stop disconnects STT and cancels all pending work. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.shutdown)
	c.silence.Cancel()
	c.cancelLLM()
	c.cancelTTS()
	if c.sttStream != nil {
		c.sttStream.CloseSend()
	}
}

// runSTTEvents drains the STT stream's event channel, routing partial and
// final transcripts onto the controller. Since the STT callback chain is
// the buffers' single writer, this goroutine IS the scheduler for
// transcript-side mutation; it never races the turn-lifecycle goroutines
// below because those only ever touch the transcript buffer through its
// own mutex and the shared state machine's mutex.
func (c *Controller) runSTTEvents(ctx context.Context, events <-chan stt.SpeechEvent) {
	defer close(c.sttDone)
	for {
		select {
		case <-c.shutdown:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case stt.SpeechEventError:
				c.callbacks.emitError(ErrSTTTransportLost, ev.Error.Error(), true)
			case stt.SpeechEventFinal:
				c.HandleFinalTranscript(ev.Text, 1.0)
			default:
				c.handlePartialTranscript(ev.Text, 1.0)
			}
		}
	}
}

// HandleAudioChunk decodes and routes raw audio per spec §4.9.3.
func (c *Controller) HandleAudioChunk(raw []byte) {
	if len(raw) == 0 {
		c.log.Warn("empty audio chunk dropped")
		return
	}

	s := c.state.Current()
	if s == StateIdle {
		c.transition(StateListening, "first audio chunk")
		c.turnStartTime = time.Now()
		s = StateListening
	}
	if s == StateListening {
		c.audio.Add(raw)
	}

	if c.sttStream != nil {
		frame := rtc.AudioFrame{
			Data:              raw,
			SampleRate:        c.cfg.SampleRate,
			SamplesPerChannel: len(raw) / 2,
			NumChannels:       1,
		}
		if err := c.sttStream.Push(frame); err != nil {
			c.log.Warn("stt push failed", "err", err)
		}
	}
}

// HandleAudioChunkBase64 decodes a base64 frame (as carried on the
// reference websocket transport) and routes it.
func (c *Controller) HandleAudioChunkBase64(audioB64 string) {
	raw, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil || len(raw) == 0 {
		c.log.Warn("invalid base64 audio chunk dropped", "err", err)
		return
	}
	c.HandleAudioChunk(raw)
}

func (c *Controller) handlePartialTranscript(text string, confidence float64) {
	switch c.state.Current() {
	case StateListening:
		// A partial while the silence timer is already armed means the
		// user kept talking after a final; re-arm so it doesn't fire
		// mid-utterance (spec §4.5, §4.9.4).
		if c.silence.IsRunning() {
			c.silence.Start(c.onSilenceComplete)
		}
	case StateSpeculative:
		c.cancelSpeculation()
		c.transition(StateListening, "partial during speculation")
	case StateCommitted:
		c.cancelTTS()
		c.drainSentenceQueue()
		c.transition(StateIdle, "partial during committed, reset")
		c.transcript.Unlock()
		c.transition(StateListening, "partial during committed, resume listening")
	case StateSpeaking:
		c.handleInterrupt()
	}

	c.transcript.AddPartial(text)
	c.callbacks.transcriptPartial(text, confidence)
}

// HandleFinalTranscript is the injection point for finalized text, both
// from the STT event loop and from typed text-input fallback (spec
// §4.9.1).
func (c *Controller) HandleFinalTranscript(text string, confidence float64) {
	if c.state.Current() != StateListening {
		c.log.Warn("final transcript ignored outside LISTENING", "state", c.state.Current())
		return
	}
	c.transcript.AddFinal(text)
	c.callbacks.transcriptFinal(text, confidence)
	c.silence.Start(c.onSilenceComplete)
}

// onSilenceComplete fires when the silence timer (optionally gated by an
// ML end-of-turn detector) decides the user has finished speaking.
func (c *Controller) onSilenceComplete() {
	if c.state.Current() != StateListening {
		return
	}
	c.speechEndTime = time.Now()
	c.transcript.Lock()
	c.transition(StateSpeculative, "silence complete")

	c.llmCancel = make(chan struct{})
	go c.runLLM(c.llmCancel)
}

func (c *Controller) runLLM(cancel chan struct{}) {
	userText := c.transcript.GetFinalText()

	messages := append([]llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}, c.history.Messages()...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userText})

	ctx, done := context.WithTimeout(context.Background(), llmTotalTimeout)
	defer done()

	sentences, err := c.cfg.LLM.StreamSentences(ctx, llm.ChatRequest{
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   200,
	}, cancel)
	if err != nil {
		c.resetAfterLLMFailure(ErrLLMError, err.Error())
		return
	}

	c.mu.Lock()
	c.llmResponse = ""
	c.mu.Unlock()

	started := false
	var queue chan sentence
	sawAny := false

	for {
		select {
		case <-cancel:
			return
		case <-ctx.Done():
			if ctx.Err() != nil && !started {
				c.resetAfterLLMFailure(ErrLLMTimeout, "llm total-time cap exceeded")
			}
			return
		case s, ok := <-sentences:
			if !ok {
				if !sawAny {
					c.resetAfterLLMFailure(ErrLLMNoResponse, "llm produced zero sentences")
					return
				}
				if queue != nil {
					select {
					case queue <- sentence{text: "", isFinal: true}:
					case <-cancel:
					}
				}
				return
			}
			sawAny = true
			c.mu.Lock()
			c.llmResponse += s.Text
			c.mu.Unlock()

			if !started {
				started = true
				c.transition(StateCommitted, "first llm sentence")
				c.ttsCancel = make(chan struct{})
				c.sentenceQueue = make(chan sentence, sentenceQueueCapacity)
				c.ttsDone = make(chan struct{})
				queue = c.sentenceQueue
				go c.runTTS(c.ttsCancel, queue, c.ttsDone)
			}
			select {
			case queue <- sentence{text: s.Text, isFinal: s.IsFinal}:
			case <-cancel:
				return
			}
		}
	}
}

func (c *Controller) resetAfterLLMFailure(kind ErrorKind, message string) {
	c.cancelLLM()
	c.cancelTTS()
	c.transcript.Unlock()
	c.transition(StateIdle, "llm failure reset")
	c.callbacks.emitError(kind, message, true)
}

func (c *Controller) runTTS(cancel chan struct{}, queue chan sentence, done chan struct{}) {
	defer close(done)

	chunkIndex := 0
	started := false
	safety := time.NewTimer(ttsQueueTimeout)
	defer safety.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-safety.C:
			if !started {
				c.cancelTTS()
				c.transcript.Unlock()
				c.transition(StateIdle, "tts queue timeout")
				c.callbacks.emitError(ErrTTSQueueTimeout, "tts queue timed out waiting in COMMITTED", true)
			}
			return
		case s, ok := <-queue:
			if !ok {
				return
			}
			if s.text == "" && s.isFinal {
				if started {
					c.callbacks.agentAudio("", chunkIndex, true)
					c.beginPlaybackWait()
				}
				return
			}
			if !safety.Stop() {
				select {
				case <-safety.C:
				default:
				}
			}

			frames, err := c.cfg.TTS.Synthesize(context.Background(), tts.SynthesizeRequest{Text: s.text}, cancel)
			if err != nil {
				c.handleTTSStreamFailure(err)
				return
			}
			for frame := range frames {
				if !started {
					started = true
					c.transition(StateSpeaking, "first tts chunk")
				}
				c.callbacks.agentAudio(base64.StdEncoding.EncodeToString(frame.Data), chunkIndex, false)
				chunkIndex++
			}
			if s.isFinal {
				c.callbacks.agentAudio("", chunkIndex, true)
				c.beginPlaybackWait()
				return
			}
			safety.Reset(ttsQueueTimeout)
		}
	}
}

func (c *Controller) handleTTSStreamFailure(err error) {
	c.callbacks.emitError(ErrTTSError, err.Error(), true)

	c.mu.Lock()
	agentText := c.llmResponse
	c.mu.Unlock()

	if agentText != "" {
		c.callbacks.agentTextFallback(agentText, "tts_error")
	}
	c.completeTurn(false, true)
}

func (c *Controller) beginPlaybackWait() {
	c.mu.Lock()
	c.waitingPlayback = true
	c.playbackTimer = time.AfterFunc(playbackAckTimeout, func() {
		c.HandlePlaybackComplete()
	})
	c.mu.Unlock()
	c.completeTurn(false, true)
}

// HandlePlaybackComplete is the client's signal that rendered audio has
// finished (spec §4.9.1). A no-op if no turn is waiting.
func (c *Controller) HandlePlaybackComplete() {
	c.mu.Lock()
	if !c.waitingPlayback {
		c.mu.Unlock()
		return
	}
	c.waitingPlayback = false
	if c.playbackTimer != nil {
		c.playbackTimer.Stop()
		c.playbackTimer = nil
	}
	c.mu.Unlock()
	c.completeTurn(false, false)
}

// HandleInterrupt is client-initiated barge-in (spec §4.9.1), equivalent
// to the SPEAKING-partial path but reachable explicitly too.
func (c *Controller) HandleInterrupt() {
	c.handleInterrupt()
}

func (c *Controller) handleInterrupt() {
	c.cancelTTS()
	c.drainSentenceQueue()
	c.transition(StateListening, "barge-in")
	c.completeTurn(true, true)
}

// completeTurn closes out the active turn: records history, updates
// counters, adjusts the adaptive debounce, resets to IDLE, and notifies
// the host unless notify is false (the playback-complete-ack path already
// sent on_turn_complete from the terminator frame).
func (c *Controller) completeTurn(wasInterrupted, notify bool) {
	c.mu.Lock()
	userText := c.transcript.GetFinalText()
	agentText := c.llmResponse
	durationMs := time.Since(c.turnStartTime).Milliseconds()
	c.mu.Unlock()

	if userText != "" || agentText != "" {
		c.history.AddTurn(userText, agentText)
	}

	total := c.totalTurns.Add(1)
	c.metrics.totalTurns.Add(1)
	turnID := fmt.Sprintf("%s_%d", c.cfg.SessionID, total)

	if notify {
		c.callbacks.turnComplete(turnID, userText, agentText, durationMs, wasInterrupted)
	}

	c.mu.Lock()
	c.waitingPlayback = false
	if c.playbackTimer != nil {
		c.playbackTimer.Stop()
		c.playbackTimer = nil
	}
	c.llmResponse = ""
	c.mu.Unlock()

	c.transcript.Clear()
	c.transcript.Unlock()
	if c.state.Current() != StateIdle {
		c.transition(StateIdle, "turn complete")
	}

	c.mu.Lock()
	adaptive := c.adaptiveDebounceEnabled
	c.mu.Unlock()
	if adaptive {
		rate := float64(c.cancelledTurns.Load()) / float64(total)
		c.silence.AdjustDebounce(rate)
		c.metrics.currentDebounceMs.Set(float64(c.silence.CurrentDebounceMs()))
	}
}

// cancelSpeculation tears down an in-flight speculative LLM task before
// any audio has been produced (spec §4.9.6). Increments cancelledTurns,
// unlike the COMMITTED-interrupt path, which does not (see SPEC_FULL §9).
func (c *Controller) cancelSpeculation() {
	c.mu.Lock()
	wasted := int64(len(strings.Fields(c.llmResponse)))
	c.mu.Unlock()

	c.cancelLLM()
	c.cancelTTS()
	c.drainSentenceQueue()
	c.silence.Cancel()
	c.transcript.Unlock()
	c.cancelledTurns.Add(1)
	c.metrics.cancelledTurns.Add(1)
	if wasted > 0 {
		c.tokensWasted.Add(wasted)
	}
}

func (c *Controller) cancelLLM() {
	if c.llmCancel != nil {
		select {
		case <-c.llmCancel:
		default:
			close(c.llmCancel)
		}
	}
}

func (c *Controller) cancelTTS() {
	if c.ttsCancel != nil {
		select {
		case <-c.ttsCancel:
		default:
			close(c.ttsCancel)
		}
	}
	if c.ttsDone != nil {
		<-c.ttsDone
	}
}

func (c *Controller) drainSentenceQueue() {
	if c.sentenceQueue == nil {
		return
	}
	for {
		select {
		case <-c.sentenceQueue:
		default:
			return
		}
	}
}

func (c *Controller) transition(to TurnState, reason string) {
	from, err := c.state.Transition(to, reason)
	if err != nil {
		// Illegal transitions indicate a scheduler bug, not a recoverable
		// runtime condition; the spec requires this to fail loudly.
		panic(fmt.Sprintf("illegal turn state transition %s -> %s (%s): %v", from, to, reason, err))
	}
	if from == StateListening {
		// Data Model: AudioInputBuffer is "cleared on state transitions
		// leaving LISTENING" (spec §3).
		c.audio.Clear()
	}
	c.metrics.recordTransition(from, to)
	c.callbacks.stateChange(from, to)
}

// UpdateSettings applies live tuning (spec §4.9.1).
func (c *Controller) UpdateSettings(silenceDebounceMs int, cancellationThreshold float64, adaptiveEnabled bool) {
	if silenceDebounceMs > 0 {
		c.silence.mu.Lock()
		c.silence.debounce = silenceDebounceMs
		c.silence.mu.Unlock()
	}
	if cancellationThreshold > 0 {
		c.silence.mu.Lock()
		c.silence.threshold = cancellationThreshold
		c.silence.mu.Unlock()
	}
	c.mu.Lock()
	c.adaptiveDebounceEnabled = adaptiveEnabled
	c.mu.Unlock()
}

// Telemetry returns a snapshot of adaptive-tuning and turn-accounting
// state (spec §4.9.1).
func (c *Controller) Telemetry() Telemetry {
	total := c.totalTurns.Load()
	cancelled := c.cancelledTurns.Load()
	rate := 0.0
	if total > 0 {
		rate = float64(cancelled) / float64(total)
	}
	return Telemetry{
		CancellationRate:  rate,
		CurrentDebounceMs: c.silence.CurrentDebounceMs(),
		TotalTurns:        total,
		InterruptionCount: cancelled,
		TokensWasted:      c.tokensWasted.Load(),
	}
}
