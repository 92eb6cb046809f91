// Package elevenlabs provides a streaming TTS adapter over ElevenLabs'
// websocket synthesis API, implementing the core's tts.TTS contract
// (spec §4.8).
package elevenlabs

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/avoxio/turnctl/pkg/ai/tts"
	"github.com/avoxio/turnctl/pkg/rtc"
	"github.com/gorilla/websocket"
)

const (
	defaultBaseURL = "wss://api.elevenlabs.io/v1/text-to-speech"
	defaultModel   = "eleven_turbo_v2_5"
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM" // "Rachel", ElevenLabs' default sample voice
	dialTimeout    = 10 * time.Second
)

// Config configures the ElevenLabs TTS provider.
type Config struct {
	APIKey  string
	VoiceID string // default: Rachel
	Model   string // default: eleven_turbo_v2_5
	BaseURL string
}

// ElevenLabsTTS implements tts.TTS over ElevenLabs' streaming websocket API.
type ElevenLabsTTS struct {
	apiKey  string
	voiceID string
	model   string
	baseURL string
}

// New returns an ElevenLabs TTS provider.
func New(cfg Config) (*ElevenLabsTTS, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: API key is required")
	}
	voiceID := cfg.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &ElevenLabsTTS{apiKey: cfg.APIKey, voiceID: voiceID, model: model, baseURL: baseURL}, nil
}

func (e *ElevenLabsTTS) dialURL() string {
	u, _ := url.Parse(fmt.Sprintf("%s/%s/stream-input", e.baseURL, e.voiceID))
	q := url.Values{}
	q.Set("model_id", e.model)
	q.Set("output_format", "pcm_16000")
	u.RawQuery = q.Encode()
	return u.String()
}

type wsSendMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XIAPIKey      string         `json:"xi_api_key,omitempty"`
	TryTriggerGen bool           `json:"try_trigger_generation,omitempty"`
}

type voiceSettings struct {
	Stability       float32 `json:"stability"`
	SimilarityBoost float32 `json:"similarity_boost"`
}

type wsRecvMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
}

// Synthesize opens a dedicated websocket connection per request (one
// connection per sentence, matching the Turn Controller's per-sentence
// TTS cancellation domain) and streams PCM frames as they arrive. cancel
// closes when the Turn Controller wants this sentence's audio dropped
// independently of ctx.
func (e *ElevenLabsTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest, cancel <-chan struct{}) (<-chan rtc.AudioFrame, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = dialTimeout
	conn, resp, err := dialer.DialContext(ctx, e.dialURL(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("elevenlabs: dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("elevenlabs: dial failed: %w", err)
	}

	init := wsSendMessage{
		Text:          " ",
		XIAPIKey:      e.apiKey,
		TryTriggerGen: true,
		VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.8},
	}
	if err := conn.WriteJSON(init); err != nil {
		conn.Close()
		return nil, fmt.Errorf("elevenlabs: init frame failed: %w", err)
	}
	if err := conn.WriteJSON(wsSendMessage{Text: req.Text}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("elevenlabs: text frame failed: %w", err)
	}
	if err := conn.WriteJSON(wsSendMessage{Text: ""}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("elevenlabs: close frame failed: %w", err)
	}

	frameChan := make(chan rtc.AudioFrame, 10)
	go func() {
		defer close(frameChan)
		defer conn.Close()
		start := time.Now()

		done := make(chan struct{})
		go func() {
			select {
			case <-cancel:
			case <-ctx.Done():
			case <-done:
				return
			}
			conn.Close()
		}()
		defer close(done)

		for {
			var msg wsRecvMessage
			if err := conn.ReadJSON(&msg); err != nil {
				select {
				case <-cancel:
				case <-ctx.Done():
				default:
					log.Printf("elevenlabs: stream read failed: %v", err)
				}
				return
			}
			if msg.Error != "" {
				log.Printf("elevenlabs: synthesis error: %s", msg.Error)
				return
			}
			if msg.Audio == "" {
				if msg.IsFinal {
					return
				}
				continue
			}
			data, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				log.Printf("elevenlabs: malformed audio chunk: %v", err)
				continue
			}
			frame := rtc.AudioFrame{
				Data:              data,
				SampleRate:        16000,
				SamplesPerChannel: len(data) / 2,
				NumChannels:       1,
				Timestamp:         time.Since(start),
			}
			select {
			case frameChan <- frame:
			case <-ctx.Done():
				return
			case <-cancel:
				return
			}
			if msg.IsFinal {
				return
			}
		}
	}()

	return frameChan, nil
}

// Capabilities returns the ElevenLabs provider's capabilities.
func (e *ElevenLabsTTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Streaming:            true,
		SupportedLanguages:   []string{"en", "es", "fr", "de", "it", "pt", "pl", "hi", "ja", "ko", "zh"},
		SupportedVoices:      []string{e.voiceID},
		SampleRates:          []int{16000, 22050, 24000, 44100},
		SupportsSSML:         false,
		SupportsSpeedControl: false,
		SupportsPitchControl: false,
	}
}
