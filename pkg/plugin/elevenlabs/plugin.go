package elevenlabs

import (
	"fmt"
	"os"

	"github.com/avoxio/turnctl/pkg/plugin"
)

func newElevenLabsTTS(cfg map[string]any) (any, error) {
	config := Config{}

	if apiKey, ok := cfg["api_key"].(string); ok {
		config.APIKey = apiKey
	} else {
		config.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs API key is required (set ELEVENLABS_API_KEY or provide api_key in config)")
	}
	if voiceID, ok := cfg["voice_id"].(string); ok {
		config.VoiceID = voiceID
	}
	if model, ok := cfg["model"].(string); ok {
		config.Model = model
	}
	return New(config)
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        "tts",
		Name:        "elevenlabs",
		Factory:     newElevenLabsTTS,
		Description: "ElevenLabs real-time streaming text-to-speech",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":  "ElevenLabs API key (or set ELEVENLABS_API_KEY env var)",
			"voice_id": defaultVoiceID,
			"model":    defaultModel,
		},
	})
}
