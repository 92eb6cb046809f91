package deepgram

import (
	"fmt"
	"os"

	"github.com/avoxio/turnctl/pkg/plugin"
)

func newDeepgramSTT(cfg map[string]any) (any, error) {
	config := Config{}

	if apiKey, ok := cfg["api_key"].(string); ok {
		config.APIKey = apiKey
	} else {
		config.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("deepgram API key is required (set DEEPGRAM_API_KEY or provide api_key in config)")
	}
	if model, ok := cfg["model"].(string); ok {
		config.Model = model
	}
	return New(config)
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        "stt",
		Name:        "deepgram",
		Factory:     newDeepgramSTT,
		Description: "Deepgram real-time streaming speech-to-text",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key": "Deepgram API key (or set DEEPGRAM_API_KEY env var)",
			"model":   "nova-3",
		},
	})
}
