package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/avoxio/turnctl/internal/worker"
	"github.com/avoxio/turnctl/pkg/ai/llm"
	llmfake "github.com/avoxio/turnctl/pkg/ai/llm/fake"
	"github.com/avoxio/turnctl/pkg/ai/stt"
	sttfake "github.com/avoxio/turnctl/pkg/ai/stt/fake"
	"github.com/avoxio/turnctl/pkg/ai/tts"
	ttsfake "github.com/avoxio/turnctl/pkg/ai/tts/fake"
	"github.com/avoxio/turnctl/pkg/plugin"
	"github.com/avoxio/turnctl/pkg/session"
	"github.com/spf13/cobra"

	_ "github.com/avoxio/turnctl/pkg/plugin/deepgram"
	_ "github.com/avoxio/turnctl/pkg/plugin/elevenlabs"
	_ "github.com/avoxio/turnctl/pkg/plugin/openai"
)

// NewServeCmd creates the command that serves the reference websocket
// transport (spec §6.1), one Turn Controller per connection.
func NewServeCmd() *cobra.Command {
	var (
		addr           string
		sttName        string
		llmName        string
		ttsName        string
		allowedOrigins []string
		pluginDir      string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Turn Controller over the reference websocket transport",
		Long: `Starts an HTTP server upgrading incoming connections to the §6.1
frame protocol. Each connection gets its own Turn Controller wired to the
STT/LLM/TTS providers named by --stt/--llm/--tts ("fake" by default, or
any name registered via pkg/plugin, e.g. "deepgram", "openai",
"elevenlabs").`,
		RunE: func(cmd *cobra.Command, args []string) error {
			worker.SetAllowedOrigins(allowedOrigins)

			if pluginDir != "" {
				// Dynamic loading requires a plugindyn+linux build; on other
				// builds LoadDynamicPlugins always errors, so a load failure
				// here is logged, not fatal, and never blocks server startup.
				if err := plugin.LoadDynamicPlugins(pluginDir); err != nil {
					slog.Default().Warn("dynamic plugin loading failed", slog.String("err", err.Error()))
				}
			}

			sttProvider, err := buildSTT(sttName)
			if err != nil {
				return err
			}
			llmProvider, err := buildLLM(llmName)
			if err != nil {
				return err
			}
			ttsProvider, err := buildTTS(ttsName)
			if err != nil {
				return err
			}

			logger := slog.Default()
			srv := worker.NewServer(func(sessionID string) session.Config {
				return session.Config{
					STT: sttProvider,
					LLM: llmProvider,
					TTS: ttsProvider,
				}
			}, logger)

			logger.Info("serving turn controller websocket transport",
				slog.String("addr", addr),
				slog.String("stt", sttName), slog.String("llm", llmName), slog.String("tts", ttsName))
			return http.ListenAndServe(addr, srv)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringVar(&sttName, "stt", "fake", "STT provider name (fake, deepgram, openai)")
	cmd.Flags().StringVar(&llmName, "llm", "fake", "LLM provider name (fake, openai)")
	cmd.Flags().StringVar(&ttsName, "tts", "fake", "TTS provider name (fake, openai, elevenlabs)")
	cmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origin", nil, "allowed CORS origins (repeatable); empty applies the same-origin check")
	cmd.Flags().StringVar(&pluginDir, "plugin-dir", "", "directory of dynamically loaded provider plugins (.so, requires a plugindyn build); empty disables dynamic loading")

	return cmd
}

func buildSTT(name string) (stt.STT, error) {
	if name == "fake" {
		return sttfake.NewFakeSTTWithText(), nil
	}
	factory, ok := plugin.Get("stt", name)
	if !ok {
		return nil, fmt.Errorf("unknown stt provider %q", name)
	}
	instance, err := factory(nil)
	if err != nil {
		return nil, fmt.Errorf("stt provider %q: %w", name, err)
	}
	provider, ok := instance.(stt.STT)
	if !ok {
		return nil, fmt.Errorf("stt provider %q does not implement stt.STT", name)
	}
	return provider, nil
}

func buildLLM(name string) (llm.LLM, error) {
	if name == "fake" {
		return llmfake.NewFakeLLM("Sure, here is what I found.", "Anything else I can help with?"), nil
	}
	factory, ok := plugin.Get("llm", name)
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q", name)
	}
	instance, err := factory(nil)
	if err != nil {
		return nil, fmt.Errorf("llm provider %q: %w", name, err)
	}
	provider, ok := instance.(llm.LLM)
	if !ok {
		return nil, fmt.Errorf("llm provider %q does not implement llm.LLM", name)
	}
	return provider, nil
}

func buildTTS(name string) (tts.TTS, error) {
	if name == "fake" {
		return ttsfake.NewFakeTTS(), nil
	}
	factory, ok := plugin.Get("tts", name)
	if !ok {
		return nil, fmt.Errorf("unknown tts provider %q", name)
	}
	instance, err := factory(nil)
	if err != nil {
		return nil, fmt.Errorf("tts provider %q: %w", name, err)
	}
	provider, ok := instance.(tts.TTS)
	if !ok {
		return nil, fmt.Errorf("tts provider %q does not implement tts.TTS", name)
	}
	return provider, nil
}
