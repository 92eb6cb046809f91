package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	llmfake "github.com/avoxio/turnctl/pkg/ai/llm/fake"
	sttfake "github.com/avoxio/turnctl/pkg/ai/stt/fake"
	ttsfake "github.com/avoxio/turnctl/pkg/ai/tts/fake"
	"github.com/avoxio/turnctl/pkg/session"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the command that drives one Turn Controller session
// against the in-process fake providers, reading turns from stdin the way
// a text_input frame (§6.1) would arrive over the wire.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Turn Controller session against fake STT/LLM/TTS providers",
		Long: `Drives one in-process Turn Controller session without a network
transport: each line typed on stdin is handled exactly like a text_input
frame, and state changes, transcripts, and turn completions are printed as
they are emitted.`,
		RunE: runSession,
	}
	return cmd
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctrl := session.New(session.Config{
		SessionID: "cli-session",
		STT:       sttfake.NewFakeSTTWithText(),
		LLM:       llmfake.NewFakeLLM("Sure, here is what I found.", "Let me know if you need anything else."),
		TTS:       ttsfake.NewFakeTTS(),
		Callbacks: session.Callbacks{
			OnStateChange: func(from, to session.TurnState) {
				fmt.Printf("🔀 %s -> %s\n", from, to)
			},
			OnTranscriptFinal: func(text string, confidence float64) {
				fmt.Printf("🗣️  user: %s\n", text)
			},
			OnAgentTextFallback: func(text, reason string) {
				fmt.Printf("💬 agent (%s): %s\n", reason, text)
			},
			OnTurnComplete: func(turnID, userText, agentText string, durationMs int64, wasInterrupted bool) {
				fmt.Printf("✅ turn %s complete (%dms, interrupted=%v): %q -> %q\n",
					turnID, durationMs, wasInterrupted, userText, agentText)
			},
			OnError: func(kind session.ErrorKind, message string, recoverable bool) {
				fmt.Printf("❌ %s: %s (recoverable=%v)\n", kind, message, recoverable)
			},
		},
	})

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("session start failed: %w", err)
	}
	defer ctrl.Stop()

	fmt.Println("Type a line and press enter to simulate a finished user utterance. Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		// A turn opens on its first audio chunk and finals are only taken in
		// LISTENING, so send 10ms of silence ahead of the typed text.
		ctrl.HandleAudioChunk(make([]byte, 320))
		ctrl.HandleFinalTranscript(line, 1.0)
	}

	t := ctrl.Telemetry()
	fmt.Printf("\n📊 telemetry: turns=%d cancelled=%d cancellation_rate=%.2f debounce_ms=%d\n",
		t.TotalTurns, t.InterruptionCount, t.CancellationRate, t.CurrentDebounceMs)
	return scanner.Err()
}
