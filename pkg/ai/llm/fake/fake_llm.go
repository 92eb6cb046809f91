package fake

import (
	"context"
	"fmt"
	"strings"

	"github.com/avoxio/turnctl/pkg/ai/llm"
)

// sentenceEnd reports whether r ends a sentence.
func sentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// splitSentences breaks text into sentence-bounded chunks, mirroring the
// scan used by the streaming OpenAI provider.
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if sentenceEnd(r) && (i == len(runes)-1 || runes[i+1] == ' ') {
			out = append(out, strings.TrimSpace(string(runes[start:i+1])))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

// FakeLLM is a fake LLM implementation for testing.
type FakeLLM struct {
	responses []string
	callCount int
}

// NewFakeLLM creates a new fake LLM provider with predefined responses.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{
			"This is a fake response from the fake LLM provider.",
			"I'm a fake AI assistant. How can I help you?",
			"This is another fake response for testing purposes.",
		}
	}
	return &FakeLLM{responses: responses}
}

// Chat processes a chat request and returns a fake response.
func (f *FakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	// Simple response selection based on call count
	responseIndex := f.callCount % len(f.responses)
	response := f.responses[responseIndex]
	f.callCount++
	
	// If the user mentions a function, return a fake function call
	if len(req.Functions) > 0 {
		for _, msg := range req.Messages {
			if msg.Role == llm.RoleUser && strings.Contains(strings.ToLower(msg.Content), "function") {
				return llm.ChatResponse{
					Message: llm.Message{
						Role:    llm.RoleAssistant,
						Content: "",
					},
					FunctionCall: &llm.FunctionCall{
						Name:      req.Functions[0].Name,
						Arguments: `{"param": "fake_value"}`,
					},
					TokensUsed:   50,
					FinishReason: "function_call",
				}, nil
			}
		}
	}
	
	// Add some context from the user's message if available
	if len(req.Messages) > 0 {
		lastMsg := req.Messages[len(req.Messages)-1]
		if lastMsg.Role == llm.RoleUser {
			response = fmt.Sprintf("%s (You said: %s)", response, lastMsg.Content)
		}
	}
	
	return llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: response,
		},
		TokensUsed:   len(strings.Fields(response)) + 10,
		FinishReason: "stop",
	}, nil
}

// StreamSentences replays the same canned response as Chat, sliced into
// sentences, one per channel send, honoring ctx and cancel like a real
// streaming provider would.
func (f *FakeLLM) StreamSentences(ctx context.Context, req llm.ChatRequest, cancel <-chan struct{}) (<-chan llm.Sentence, error) {
	resp, err := f.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.Sentence)
	go func() {
		defer close(out)
		sentences := splitSentences(resp.Message.Content)
		if len(sentences) == 0 {
			sentences = []string{resp.Message.Content}
		}
		for i, s := range sentences {
			select {
			case <-ctx.Done():
				return
			case <-cancel:
				return
			default:
			}
			select {
			case out <- llm.Sentence{Text: s, IsFinal: i == len(sentences)-1}:
			case <-ctx.Done():
				return
			case <-cancel:
				return
			}
		}
	}()
	return out, nil
}

// Capabilities returns the fake LLM capabilities.
func (f *FakeLLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		SupportsFunctions:   true,
		SupportsStreaming:   true,
		MaxTokens:          4096,
		SupportedModels:    []string{"fake-model-1", "fake-model-2"},
		SupportsSystemRole: true,
	}
}