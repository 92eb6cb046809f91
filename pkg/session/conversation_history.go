package session

import (
	"sync"

	"github.com/avoxio/turnctl/pkg/ai/llm"
)

// turnPair is one completed (user, agent) exchange.
type turnPair struct {
	userText  string
	agentText string
}

// ConversationHistory accumulates completed turns for use as LLM context
// (spec §4.4). Bounded by maxTurns when positive; 0 means unbounded.
type ConversationHistory struct {
	mu       sync.RWMutex
	turns    []turnPair
	maxTurns int
}

// NewConversationHistory returns an empty history, optionally capped at the
// most recent maxTurns pairs (0 for unbounded, the default).
func NewConversationHistory(maxTurns int) *ConversationHistory {
	return &ConversationHistory{maxTurns: maxTurns}
}

// AddTurn appends a pair iff at least one side is non-empty.
func (h *ConversationHistory) AddTurn(userText, agentText string) {
	if userText == "" && agentText == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turnPair{userText: userText, agentText: agentText})
	if h.maxTurns > 0 && len(h.turns) > h.maxTurns {
		h.turns = h.turns[len(h.turns)-h.maxTurns:]
	}
}

// Messages materializes the history as role-tagged LLM messages, oldest
// first, for inclusion in a chat request.
func (h *ConversationHistory) Messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]llm.Message, 0, len(h.turns)*2)
	for _, t := range h.turns {
		if t.userText != "" {
			out = append(out, llm.Message{Role: llm.RoleUser, Content: t.userText})
		}
		if t.agentText != "" {
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: t.agentText})
		}
	}
	return out
}

// Len returns the number of recorded turn pairs.
func (h *ConversationHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Clear empties the history.
func (h *ConversationHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
