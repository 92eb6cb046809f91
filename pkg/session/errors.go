package session

import (
	"errors"
	"fmt"

	"github.com/avoxio/turnctl/pkg/ai"
)

// ErrorKind names one of the turn controller's recognized failure modes.
type ErrorKind string

const (
	ErrSTTConnectionFailed ErrorKind = "STT_CONNECTION_FAILED"
	ErrSTTTransportLost    ErrorKind = "STT_TRANSPORT_LOST"
	ErrLLMTimeout          ErrorKind = "LLM_TIMEOUT"
	ErrLLMNoResponse       ErrorKind = "LLM_NO_RESPONSE"
	ErrLLMError            ErrorKind = "LLM_ERROR"
	ErrTTSQueueTimeout     ErrorKind = "TTS_QUEUE_TIMEOUT"
	ErrTTSError            ErrorKind = "TTS_ERROR"
	ErrInternal            ErrorKind = "INTERNAL_ERROR"
)

// recoverableKinds lists the kinds that the turn controller treats as
// recoverable: the session survives, only the current turn resets.
var recoverableKinds = map[ErrorKind]bool{
	ErrSTTConnectionFailed: true,
	ErrSTTTransportLost:    true, // recoverable until reconnect attempts are exhausted
	ErrLLMTimeout:          true,
	ErrLLMNoResponse:       true,
	ErrLLMError:            true,
	ErrTTSQueueTimeout:     true,
	ErrTTSError:            true,
	ErrInternal:            false,
}

// TurnError is the error type delivered to on_error. It wraps ai.ErrRecoverable
// or ai.ErrFatal so callers can keep using errors.Is against the two umbrella
// sentinels the rest of the pack's provider code already classifies against.
type TurnError struct {
	Kind        ErrorKind
	Message     string
	Recoverable bool
	Underlying  error
}

func (e *TurnError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TurnError) Unwrap() error {
	if e.Recoverable {
		return ai.ErrRecoverable
	}
	return ai.ErrFatal
}

// NewTurnError builds a TurnError for the given kind, defaulting recoverability
// to the kind's documented classification (see ErrorKind constants).
func NewTurnError(kind ErrorKind, message string, underlying error) *TurnError {
	return &TurnError{
		Kind:        kind,
		Message:     message,
		Recoverable: recoverableKinds[kind],
		Underlying:  underlying,
	}
}

// NewTurnErrorWithRecoverable builds a TurnError overriding the kind's default
// recoverability — used for STT_TRANSPORT_LOST once reconnect attempts are
// exhausted, at which point the same kind becomes unrecoverable.
func NewTurnErrorWithRecoverable(kind ErrorKind, message string, underlying error, recoverable bool) *TurnError {
	e := NewTurnError(kind, message, underlying)
	e.Recoverable = recoverable
	return e
}

// IsRecoverable reports whether err is (or wraps) a recoverable turn error.
func IsRecoverable(err error) bool {
	return errors.Is(err, ai.ErrRecoverable)
}

// IsFatal reports whether err is (or wraps) a fatal turn error.
func IsFatal(err error) bool {
	return errors.Is(err, ai.ErrFatal)
}
