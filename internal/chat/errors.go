package chat

import (
	"errors"
	"fmt"

	"hormur-widget-backend/internal/backend"
)

var (
	// ErrEmptyInput means the turn had no usable text after trimming.
	ErrEmptyInput = errors.New("chat: empty input")
	// ErrTurnInFlight means another turn is already being processed for
	// the same session; the caller should retry once it completes.
	ErrTurnInFlight = errors.New("chat: a turn is already in flight for this session")
	// ErrPollTimeout means the run never reached a terminal state within
	// the poll budget.
	ErrPollTimeout = errors.New("chat: run did not complete within the poll budget")
)

// TranscriptionError wraps a speech-to-text failure or empty transcript.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string { return "chat: transcription: " + e.Err.Error() }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// RunFailedError reports a run that reached failed or cancelled.
type RunFailedError struct {
	Status backend.RunStatus
	Detail string
}

func (e *RunFailedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("chat: run %s: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("chat: run %s", e.Status)
}
