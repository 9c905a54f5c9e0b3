// Package backend abstracts the conversational backend behind one client
// interface with two implementations: the ChatKit session/run API and the
// synchronous workflow webhook. The orchestrator drives both identically;
// the webhook flavor simply reports its run as completed right away.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is the backend's asynchronous unit of work processing one turn.
type Run struct {
	ID          string
	Status      RunStatus
	ErrorDetail string
}

// Terminal reports whether the run will not change status anymore.
func (r Run) Terminal() bool {
	return r.Status == RunCompleted || r.Status == RunFailed || r.Status == RunCancelled
}

// Message is one user turn as submitted to the backend. UserProfile rides
// along on every turn because the webhook flavor forwards it per call; the
// session flavor only needs it once, at session creation.
type Message struct {
	Content     string
	UserProfile string
}

// Client is the flavor-agnostic surface the orchestrator depends on.
type Client interface {
	// CreateSession opens a conversation and returns its opaque handle.
	CreateSession(ctx context.Context, userID, userProfile string) (string, error)
	// PostMessage appends one user turn to the session.
	PostMessage(ctx context.Context, sessionID string, msg Message) error
	// StartRun triggers processing of the last posted turn.
	StartRun(ctx context.Context, sessionID string) (Run, error)
	// GetRun reports the current status of a run.
	GetRun(ctx context.Context, sessionID, runID string) (Run, error)
	// LatestMessage returns the raw content of the most recent assistant
	// message on the session.
	LatestMessage(ctx context.Context, sessionID string) (string, error)
}

var (
	// ErrDeadline marks an outbound call that exceeded its timeout budget.
	ErrDeadline = errors.New("backend: deadline exceeded")
	// ErrUpstream marks an error explicitly reported by the webhook upstream.
	ErrUpstream = errors.New("backend: upstream error")
)

// RequestError is the single error type all transport and HTTP failures
// collapse into. Status is zero for network-level failures.
type RequestError struct {
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backend: %s (status %d)", e.Message, e.Status)
	}
	return "backend: " + e.Message
}

func (e *RequestError) Unwrap() error { return e.Err }

// errorMessage extracts the upstream {error:{message}} envelope, falling
// back to "HTTP <status>" when the body is not in that shape.
func errorMessage(status int, body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return fmt.Sprintf("HTTP %d", status)
}

// isTimeout classifies context deadlines and net-level timeouts.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func normalizeStatus(s string) RunStatus {
	switch s {
	case string(RunCompleted):
		return RunCompleted
	case string(RunFailed):
		return RunFailed
	case string(RunCancelled):
		return RunCancelled
	default:
		// queued, in_progress and anything the API grows later
		return RunPending
	}
}

func is2xx(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
