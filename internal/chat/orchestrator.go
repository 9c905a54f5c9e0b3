// Package chat drives one user turn to completion: input resolution,
// session acquisition, message submission, run execution, completion
// polling and response normalization.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hormur-widget-backend/internal/backend"
	"hormur-widget-backend/internal/normalize"
	"hormur-widget-backend/internal/prompts"
	"hormur-widget-backend/internal/store"
	"hormur-widget-backend/internal/transcribe"
	"hormur-widget-backend/internal/types"
)

const (
	defaultPollInterval    = time.Second
	defaultMaxPollAttempts = 60
)

// Turn is one user input. Audio, when present, is transcribed and becomes
// the turn's text.
type Turn struct {
	SessionID   string
	UserProfile string
	Text        string
	Audio       []byte
	AudioMIME   string
}

type Orchestrator struct {
	backend     backend.Client
	transcriber transcribe.Transcriber
	cache       *store.ReplyCache
	prompts     prompts.Spec
	log         zerolog.Logger

	pollInterval    time.Duration
	maxPollAttempts int

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type Option func(*Orchestrator)

// WithCache enables the reply cache for text-only turns. A hit echoes the
// caller's own session id; on a first turn that means the reply carries no
// session id at all, since no session is created for a cached answer.
func WithCache(c *store.ReplyCache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

func WithMaxPollAttempts(n int) Option {
	return func(o *Orchestrator) { o.maxPollAttempts = n }
}

func New(client backend.Client, tr transcribe.Transcriber, spec prompts.Spec, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:         client,
		transcriber:     tr,
		prompts:         spec,
		log:             log.With().Str("component", "orchestrator").Logger(),
		pollInterval:    defaultPollInterval,
		maxPollAttempts: defaultMaxPollAttempts,
		inFlight:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitTurn drives one turn to a normalized reply. Session creation,
// message submission and result retrieval are attempted exactly once; only
// the completion poll repeats, bounded by the attempt budget. A second turn
// for a session that already has one outstanding fails with
// ErrTurnInFlight.
func (o *Orchestrator) SubmitTurn(ctx context.Context, turn Turn) (*types.ChatReply, error) {
	text := strings.TrimSpace(turn.Text)
	fromAudio := len(turn.Audio) > 0

	var transcript string
	if fromAudio {
		t, err := o.transcriber.Transcribe(ctx, turn.Audio, turn.AudioMIME)
		if err != nil {
			return nil, &TranscriptionError{Err: err}
		}
		transcript = strings.TrimSpace(t)
		if transcript == "" {
			return nil, &TranscriptionError{Err: transcribe.ErrEmptyTranscript}
		}
		text = transcript
	}
	if text == "" {
		return nil, ErrEmptyInput
	}

	if o.cache != nil && !fromAudio {
		if reply, ok := o.cache.Get(turn.UserProfile, text); ok {
			o.log.Debug().Str("profile", turn.UserProfile).Msg("reply served from cache")
			reply.SessionID = turn.SessionID
			return &reply, nil
		}
	}

	if turn.SessionID != "" {
		if !o.acquire(turn.SessionID) {
			return nil, ErrTurnInFlight
		}
		defer o.release(turn.SessionID)
	}

	sessionID := turn.SessionID
	firstTurn := sessionID == ""
	if firstTurn {
		sid, err := o.backend.CreateSession(ctx, "user_"+uuid.NewString(), turn.UserProfile)
		if err != nil {
			return nil, err
		}
		sessionID = sid
		o.log.Info().Str("session", sessionID).Str("profile", turn.UserProfile).Msg("session created")
	}

	content := text
	if firstTurn && turn.UserProfile != "" {
		content = o.prompts.Frame(turn.UserProfile, text)
	}

	msg := backend.Message{Content: content, UserProfile: turn.UserProfile}
	if err := o.backend.PostMessage(ctx, sessionID, msg); err != nil {
		return nil, err
	}
	run, err := o.backend.StartRun(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := o.awaitRun(ctx, sessionID, run.ID); err != nil {
		return nil, err
	}

	raw, err := o.backend.LatestMessage(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		raw = o.prompts.Messages.EmptyReply
	}

	res := normalize.Normalize(raw)
	reply := res.Reply
	if reply.SessionID == "" {
		reply.SessionID = sessionID
	}
	if fromAudio {
		reply.TranscribedText = transcript
	}
	if o.cache != nil && !fromAudio {
		o.cache.Put(turn.UserProfile, text, reply)
	}
	return &reply, nil
}

// awaitRun polls the run status once per interval until it is terminal or
// the attempt budget is spent. The budget is a hard ceiling: a run still
// pending at the last attempt yields ErrPollTimeout, never an extra poll.
func (o *Orchestrator) awaitRun(ctx context.Context, sessionID, runID string) error {
	for attempt := 1; attempt <= o.maxPollAttempts; attempt++ {
		run, err := o.backend.GetRun(ctx, sessionID, runID)
		if err != nil {
			return err
		}
		if run.Terminal() {
			if run.Status == backend.RunCompleted {
				return nil
			}
			return &RunFailedError{Status: run.Status, Detail: run.ErrorDetail}
		}
		if attempt == o.maxPollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("chat: run polling: %w", ctx.Err())
		case <-time.After(o.pollInterval):
		}
	}
	o.log.Warn().Str("session", sessionID).Str("run", runID).Int("attempts", o.maxPollAttempts).Msg("poll budget exhausted")
	return ErrPollTimeout
}

func (o *Orchestrator) acquire(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[sessionID]; busy {
		return false
	}
	o.inFlight[sessionID] = struct{}{}
	return true
}

func (o *Orchestrator) release(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, sessionID)
}
