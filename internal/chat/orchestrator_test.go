package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hormur-widget-backend/internal/backend"
	"hormur-widget-backend/internal/prompts"
	"hormur-widget-backend/internal/store"
)

// fakeBackend records calls and plays back a scripted run-status sequence.
type fakeBackend struct {
	mu          sync.Mutex
	calls       []string
	contents    []string
	profiles    []string
	runStatuses []backend.RunStatus
	polls       int
	latest      string
	runDetail   string

	// blockPost, when set, is closed by the test to let PostMessage return.
	blockPost chan struct{}
	// postEntered is signalled when PostMessage starts.
	postEntered chan struct{}
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeBackend) CreateSession(ctx context.Context, userID, userProfile string) (string, error) {
	f.record("CreateSession")
	return "sess_1", nil
}

func (f *fakeBackend) PostMessage(ctx context.Context, sessionID string, msg backend.Message) error {
	f.record("PostMessage")
	f.mu.Lock()
	f.contents = append(f.contents, msg.Content)
	f.profiles = append(f.profiles, msg.UserProfile)
	f.mu.Unlock()
	if f.postEntered != nil {
		f.postEntered <- struct{}{}
	}
	if f.blockPost != nil {
		<-f.blockPost
	}
	return nil
}

func (f *fakeBackend) StartRun(ctx context.Context, sessionID string) (backend.Run, error) {
	f.record("StartRun")
	return backend.Run{ID: "run_1", Status: backend.RunPending}, nil
}

func (f *fakeBackend) GetRun(ctx context.Context, sessionID, runID string) (backend.Run, error) {
	f.record("GetRun")
	f.mu.Lock()
	i := f.polls
	f.polls++
	f.mu.Unlock()
	status := backend.RunCompleted
	if i < len(f.runStatuses) {
		status = f.runStatuses[i]
	}
	return backend.Run{ID: runID, Status: status, ErrorDetail: f.runDetail}, nil
}

func (f *fakeBackend) LatestMessage(ctx context.Context, sessionID string) (string, error) {
	f.record("LatestMessage")
	if f.latest == "" {
		return `{"message":"bonjour","results":[],"showCalendly":false}`, nil
	}
	return f.latest, nil
}

func (f *fakeBackend) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return f.text, f.err
}

func newTestOrchestrator(fb *fakeBackend, tr *fakeTranscriber, opts ...Option) *Orchestrator {
	base := []Option{WithPollInterval(time.Millisecond)}
	return New(fb, tr, prompts.Default(), zerolog.Nop(), append(base, opts...)...)
}

func TestDefaultPollBudget(t *testing.T) {
	o := New(&fakeBackend{}, &fakeTranscriber{}, prompts.Default(), zerolog.Nop())
	assert.Equal(t, 60, o.maxPollAttempts)
	assert.Equal(t, time.Second, o.pollInterval)
}

func TestFirstTurnCreatesSessionOnce(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	reply, err := o.SubmitTurn(context.Background(), Turn{Text: "bonjour", UserProfile: "artiste"})
	require.NoError(t, err)
	assert.Equal(t, "sess_1", reply.SessionID)
	assert.Equal(t, []string{"CreateSession", "PostMessage", "StartRun", "GetRun", "LatestMessage"}, fb.callNames())
}

func TestExistingSessionSkipsCreation(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	reply, err := o.SubmitTurn(context.Background(), Turn{SessionID: "sess_9", Text: "encore"})
	require.NoError(t, err)
	assert.Equal(t, "sess_9", reply.SessionID)
	assert.NotContains(t, fb.callNames(), "CreateSession")
}

func TestProfileFramingOnFirstTurnOnly(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	_, err := o.SubmitTurn(context.Background(), Turn{Text: "un concert", UserProfile: "artiste"})
	require.NoError(t, err)
	_, err = o.SubmitTurn(context.Background(), Turn{SessionID: "sess_1", Text: "à Lyon", UserProfile: "artiste"})
	require.NoError(t, err)

	require.Len(t, fb.contents, 2)
	assert.Equal(t, "[profile: artiste] un concert", fb.contents[0])
	assert.Equal(t, "à Lyon", fb.contents[1])
}

func TestProfileAccompaniesEveryTurn(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	_, err := o.SubmitTurn(context.Background(), Turn{Text: "un concert", UserProfile: "artiste"})
	require.NoError(t, err)
	_, err = o.SubmitTurn(context.Background(), Turn{SessionID: "sess_1", Text: "à Lyon", UserProfile: "artiste"})
	require.NoError(t, err)

	require.Len(t, fb.profiles, 2)
	assert.Equal(t, []string{"artiste", "artiste"}, fb.profiles)
}

func TestUnknownProfileSendsRawText(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	_, err := o.SubmitTurn(context.Background(), Turn{Text: "un concert"})
	require.NoError(t, err)
	require.Len(t, fb.contents, 1)
	assert.Equal(t, "un concert", fb.contents[0])
}

func TestEmptyInputFailsBeforeAnyNetworkCall(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	_, err := o.SubmitTurn(context.Background(), Turn{Text: "   "})
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, fb.callNames())
}

func TestEmptyTranscriptStopsTheTurn(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(fb, &fakeTranscriber{err: errors.New("no speech detected")})

	_, err := o.SubmitTurn(context.Background(), Turn{Audio: []byte{1, 2, 3}, AudioMIME: "audio/webm"})
	var trErr *TranscriptionError
	require.ErrorAs(t, err, &trErr)
	assert.Empty(t, fb.callNames(), "no message or run operations after a failed transcription")
}

func TestBlankTranscriptIsATranscriptionError(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(fb, &fakeTranscriber{text: "   "})

	_, err := o.SubmitTurn(context.Background(), Turn{Audio: []byte{1}, AudioMIME: "audio/webm"})
	var trErr *TranscriptionError
	require.ErrorAs(t, err, &trErr)
	assert.Empty(t, fb.callNames())
}

func TestAudioTurnCarriesTranscript(t *testing.T) {
	fb := &fakeBackend{}
	o := newTestOrchestrator(fb, &fakeTranscriber{text: "bonjour depuis le micro"})

	reply, err := o.SubmitTurn(context.Background(), Turn{Audio: []byte{1}, AudioMIME: "audio/webm"})
	require.NoError(t, err)
	assert.Equal(t, "bonjour depuis le micro", reply.TranscribedText)
}

func TestRunFailureAfterExactlyThreePolls(t *testing.T) {
	fb := &fakeBackend{
		runStatuses: []backend.RunStatus{backend.RunPending, backend.RunPending, backend.RunFailed},
		runDetail:   "tool exploded",
	}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	_, err := o.SubmitTurn(context.Background(), Turn{Text: "bonjour"})
	var rfErr *RunFailedError
	require.ErrorAs(t, err, &rfErr)
	assert.Equal(t, backend.RunFailed, rfErr.Status)
	assert.Equal(t, "tool exploded", rfErr.Detail)
	assert.Equal(t, 3, fb.polls)
}

func TestCancelledRunFails(t *testing.T) {
	fb := &fakeBackend{runStatuses: []backend.RunStatus{backend.RunCancelled}}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	_, err := o.SubmitTurn(context.Background(), Turn{Text: "bonjour"})
	var rfErr *RunFailedError
	require.ErrorAs(t, err, &rfErr)
	assert.Equal(t, backend.RunCancelled, rfErr.Status)
}

func TestPollBudgetIsAHardCeiling(t *testing.T) {
	pending := make([]backend.RunStatus, 100)
	for i := range pending {
		pending[i] = backend.RunPending
	}
	fb := &fakeBackend{runStatuses: pending}
	o := newTestOrchestrator(fb, &fakeTranscriber{}, WithMaxPollAttempts(60))

	_, err := o.SubmitTurn(context.Background(), Turn{Text: "bonjour"})
	require.ErrorIs(t, err, ErrPollTimeout)
	assert.Equal(t, 60, fb.polls, "timeout at attempt 60, never 61")
}

func TestConcurrentTurnOnSameSessionIsRejected(t *testing.T) {
	fb := &fakeBackend{
		blockPost:   make(chan struct{}),
		postEntered: make(chan struct{}, 1),
	}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	done := make(chan error, 1)
	go func() {
		_, err := o.SubmitTurn(context.Background(), Turn{SessionID: "sess_1", Text: "premier"})
		done <- err
	}()
	<-fb.postEntered

	_, err := o.SubmitTurn(context.Background(), Turn{SessionID: "sess_1", Text: "deuxième"})
	assert.ErrorIs(t, err, ErrTurnInFlight)

	close(fb.blockPost)
	require.NoError(t, <-done)

	// Once the first turn finished the slot is free again.
	_, err = o.SubmitTurn(context.Background(), Turn{SessionID: "sess_1", Text: "troisième"})
	assert.NoError(t, err)
}

func TestCacheHitSkipsNetwork(t *testing.T) {
	fb := &fakeBackend{}
	cache := store.NewReplyCache(8)
	o := newTestOrchestrator(fb, &fakeTranscriber{}, WithCache(cache))

	first, err := o.SubmitTurn(context.Background(), Turn{SessionID: "sess_1", Text: "Concert à Lyon", UserProfile: "spectateur"})
	require.NoError(t, err)
	callsAfterFirst := len(fb.callNames())

	second, err := o.SubmitTurn(context.Background(), Turn{SessionID: "sess_1", Text: "concert à lyon", UserProfile: "spectateur"})
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, len(fb.callNames()), "second call issues zero network calls")
	assert.Equal(t, first.Message, second.Message)
	assert.Equal(t, "sess_1", second.SessionID, "cache hit echoes the caller's session id")
}

func TestAudioTurnsBypassTheCache(t *testing.T) {
	fb := &fakeBackend{}
	cache := store.NewReplyCache(8)
	o := newTestOrchestrator(fb, &fakeTranscriber{text: "concert à lyon"}, WithCache(cache))

	_, err := o.SubmitTurn(context.Background(), Turn{SessionID: "sess_1", Audio: []byte{1}})
	require.NoError(t, err)
	before := len(fb.callNames())

	_, err = o.SubmitTurn(context.Background(), Turn{SessionID: "sess_1", Audio: []byte{1}})
	require.NoError(t, err)
	assert.Greater(t, len(fb.callNames()), before)
}

func TestBackendSessionIDWins(t *testing.T) {
	fb := &fakeBackend{latest: `{"sessionId":"sess_remote","message":"ok"}`}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	reply, err := o.SubmitTurn(context.Background(), Turn{Text: "bonjour"})
	require.NoError(t, err)
	assert.Equal(t, "sess_remote", reply.SessionID)
}

func TestEmptyAssistantMessageGetsFallback(t *testing.T) {
	fb := &fakeBackend{latest: "   "}
	o := newTestOrchestrator(fb, &fakeTranscriber{})

	reply, err := o.SubmitTurn(context.Background(), Turn{Text: "bonjour"})
	require.NoError(t, err)
	assert.Equal(t, prompts.Default().Messages.EmptyReply, reply.Message)
}
