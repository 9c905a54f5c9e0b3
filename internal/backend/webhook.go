package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"hormur-widget-backend/internal/config"
)

// WebhookClient implements Client against a synchronous workflow webhook.
// The webhook answers the turn in the POST response itself, so there is no
// run lifecycle to drive: PostMessage performs the exchange and stashes the
// reply body, StartRun/GetRun report completed immediately, and
// LatestMessage hands the stashed body to the shared normalize path.
type WebhookClient struct {
	httpClient *http.Client
	url        string
	log        zerolog.Logger

	mu      sync.Mutex
	replies map[string]string
}

func NewWebhookClient(cfg config.Config, log zerolog.Logger) *WebhookClient {
	return &WebhookClient{
		httpClient: &http.Client{Timeout: cfg.WebhookTimeout},
		url:        cfg.WebhookURL,
		log:        log.With().Str("backend", "webhook").Logger(),
		replies:    make(map[string]string),
	}
}

// CreateSession mints a local handle; the webhook has no session-creation
// endpoint. If the webhook later answers with its own sessionId, that one
// wins during normalization.
func (c *WebhookClient) CreateSession(ctx context.Context, userID, userProfile string) (string, error) {
	return fmt.Sprintf("s_%d", time.Now().UnixNano()), nil
}

func (c *WebhookClient) PostMessage(ctx context.Context, sessionID string, msg Message) error {
	payload := map[string]any{
		"message":     msg.Content,
		"userProfile": msg.UserProfile,
		"sessionId":   sessionID,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return &RequestError{Message: "encode request: " + err.Error(), Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return &RequestError{Message: "build request: " + err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &RequestError{Message: "webhook timed out", Err: ErrDeadline}
		}
		return &RequestError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{Status: resp.StatusCode, Message: "read response: " + err.Error(), Err: err}
	}
	if !is2xx(resp) {
		msg := errorMessage(resp.StatusCode, data)
		c.log.Warn().Int("status", resp.StatusCode).Str("error", msg).Msg("webhook call failed")
		return &RequestError{Status: resp.StatusCode, Message: msg, Err: ErrUpstream}
	}

	c.mu.Lock()
	c.replies[sessionID] = string(data)
	c.mu.Unlock()
	return nil
}

func (c *WebhookClient) StartRun(ctx context.Context, sessionID string) (Run, error) {
	return Run{ID: "sync", Status: RunCompleted}, nil
}

func (c *WebhookClient) GetRun(ctx context.Context, sessionID, runID string) (Run, error) {
	return Run{ID: runID, Status: RunCompleted}, nil
}

func (c *WebhookClient) LatestMessage(ctx context.Context, sessionID string) (string, error) {
	c.mu.Lock()
	raw, ok := c.replies[sessionID]
	if ok {
		delete(c.replies, sessionID)
	}
	c.mu.Unlock()
	if !ok {
		return "", &RequestError{Message: "no webhook reply recorded for session " + sessionID}
	}
	return raw, nil
}
