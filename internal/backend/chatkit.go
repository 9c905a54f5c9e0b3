package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hormur-widget-backend/internal/config"
)

// ChatKitClient implements Client against the hosted assistant-session API.
// It keeps a very small surface area tailored to our needs.
type ChatKitClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	workflowID string
	log        zerolog.Logger
}

func NewChatKitClient(cfg config.Config, log zerolog.Logger) *ChatKitClient {
	return &ChatKitClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(cfg.ChatKitBaseURL, "/"),
		apiKey:     cfg.OpenAIAPIKey,
		workflowID: cfg.WorkflowID,
		log:        log.With().Str("backend", "chatkit").Logger(),
	}
}

func (c *ChatKitClient) CreateSession(ctx context.Context, userID, userProfile string) (string, error) {
	if userProfile == "" {
		userProfile = "unknown"
	}
	body := map[string]any{
		"workflow": map[string]string{"id": c.workflowID},
		"user":     userID,
		"metadata": map[string]string{"userProfile": userProfile},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/sessions", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &RequestError{Message: "session created without id"}
	}
	c.log.Debug().Str("session", out.ID).Msg("session created")
	return out.ID, nil
}

func (c *ChatKitClient) PostMessage(ctx context.Context, sessionID string, msg Message) error {
	body := map[string]string{"role": "user", "content": msg.Content}
	return c.doJSON(ctx, http.MethodPost, "/sessions/"+sessionID+"/messages", body, nil)
}

func (c *ChatKitClient) StartRun(ctx context.Context, sessionID string) (Run, error) {
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/sessions/"+sessionID+"/runs", map[string]any{}, &out); err != nil {
		return Run{}, err
	}
	return Run{ID: out.ID, Status: normalizeStatus(out.Status)}, nil
}

func (c *ChatKitClient) GetRun(ctx context.Context, sessionID, runID string) (Run, error) {
	var out struct {
		ID     string          `json:"id"`
		Status string          `json:"status"`
		Error  json.RawMessage `json:"error"`
	}
	path := "/sessions/" + sessionID + "/runs/" + runID
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return Run{}, err
	}
	return Run{ID: runID, Status: normalizeStatus(out.Status), ErrorDetail: runErrorDetail(out.Error)}, nil
}

func (c *ChatKitClient) LatestMessage(ctx context.Context, sessionID string) (string, error) {
	var out struct {
		Data []struct {
			Content string `json:"content"`
		} `json:"data"`
	}
	path := "/sessions/" + sessionID + "/messages?limit=1&order=desc"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", nil
	}
	return out.Data[0].Content, nil
}

// doJSON performs one authenticated call and decodes the JSON response into
// out when non-nil. Every failure mode collapses into *RequestError.
func (c *ChatKitClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Message: "encode request: " + err.Error(), Err: err}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return &RequestError{Message: "build request: " + err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "chatkit_beta=v1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &RequestError{Message: "request timed out", Err: ErrDeadline}
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
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Str("error", msg).Msg("chatkit call failed")
		return &RequestError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &RequestError{Status: resp.StatusCode, Message: fmt.Sprintf("invalid JSON response from %s", path), Err: err}
		}
	}
	return nil
}

func runErrorDetail(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
