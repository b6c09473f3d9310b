// Package voice adapts Eidetic to an ElevenLabs-compatible conversational
// voice platform. Script prompts go out as agent patches; finished
// interviews come back as signed webhooks.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/eidetic-ai/eidetic/pkg/config"
)

// PublishError reports a prompt publish that did not reach the platform.
// The pipeline marks the project sync_pending and the republisher retries.
type PublishError struct {
	AgentID    string
	StatusCode int // last HTTP status, 0 when no response was received
	Attempts   int
	Err        error
}

func (e *PublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to publish prompt to agent %s after %d attempts: HTTP %d", e.AgentID, e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("failed to publish prompt to agent %s: %v", e.AgentID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Client talks to the voice platform's agent API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// NewClient creates a Client. The API key is read from the env var named in
// the config; an empty key leaves the client unconfigured and every publish
// fails fast.
func NewClient(cfg *config.VoiceConfig, logger *slog.Logger) *Client {
	if cfg == nil {
		panic("voice.NewClient: cfg must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.PublishTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		logger:     logger,
	}
}

// Configured reports whether an API key is available. Webhook-less local
// setups run unconfigured and inject transcripts via the simulate endpoint.
func (c *Client) Configured() bool { return c.apiKey != "" }

// promptUpdate is the platform's agent-patch body: the prompt text nested
// under conversation_config.agent.prompt.prompt.
type promptUpdate struct {
	ConversationConfig struct {
		Agent struct {
			Prompt struct {
				Prompt string `json:"prompt"`
			} `json:"prompt"`
		} `json:"agent"`
	} `json:"conversation_config"`
}

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// PublishPrompt replaces the agent's active system prompt. Transient
// failures retry with exponential backoff; persistent failure returns a
// *PublishError.
func (c *Client) PublishPrompt(ctx context.Context, agentID, prompt string) error {
	if c.apiKey == "" {
		return &PublishError{AgentID: agentID, Err: errors.New("voice API key is not configured")}
	}
	if agentID == "" {
		return &PublishError{Err: errors.New("agent id is empty")}
	}

	var update promptUpdate
	update.ConversationConfig.Agent.Prompt.Prompt = prompt
	payload, err := json.Marshal(update)
	if err != nil {
		return &PublishError{AgentID: agentID, Err: fmt.Errorf("marshal prompt update: %w", err)}
	}

	url := fmt.Sprintf("%s/convai/agents/%s", c.baseURL, agentID)

	var lastErr error
	lastStatus := 0
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		status, err := c.patch(ctx, url, payload)
		switch {
		case err != nil:
			lastErr = err
			lastStatus = 0
		case status < 400:
			return nil
		case transientStatus(status):
			lastStatus = status
			lastErr = fmt.Errorf("platform returned HTTP %d", status)
		default:
			// Client errors other than timeout/rate-limit do not recover
			// by retrying.
			return &PublishError{
				AgentID:    agentID,
				StatusCode: status,
				Attempts:   attempt,
				Err:        fmt.Errorf("platform returned HTTP %d", status),
			}
		}

		if attempt < c.maxRetries {
			wait := c.backoff << (attempt - 1)
			c.logger.Warn("prompt publish failed, retrying",
				"agent_id", agentID, "attempt", attempt, "error", lastErr, "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return &PublishError{AgentID: agentID, StatusCode: lastStatus, Attempts: attempt, Err: ctx.Err()}
			}
		}
	}

	return &PublishError{AgentID: agentID, StatusCode: lastStatus, Attempts: c.maxRetries, Err: lastErr}
}

func (c *Client) patch(ctx context.Context, url string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// TalkToLink returns the public conversation page for an agent.
func TalkToLink(agentID string) string {
	return "https://elevenlabs.io/app/talk-to/" + agentID
}
