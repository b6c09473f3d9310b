// Package llm wraps the any-llm-go multi-provider client behind the small
// Oracle interface the agents consume. The client owns transport retries with
// exponential backoff and the JSON-extraction retries for models that wrap
// their answer in prose or code fences.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	"github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/eidetic-ai/eidetic/pkg/config"
)

// jsonReminder is appended to the system prompt when the model answered with
// text that contained no parseable JSON.
const jsonReminder = "Respond with a single valid JSON object and nothing else. " +
	"No prose, no markdown, no code fences."

// ChatRequest is one prompt exchange. Model may be empty, in which case the
// provider's default model is used.
type ChatRequest struct {
	System      string
	User        string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Oracle is the LLM surface the agents depend on. Chat returns the raw
// completion text; ChatJSON additionally demands a JSON object and retries
// with a format reminder when the model drifts into prose.
type Oracle interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	ChatJSON(ctx context.Context, req ChatRequest) (json.RawMessage, error)
}

// Client implements Oracle on top of one any-llm-go provider backend.
type Client struct {
	provider string
	cfg      *config.LLMProviderConfig
	backend  anyllmlib.Provider
	logger   *slog.Logger

	// complete performs one completion round-trip; swapped out in tests.
	complete func(ctx context.Context, params anyllmlib.CompletionParams) (string, error)
	// sleep waits between retries; swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a client for one named provider. The API key is read from
// the environment variable the provider config names; a missing key is left
// to the validator, not checked here.
func NewClient(provider string, cfg *config.LLMProviderConfig, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("provider config is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []anyllmlib.Option
	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			opts = append(opts, anyllmlib.WithAPIKey(key))
		}
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}

	var (
		backend anyllmlib.Provider
		err     error
	)
	switch cfg.Type {
	case config.LLMProviderTypeMistral:
		backend, err = mistral.New(opts...)
	case config.LLMProviderTypeOpenAI:
		backend, err = openai.New(opts...)
	case config.LLMProviderTypeOllama:
		backend, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s backend: %w", cfg.Type, err)
	}

	c := &Client{
		provider: provider,
		cfg:      cfg,
		backend:  backend,
		logger:   logger,
		sleep:    sleepCtx,
	}
	c.complete = c.completeOnce
	return c, nil
}

// Chat performs one completion with transport retries. Each attempt runs
// under the provider's per-call timeout; backoff between attempts doubles.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	params := c.buildParams(req)

	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := c.completeWithTimeout(ctx, params)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", &UnavailableError{Provider: c.provider, Attempts: attempt, Err: lastErr}
		}
		c.logger.Warn("LLM call failed",
			"provider", c.provider,
			"model", params.Model,
			"attempt", attempt,
			"error", err)
		if attempt < attempts {
			if err := c.sleep(ctx, backoffDelay(c.cfg.RetryBackoff, attempt)); err != nil {
				return "", &UnavailableError{Provider: c.provider, Attempts: attempt, Err: lastErr}
			}
		}
	}
	return "", &UnavailableError{Provider: c.provider, Attempts: attempts, Err: lastErr}
}

// ChatJSON performs Chat and extracts a JSON payload from the response. When
// the response holds no valid JSON the call is retried with a slightly higher
// temperature and an explicit format reminder.
func (c *Client) ChatJSON(ctx context.Context, req ChatRequest) (json.RawMessage, error) {
	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	r := req
	var (
		lastErr error
		lastRaw string
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := c.Chat(ctx, r)
		if err != nil {
			// Transport failures already spent their own retry budget.
			return nil, err
		}
		raw, err := extractJSON(text)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		lastRaw = text
		c.logger.Warn("LLM returned malformed JSON",
			"provider", c.provider,
			"attempt", attempt,
			"error", err)
		if ctx.Err() != nil {
			break
		}
		r.Temperature = min(r.Temperature+0.1, 1.0)
		if req.System != "" {
			r.System = req.System + "\n\n" + jsonReminder
		} else {
			r.System = jsonReminder
		}
	}
	return nil, &FormatError{Provider: c.provider, Attempts: attempts, Raw: lastRaw, Err: lastErr}
}

func (c *Client) completeWithTimeout(ctx context.Context, params anyllmlib.CompletionParams) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	return c.complete(ctx, params)
}

func (c *Client) completeOnce(ctx context.Context, params anyllmlib.CompletionParams) (string, error) {
	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty choices in response")
	}
	if resp.Usage != nil {
		c.logger.Debug("LLM usage",
			"provider", c.provider,
			"model", params.Model,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
			"total_tokens", resp.Usage.TotalTokens)
	}
	return resp.Choices[0].Message.ContentString(), nil
}

func (c *Client) buildParams(req ChatRequest) anyllmlib.CompletionParams {
	model := req.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}

	var messages []anyllmlib.Message
	if req.System != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, anyllmlib.Message{
		Role:    anyllmlib.RoleUser,
		Content: req.User,
	})

	params := anyllmlib.CompletionParams{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.MaxTokens > 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	return params
}

// BuildRoleOracles constructs one shared client per provider and maps every
// agent role to its provider's client.
func BuildRoleOracles(cfg *config.Config, logger *slog.Logger) (map[string]Oracle, error) {
	clients := make(map[string]*Client)
	oracles := make(map[string]Oracle)
	for role, rc := range cfg.Agents.GetAll() {
		client, ok := clients[rc.Provider]
		if !ok {
			providerCfg, err := cfg.LLMProviders.Get(rc.Provider)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			client, err = NewClient(rc.Provider, providerCfg, logger)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", role, err)
			}
			clients[rc.Provider] = client
		}
		oracles[role] = client
	}
	return oracles, nil
}

// backoffDelay doubles the base delay for every retry already burned.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 800 * time.Millisecond
	}
	return base << (attempt - 1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// extractJSON pulls the JSON payload out of a model response, tolerating
// code fences and surrounding prose.
func extractJSON(raw string) (json.RawMessage, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		} else {
			s = strings.TrimSpace(rest)
		}
	}
	if len(s) == 0 {
		return nil, errors.New("empty response")
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil, errors.New("no JSON payload in response")
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return nil, errors.New("unterminated JSON payload in response")
	}
	candidate := s[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil, errors.New("malformed JSON payload in response")
	}
	return json.RawMessage(candidate), nil
}
