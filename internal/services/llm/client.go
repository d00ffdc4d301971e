package llm

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"podforge/internal/queue"
	"podforge/internal/retry"
	"podforge/internal/services"
	"podforge/internal/services/httpapi"
)

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout = 30 * time.Second
	defaultAttempts    = 3
	maxPromptLength    = 2000
)

// PromptWriterSystemPrompt instructs the model to return a single
// print-ready image prompt.
const PromptWriterSystemPrompt = `You write prompts for a text-to-image model that produces artwork for print-on-demand products (t-shirts, mugs, posters, stickers).

Rules:
- Describe one clear subject with the requested style and audience in mind.
- Ask for an isolated subject on a plain background with clean edges so it prints well.
- Do not include text, lettering, logos, watermarks, or trademarked characters.
- Keep the prompt under 80 words.

Respond with JSON only: {"prompt": "<image prompt>"}`

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client wraps the OpenRouter chat completion API.
type Client struct {
	cfg  Config
	http *httpapi.Client

	attempts int
	backoff  retry.Policy
	sleep    func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http.HTTP = client
		}
	}
}

// WithRetryMaxAttempts sets how many requests a single call may make.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
	}
}

// WithRetryBackoff sets the first retry delay and the cap. Delays double
// between attempts.
func WithRetryBackoff(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.backoff.InitialDelay = initial
		c.backoff.MaxDelay = maxDelay
	}
}

// WithSleeper replaces the context-aware sleep between attempts.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleep = func(ctx context.Context, d time.Duration) error {
			sleeper(d)
			return ctx.Err()
		}
	}
}

// NewClient constructs an LLM client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	client := &Client{
		cfg:      cfg,
		attempts: defaultAttempts,
		backoff: retry.Policy{
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
		},
		sleep: sleepContext,
	}
	client.http = httpapi.New("llm", cfg.BaseURL, timeout, client.authorize)
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
}

// blankReplyError is returned when a completion carries no usable text.
// It counts as transient so the call is retried.
type blankReplyError struct {
	finishReason string
	refusal      string
}

func (e *blankReplyError) Error() string {
	if e.refusal != "" {
		return fmt.Sprintf("model refused: %s", e.refusal)
	}
	return fmt.Sprintf("model returned no content (finish_reason=%q)", e.finishReason)
}

func (e *blankReplyError) Unwrap() error { return services.ErrTransient }

// Synthesize asks the model for an image prompt for the theme.
func (c *Client) Synthesize(ctx context.Context, theme queue.ThemeConfig) (string, error) {
	subject := strings.TrimSpace(theme.Theme)
	if subject == "" {
		return "", services.Wrap(services.ErrValidation, "prompt", "llm synthesize", "theme is required", nil)
	}
	var user strings.Builder
	fmt.Fprintf(&user, "Theme: %s\n", subject)
	if style := strings.TrimSpace(theme.Style); style != "" {
		fmt.Fprintf(&user, "Style: %s\n", style)
	}
	if niche := strings.TrimSpace(theme.Niche); niche != "" {
		fmt.Fprintf(&user, "Audience: %s\n", niche)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "prompt", "llm synthesize", "api key required", nil)
	}
	var parsed struct {
		Prompt string `json:"prompt"`
	}
	content, err := c.complete(ctx, "llm synthesize", 0.9, PromptWriterSystemPrompt, user.String())
	if err != nil {
		return "", err
	}
	if err := decodeJSON(content, &parsed); err != nil {
		return "", services.Wrap(services.ErrGeneration, "prompt", "llm synthesize", "parse payload", err)
	}
	prompt := strings.Join(strings.Fields(parsed.Prompt), " ")
	if prompt == "" {
		return "", services.Wrap(services.ErrGeneration, "prompt", "llm synthesize", "model returned an empty prompt", nil)
	}
	if runes := []rune(prompt); len(runes) > maxPromptLength {
		prompt = string(runes[:maxPromptLength])
	}
	return prompt, nil
}

// Ping issues a tiny completion to verify the API key and model are usable.
func (c *Client) Ping(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "prompt", "llm health", "api key required", nil)
	}
	content, err := c.complete(ctx, "llm health", 0, "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := decodeJSON(content, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReply struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

type chatResponse struct {
	Choices []struct {
		Message chatReply `json:"message"`
		// Some providers answer with the streaming shape even when
		// stream is false.
		Delta        chatReply `json:"delta"`
		Text         string    `json:"text"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// text returns the first non-blank reply across choices, or a
// blankReplyError describing why there was none.
func (r chatResponse) text() (string, error) {
	blank := &blankReplyError{}
	for _, choice := range r.Choices {
		for _, candidate := range []string{choice.Message.Content, choice.Delta.Content, choice.Text} {
			if trimmed := strings.TrimSpace(candidate); trimmed != "" {
				return trimmed, nil
			}
		}
		if blank.finishReason == "" {
			blank.finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if blank.refusal == "" {
			blank.refusal = strings.TrimSpace(cmp.Or(choice.Message.Refusal, choice.Delta.Refusal))
		}
	}
	return "", blank
}

// complete sends a JSON-mode chat request, retrying transient failures
// with the client's backoff, and returns the raw reply text.
func (c *Client) complete(ctx context.Context, op string, temperature float64, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("%s: encode body: %w", op, err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.waitBefore(attempt, lastErr)); err != nil {
				return "", err
			}
		}
		text, err := c.send(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retry.Classify(err).Retryable() || errors.Is(err, context.Canceled) {
			break
		}
		if attempt == c.attempts && attempt > 1 {
			return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempt, err)
		}
	}
	return "", lastErr
}

// waitBefore honours a server Retry-After hint and otherwise follows the
// exponential policy.
func (c *Client) waitBefore(attempt int, lastErr error) time.Duration {
	var statusErr *httpapi.StatusError
	if errors.As(lastErr, &statusErr) && statusErr.RetryAfter > 0 {
		if c.backoff.MaxDelay > 0 {
			return min(statusErr.RetryAfter, c.backoff.MaxDelay)
		}
		return statusErr.RetryAfter
	}
	return c.backoff.Delay(attempt - 2)
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	raw, _, err := c.http.Do(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body), "application/json")
	if err != nil {
		return "", err
	}
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", services.Wrap(services.ErrTransient, "prompt", "llm request", "decode response", err)
	}
	if resp.Error != nil {
		return "", services.Wrap(services.ErrGeneration, "prompt", "llm request", "api error: "+strings.TrimSpace(resp.Error.Message), nil)
	}
	return resp.text()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
