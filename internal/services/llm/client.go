package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	// DefaultBaseURL is OpenRouter's OpenAI-compatible root.
	DefaultBaseURL = "https://openrouter.ai/api/v1/"

	defaultTimeout      = 90 * time.Second
	defaultMaxAttempts  = 5
	textTemperature     = 0.2
	completionsEndpoint = "/chat/completions"
	healthSystemPrompt  = "You must respond with JSON only."
	healthUserPrompt    = `Respond with {"ok":true}`
)

// Config carries the chat completion settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client sends chat completions to an OpenAI-compatible endpoint.
type Client struct {
	cfg      Config
	api      openai.Client
	attempts int
}

// Option customizes the client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	attempts   int
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = client }
}

// WithRetryMaxAttempts bounds the attempts per completion, counting the
// first. It covers both HTTP retries and retries after empty content.
func WithRetryMaxAttempts(attempts int) Option {
	return func(o *clientOptions) { o.attempts = attempts }
}

// NewClient builds a client. A base URL ending in /chat/completions is
// accepted and trimmed to its root.
func NewClient(cfg Config, opts ...Option) *Client {
	options := clientOptions{attempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(&options)
	}
	if options.attempts <= 0 {
		options.attempts = 1
	}
	cfg = Config{
		APIKey:         strings.TrimSpace(cfg.APIKey),
		BaseURL:        normalizeBaseURL(cfg.BaseURL),
		Model:          strings.TrimSpace(cfg.Model),
		Referer:        strings.TrimSpace(cfg.Referer),
		Title:          strings.TrimSpace(cfg.Title),
		TimeoutSeconds: cfg.TimeoutSeconds,
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(options.attempts - 1),
		option.WithRequestTimeout(timeout),
	}
	if cfg.Referer != "" {
		requestOpts = append(requestOpts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		requestOpts = append(requestOpts, option.WithHeader("X-Title", cfg.Title))
	}
	if options.httpClient != nil {
		requestOpts = append(requestOpts, option.WithHTTPClient(options.httpClient))
	}
	return &Client{
		cfg:      cfg,
		api:      openai.NewClient(requestOpts...),
		attempts: options.attempts,
	}
}

func normalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return DefaultBaseURL
	}
	base = strings.TrimSuffix(strings.TrimRight(base, "/"), completionsEndpoint)
	return base + "/"
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// EmptyContentError reports a completion that came back without usable text.
type EmptyContentError struct {
	Op           string
	FinishReason string
	Refusal      string
}

func (e *EmptyContentError) Error() string {
	if e.Refusal != "" {
		return fmt.Sprintf("%s: model refused: %s", e.Op, e.Refusal)
	}
	return fmt.Sprintf("%s: empty content (finish_reason=%q)", e.Op, e.FinishReason)
}

// StatusCode returns the HTTP status behind an API error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// CompleteJSON asks for a JSON object and returns the raw payload. Callers
// decode it with DecodeLLMJSON.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, "llm complete", systemPrompt, userPrompt, true, 0)
}

// CompleteText returns free-form text for caption cleanup and titles.
func (c *Client) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, "llm text", systemPrompt, userPrompt, false, textTemperature)
}

// HealthCheck confirms the key and model answer a trivial JSON prompt.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.complete(ctx, "llm health", healthSystemPrompt, healthUserPrompt, true, 0)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

func (c *Client) complete(ctx context.Context, op, systemPrompt, userPrompt string, jsonMode bool, temperature float64) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case systemPrompt == "":
		return "", fmt.Errorf("%s: system prompt required", op)
	case userPrompt == "":
		return "", fmt.Errorf("%s: user prompt required", op)
	case c.cfg.APIKey == "":
		return "", fmt.Errorf("%s: api key required", op)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(temperature),
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	var empty *EmptyContentError
	for attempt := 1; attempt <= c.attempts; attempt++ {
		completion, err := c.api.Chat.Completions.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%s: %w", op, err)
		}
		content, finish, refusal := firstContent(completion)
		if content != "" {
			return content, nil
		}
		empty = &EmptyContentError{Op: op, FinishReason: finish, Refusal: refusal}
		if refusal != "" {
			break
		}
	}
	return "", empty
}

// firstContent returns the first non-empty message text, falling back to
// tool-call arguments some providers use for JSON mode.
func firstContent(completion *openai.ChatCompletion) (content, finishReason, refusal string) {
	if completion == nil {
		return "", "", ""
	}
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = string(choice.FinishReason)
		}
		if refusal == "" {
			refusal = strings.TrimSpace(choice.Message.Refusal)
		}
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text, finishReason, ""
		}
		for _, call := range choice.Message.ToolCalls {
			if args := strings.TrimSpace(call.Function.Arguments); args != "" {
				return args, finishReason, ""
			}
		}
	}
	return "", finishReason, refusal
}
