// Package vllm talks to an OpenAI-compatible vLLM server: chat completions for
// affiliation parsing and runtime LoRA adapter registration.
package vllm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/cometadata/preprint-affiliations/internal/core/domain"
	"github.com/cometadata/preprint-affiliations/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL   = "http://localhost:8000"
	DefaultModel     = "affiliation-lora"
	DefaultMaxTokens = 512
	DefaultTimeout   = 300 * time.Second
)

type Options struct {
	Model              string
	APIKey             string
	MaxTokens          int
	Timeout            time.Duration
	HTTPClient         *http.Client
	Logger             *slog.Logger
	ResilienceExecutor *resilience.Executor
}

type Client struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	chat       openai.Client
	logger     *slog.Logger
	executor   *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		// vLLM accepts any bearer token unless started with --api-key.
		apiKey = "EMPTY"
	}

	return &Client{
		baseURL:    base,
		model:      opts.Model,
		maxTokens:  opts.MaxTokens,
		httpClient: opts.HTTPClient,
		chat: openai.NewClient(
			option.WithBaseURL(base+"/v1/"),
			option.WithAPIKey(apiKey),
			option.WithHTTPClient(opts.HTTPClient),
			option.WithMaxRetries(0),
		),
		logger:   opts.Logger,
		executor: opts.ResilienceExecutor,
	}
}

func (c *Client) Model() string {
	return c.model
}

// Complete sends the conversation with deterministic sampling and returns the
// content of the first choice.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "vllm complete", fmt.Errorf("no messages"))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    toChatParams(messages),
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(int64(c.maxTokens)),
	}

	var content string
	call := func(callCtx context.Context) error {
		completion, err := c.chat.Chat.Completions.New(callCtx, params)
		if err != nil {
			c.logStatusBody("chat_completion", err)
			return err
		}
		if len(completion.Choices) == 0 {
			return fmt.Errorf("vllm chat completion returned no choices")
		}
		content = completion.Choices[0].Message.Content
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "vllm.chat_completion", call, classifyVLLMError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("vllm.chat_completion", err)
	}
	return content, nil
}

// LoadAdapter registers a LoRA adapter that already sits on the server's
// filesystem. The server must run with runtime LoRA updating enabled.
func (c *Client) LoadAdapter(ctx context.Context, name, path string) error {
	name = strings.TrimSpace(name)
	path = strings.TrimSpace(path)
	if name == "" || path == "" {
		return domain.WrapError(domain.ErrInvalidInput, "vllm load adapter", fmt.Errorf("adapter name and path are required"))
	}

	payload := map[string]string{
		"lora_name": name,
		"lora_path": path,
	}
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1/load_lora_adapter", payload, nil, "load_lora_adapter")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "vllm.load_lora_adapter", call, classifyVLLMError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded("vllm.load_lora_adapter", err)
	}
	return nil
}

func (c *Client) logStatusBody(operation string, err error) {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 300 {
		c.logger.Error("vllm_error_response",
			"operation", operation,
			"status_code", apiErr.StatusCode,
			"body", apiErr.RawJSON(),
		)
	}
}

func toChatParams(messages []domain.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
