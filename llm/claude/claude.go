// Package claude implements the llm.Client interface on top of the
// official Anthropic Go SDK.
package claude

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kbukum/llmkit/httpclient"
	"github.com/kbukum/llmkit/llm"
	"github.com/kbukum/llmkit/util"
	"github.com/kbukum/llmkit/validation"
)

// ProviderName is the registered name for the Anthropic provider.
const ProviderName = "claude"

const (
	defaultModel     = "claude-sonnet-4-0"
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second

	// The SDK retries internally by default; the resilience layer owns
	// retry policy, so internal retries are disabled.
	sdkMaxRetries = 0
)

// Config holds configuration for the Anthropic provider.
type Config struct {
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Model   string        `yaml:"model" mapstructure:"model"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ApplyDefaults fills in default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.New().Required("api_key", c.APIKey).Validate(); err != nil {
		return err
	}
	return nil
}

// Client calls Anthropic's Messages API.
type Client struct {
	client anthropic.Client
	cfg    Config
}

// New creates an Anthropic-backed client.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(sdkMaxRetries),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

// Factory builds a claude client from vendor-neutral configuration.
func Factory(cfg llm.ProviderConfig) (llm.Client, error) {
	return New(Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
}

func init() {
	llm.Register(ProviderName, Factory)
}

// Name implements llm.Client.
func (c *Client) Name() string { return ProviderName }

// IsAvailable implements llm.Client. The Messages API has no cheap
// health endpoint, so availability means credentials are configured.
func (c *Client) IsAvailable(ctx context.Context) bool {
	return c.cfg.APIKey != ""
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := util.Coalesce(req.Model, c.cfg.Model)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  toMessageParams(req.Messages),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertError(err)
	}

	var content string
	for _, blockUnion := range message.Content {
		if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
			content += block.Text
		}
	}

	return &llm.CompletionResponse{
		Content: content,
		Model:   string(message.Model),
		Usage: llm.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

func toMessageParams(messages []llm.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			// System prompts travel in MessageNewParams.System; anything
			// else is sent as a user turn.
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}

// convertError maps Anthropic SDK errors to provider-neutral llm errors.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return llm.NewTimeoutError(ProviderName, "anthropic request timed out", err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return llm.NewNetworkError(ProviderName, "anthropic request failed", err)
		}
		return llm.NewProviderError(ProviderName, "anthropic request failed", 0, err)
	}

	msg := fmt.Sprintf("anthropic: %s", apiErr.Error())
	switch apiErr.StatusCode {
	case 429:
		var hint *time.Duration
		if apiErr.Response != nil {
			if d := httpclient.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After")); d > 0 {
				hint = util.Ptr(d)
			}
		}
		return llm.NewRateLimitError(ProviderName, msg, hint, err)
	case 400:
		return llm.NewInvalidRequestError(ProviderName, msg, err)
	case 401, 403:
		return llm.NewAuthError(ProviderName, msg, err)
	case 404:
		return llm.NewNotFoundError(ProviderName, msg, err)
	case 413:
		return llm.NewRequestTooLargeError(ProviderName, msg, err)
	case 529:
		// Anthropic signals overload with 529; treat like a retryable
		// server error.
		return llm.NewProviderError(ProviderName, msg, apiErr.StatusCode, err)
	default:
		if apiErr.StatusCode >= 500 {
			return llm.NewProviderError(ProviderName, msg, apiErr.StatusCode, err)
		}
		return &llm.Error{
			Type:       llm.ErrorTypeUnknown,
			Message:    msg,
			StatusCode: apiErr.StatusCode,
			Provider:   ProviderName,
			Retryable:  false,
			Err:        err,
		}
	}
}
