// Package openai implements the llm.Client interface for OpenAI's
// chat completions API (and any OpenAI-compatible endpoint).
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/samber/lo"
	gopenai "github.com/sashabaranov/go-openai"

	"github.com/kbukum/llmkit/llm"
	"github.com/kbukum/llmkit/util"
	"github.com/kbukum/llmkit/validation"
)

// ProviderName is the registered name for the OpenAI provider.
const ProviderName = "openai"

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second

	// OpenAI's error payload does not expose Retry-After, so rate limit
	// errors carry a fixed hint.
	defaultRetryAfter = 60 * time.Second
)

// Config holds configuration for the OpenAI provider.
type Config struct {
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Model   string        `yaml:"model" mapstructure:"model"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Organization sets the OpenAI-Organization header.
	Organization string `yaml:"organization" mapstructure:"organization"`
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

// Client calls OpenAI's chat completions API.
type Client struct {
	client *gopenai.Client
	cfg    Config
}

// New creates an OpenAI-backed client.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sdkCfg := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		sdkCfg.OrgID = cfg.Organization
	}
	sdkCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		client: gopenai.NewClientWithConfig(sdkCfg),
		cfg:    cfg,
	}, nil
}

// Factory builds an openai client from vendor-neutral configuration.
func Factory(cfg llm.ProviderConfig) (llm.Client, error) {
	return New(Config{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		Timeout:      cfg.Timeout,
		Organization: cfg.Extra["organization"],
	})
}

func init() {
	llm.Register(ProviderName, Factory)
}

// Name implements llm.Client.
func (c *Client) Name() string { return ProviderName }

// IsAvailable implements llm.Client.
func (c *Client) IsAvailable(ctx context.Context) bool {
	return c.cfg.APIKey != ""
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := util.Coalesce(req.Model, c.cfg.Model)

	messages := lo.Map(req.Messages, func(m llm.Message, _ int) gopenai.ChatCompletionMessage {
		return gopenai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
	})
	if req.SystemPrompt != "" {
		system := gopenai.ChatCompletionMessage{
			Role:    gopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		}
		messages = append([]gopenai.ChatCompletionMessage{system}, messages...)
	}

	chatReq := gopenai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.NewProviderError(ProviderName, "openai: no choices in response", 0, nil)
	}

	return &llm.CompletionResponse{
		Content: chatResp.Choices[0].Message.Content,
		Model:   chatResp.Model,
		Usage: llm.Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}, nil
}

// convertError maps go-openai errors to provider-neutral llm errors.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *gopenai.APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return llm.NewTimeoutError(ProviderName, "openai request timed out", err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return llm.NewNetworkError(ProviderName, "openai request failed", err)
		}
		return llm.NewProviderError(ProviderName, "openai request failed", 0, err)
	}

	switch apiErr.HTTPStatusCode {
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError(ProviderName,
			fmt.Sprintf("openai rate limit: %s", apiErr.Message), util.Ptr(defaultRetryAfter), err)
	case http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError(ProviderName,
			fmt.Sprintf("openai request too large: %s", apiErr.Message), err)
	case http.StatusBadRequest:
		return llm.NewInvalidRequestError(ProviderName,
			fmt.Sprintf("openai invalid request: %s", apiErr.Message), err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(ProviderName,
			fmt.Sprintf("openai auth error: %s", apiErr.Message), err)
	case http.StatusNotFound:
		return llm.NewNotFoundError(ProviderName,
			fmt.Sprintf("openai model not found: %s", apiErr.Message), err)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return llm.NewProviderError(ProviderName,
			fmt.Sprintf("openai server error: %s", apiErr.Message), apiErr.HTTPStatusCode, err)
	default:
		return &llm.Error{
			Type:       llm.ErrorTypeProvider,
			Message:    fmt.Sprintf("openai api error: %s", apiErr.Message),
			StatusCode: apiErr.HTTPStatusCode,
			Provider:   ProviderName,
			Retryable:  false,
			Err:        err,
		}
	}
}
