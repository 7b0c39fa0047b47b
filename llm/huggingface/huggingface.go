// Package huggingface implements the llm.Client interface for the
// Hugging Face Inference API. Unlike the SDK-backed providers it
// speaks plain REST through the httpclient package.
package huggingface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/llmkit/httpclient"
	"github.com/kbukum/llmkit/llm"
	"github.com/kbukum/llmkit/util"
)

// ProviderName is the registered name for the Hugging Face provider.
const ProviderName = "huggingface"

const (
	defaultBaseURL = "https://api-inference.huggingface.co"
	defaultModel   = "mistralai/Mistral-7B-Instruct-v0.3"
	// Cold models can take a while to load when wait_for_model is set.
	defaultTimeout = 120 * time.Second
)

// Config holds configuration for the Hugging Face provider.
type Config struct {
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Model   string        `yaml:"model" mapstructure:"model"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// WaitForModel asks the inference API to block while a cold model
	// loads instead of returning 503.
	WaitForModel bool `yaml:"wait_for_model" mapstructure:"wait_for_model"`
}

// ApplyDefaults fills in default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// Client calls the Hugging Face text generation inference API.
type Client struct {
	http *httpclient.Client
	cfg  Config
}

// New creates a Hugging Face-backed client.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()

	httpCfg := httpclient.Config{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	}
	if cfg.APIKey != "" {
		httpCfg.Auth = httpclient.BearerAuth(cfg.APIKey)
	}

	hc, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, fmt.Errorf("huggingface: %w", err)
	}
	return &Client{http: hc, cfg: cfg}, nil
}

// Factory builds a huggingface client from vendor-neutral configuration.
func Factory(cfg llm.ProviderConfig) (llm.Client, error) {
	return New(Config{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		Timeout:      cfg.Timeout,
		WaitForModel: cfg.Extra["wait_for_model"] == "true",
	})
}

func init() {
	llm.Register(ProviderName, Factory)
}

// generateRequest is the inference API request payload.
type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
	Options    generateOptions    `json:"options"`
}

type generateParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	ReturnFullText bool    `json:"return_full_text"`
}

type generateOptions struct {
	WaitForModel bool `json:"wait_for_model,omitempty"`
}

// generation is a single inference API result.
type generation struct {
	GeneratedText string `json:"generated_text"`
}

// Name implements llm.Client.
func (c *Client) Name() string { return ProviderName }

// IsAvailable implements llm.Client. Self-hosted endpoints need no key.
func (c *Client) IsAvailable(ctx context.Context) bool {
	return c.cfg.APIKey != "" || c.cfg.BaseURL != defaultBaseURL
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := util.Coalesce(req.Model, c.cfg.Model)

	payload := generateRequest{
		Inputs: buildPrompt(req),
		Parameters: generateParameters{
			MaxNewTokens:   req.MaxTokens,
			Temperature:    req.Temperature,
			ReturnFullText: false,
		},
		Options: generateOptions{WaitForModel: c.cfg.WaitForModel},
	}

	results, err := httpclient.DoJSON[[]generation](ctx, c.http, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/models/" + model,
		Body:   payload,
	})
	if err != nil {
		return nil, convertError(err)
	}
	if len(results) == 0 {
		return nil, llm.NewProviderError(ProviderName, "huggingface: empty generation result", 0, nil)
	}

	return &llm.CompletionResponse{
		Content: results[0].GeneratedText,
		Model:   model,
	}, nil
}

// buildPrompt flattens the chat into a single text-generation prompt.
func buildPrompt(req llm.CompletionRequest) string {
	var b strings.Builder
	if req.SystemPrompt != "" {
		b.WriteString(req.SystemPrompt)
		b.WriteString("\n\n")
	}
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleAssistant:
			b.WriteString("Assistant: ")
		case llm.RoleSystem:
			// System content folded in as-is.
		default:
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

// convertError maps httpclient errors to provider-neutral llm errors.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *httpclient.Error
	if !errors.As(err, &httpErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return llm.NewTimeoutError(ProviderName, "huggingface request timed out", err)
		}
		return llm.NewNetworkError(ProviderName, "huggingface request failed", err)
	}

	msg := fmt.Sprintf("huggingface: %s", httpErr.Message)
	if httpErr.StatusCode == 0 {
		if httpclient.IsTimeout(err) {
			return llm.NewTimeoutError(ProviderName, msg, err)
		}
		return llm.NewNetworkError(ProviderName, msg, err)
	}
	switch httpErr.StatusCode {
	case http.StatusTooManyRequests:
		var hint *time.Duration
		if d := httpclient.RetryAfterHint(err); d > 0 {
			hint = util.Ptr(d)
		}
		return llm.NewRateLimitError(ProviderName, msg, hint, err)
	case http.StatusBadRequest:
		return llm.NewInvalidRequestError(ProviderName, msg, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(ProviderName, msg, err)
	case http.StatusNotFound:
		return llm.NewNotFoundError(ProviderName, msg, err)
	case http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError(ProviderName, msg, err)
	case http.StatusServiceUnavailable:
		// Model loading; the API reports an estimated wait.
		return llm.NewProviderError(ProviderName, msg, httpErr.StatusCode, err)
	default:
		if httpErr.StatusCode >= 500 {
			return llm.NewProviderError(ProviderName, msg, httpErr.StatusCode, err)
		}
		return &llm.Error{
			Type:       llm.ErrorTypeUnknown,
			Message:    msg,
			StatusCode: httpErr.StatusCode,
			Provider:   ProviderName,
			Retryable:  false,
			Err:        err,
		}
	}
}
