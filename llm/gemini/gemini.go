// Package gemini implements the llm.Client interface for Google's
// Gemini API via the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/kbukum/llmkit/llm"
	"github.com/kbukum/llmkit/util"
	"github.com/kbukum/llmkit/validation"
)

// ProviderName is the registered name for the Gemini provider.
const ProviderName = "gemini"

const (
	defaultModel   = "gemini-2.0-flash"
	defaultTimeout = 60 * time.Second

	// Gemini's error payload carries no retry-after hint.
	defaultRetryAfter = 60 * time.Second
)

// Config holds configuration for the Gemini provider.
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

// Client calls the Gemini generateContent API.
type Client struct {
	client *genai.Client
	cfg    Config
}

// New creates a Gemini-backed client. The context is only used for
// client construction, not for subsequent requests.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Client{client: client, cfg: cfg}, nil
}

// Factory builds a gemini client from vendor-neutral configuration.
func Factory(cfg llm.ProviderConfig) (llm.Client, error) {
	return New(context.Background(), Config{
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

// IsAvailable implements llm.Client.
func (c *Client) IsAvailable(ctx context.Context) bool {
	return c.cfg.APIKey != ""
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := util.Coalesce(req.Model, c.cfg.Model)

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	genCfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return nil, convertError(err)
	}

	out := &llm.CompletionResponse{
		Content: resp.Text(),
		Model:   model,
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// convertError maps genai SDK errors to provider-neutral llm errors.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return llm.NewTimeoutError(ProviderName, "gemini request timed out", err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return llm.NewNetworkError(ProviderName, "gemini request failed", err)
		}
		return llm.NewProviderError(ProviderName, "gemini request failed", 0, err)
	}

	msg := fmt.Sprintf("gemini: %s", apiErr.Message)
	switch apiErr.Code {
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError(ProviderName, msg, util.Ptr(defaultRetryAfter), err)
	case http.StatusBadRequest:
		return llm.NewInvalidRequestError(ProviderName, msg, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(ProviderName, msg, err)
	case http.StatusNotFound:
		return llm.NewNotFoundError(ProviderName, msg, err)
	default:
		if apiErr.Code >= 500 {
			return llm.NewProviderError(ProviderName, msg, apiErr.Code, err)
		}
		return &llm.Error{
			Type:       llm.ErrorTypeUnknown,
			Message:    msg,
			StatusCode: apiErr.Code,
			Provider:   ProviderName,
			Retryable:  false,
			Err:        err,
		}
	}
}
