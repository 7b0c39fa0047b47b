// Package ollama implements the llm.Client interface for a local or
// remote Ollama server using the official API client.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/kbukum/llmkit/llm"
	"github.com/kbukum/llmkit/util"
)

// ProviderName is the registered name for the Ollama provider.
const ProviderName = "ollama"

const (
	defaultModel = "llama3"
	// Local models can be slow to load on first use.
	defaultTimeout = 120 * time.Second
)

// Config holds configuration for the Ollama provider.
type Config struct {
	// BaseURL is the Ollama server address. Empty falls back to the
	// OLLAMA_HOST environment variable or http://localhost:11434.
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

// Client calls an Ollama server's chat API.
type Client struct {
	client *api.Client
	cfg    Config
}

// New creates an Ollama-backed client.
func New(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()

	var client *api.Client
	if cfg.BaseURL != "" {
		baseURL, err := parseHost(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama: invalid base url: %w", err)
		}
		client = api.NewClient(baseURL, &http.Client{Timeout: cfg.Timeout})
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("ollama: create client: %w", err)
		}
	}

	return &Client{client: client, cfg: cfg}, nil
}

// parseHost parses a host string into a URL, defaulting the scheme to http.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Factory builds an ollama client from vendor-neutral configuration.
func Factory(cfg llm.ProviderConfig) (llm.Client, error) {
	return New(Config{
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

// IsAvailable implements llm.Client by pinging the server.
func (c *Client) IsAvailable(ctx context.Context) bool {
	return c.client.Heartbeat(ctx) == nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := util.Coalesce(req.Model, c.cfg.Model)

	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: string(m.Role), Content: m.Content})
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   new(bool),
		Options:  make(map[string]any),
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Options["temperature"] = req.Temperature
	}

	var chatResp api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, convertError(err)
	}

	return &llm.CompletionResponse{
		Content: chatResp.Message.Content,
		Model:   model,
		Usage: llm.Usage{
			PromptTokens:     chatResp.PromptEvalCount,
			CompletionTokens: chatResp.EvalCount,
			TotalTokens:      chatResp.PromptEvalCount + chatResp.EvalCount,
		},
	}, nil
}

// convertError maps Ollama API errors to provider-neutral llm errors.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := fmt.Sprintf("ollama: %s", statusErr.Error())
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests:
			return llm.NewRateLimitError(ProviderName, msg, nil, err)
		case http.StatusBadRequest:
			return llm.NewInvalidRequestError(ProviderName, msg, err)
		case http.StatusNotFound:
			// Usually a model that has not been pulled.
			return llm.NewNotFoundError(ProviderName, msg, err)
		default:
			if statusErr.StatusCode >= 500 {
				return llm.NewProviderError(ProviderName, msg, statusErr.StatusCode, err)
			}
			return &llm.Error{
				Type:       llm.ErrorTypeUnknown,
				Message:    msg,
				StatusCode: statusErr.StatusCode,
				Provider:   ProviderName,
				Retryable:  false,
				Err:        err,
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewTimeoutError(ProviderName, "ollama request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return llm.NewNetworkError(ProviderName, "ollama server unreachable", err)
	}
	return llm.NewProviderError(ProviderName, "ollama request failed", 0, err)
}
