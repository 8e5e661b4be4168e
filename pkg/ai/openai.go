// Package ai provides clients for the external AI completion capability.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/autoflow-io/autoflow/pkg/protocol"
	openai "github.com/sashabaranov/go-openai"
)

var (
	_ protocol.Completer = (*OpenAIClient)(nil)

	ErrEmptyCompletion = errors.New("provider returned no choices")
)

// ProviderError is a non-2xx answer from the provider.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ai provider returned status %d: %s", e.Status, e.Body)
}

// OpenAIClient talks to any OpenAI compatible /chat/completions endpoint.
type OpenAIClient struct {
	client *openai.Client
	apiKey string
	model  string
}

type OpenAIConfig struct {
	// BaseURL defaults to the public OpenAI API.
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	config := openai.DefaultConfig(cfg.APIKey)

	if baseURL := strings.TrimSuffix(cfg.BaseURL, "/"); baseURL != "" {
		config.BaseURL = baseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	config.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		apiKey: cfg.APIKey,
		model:  cfg.Model,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req protocol.CompletionRequest) (*protocol.Completion, error) {
	model := req.ModelHint
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}

	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}

	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, providerError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	return &protocol.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: protocol.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// providerError turns HTTP failures reported by the SDK into a ProviderError.
func providerError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &ProviderError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &ProviderError{Status: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}

	return fmt.Errorf("completion request failed: %w", err)
}

// HealthCheck reports whether the client has credentials configured.
func (c *OpenAIClient) HealthCheck() (string, bool) {
	if c.apiKey == "" {
		return "AI provider has no API key", false
	}

	return "AI provider configured", true
}
