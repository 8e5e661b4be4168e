package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/autoflow-io/autoflow/pkg/protocol"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Complete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))

		var req openai.ChatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hinted", req.Model)
		assert.Len(t, req.Messages, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
		assert.Equal(t, "Say hi", req.Messages[1].Content)
		assert.Equal(t, 64, req.MaxTokens)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "hinted-001",
			"choices": [{"message": {"role": "assistant", "content": "hi"}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 1}
		}`))
	}))
	t.Cleanup(server.Close)

	client := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL + "/v1/", APIKey: "key-1", Model: "default"})

	got, err := client.Complete(context.Background(), protocol.CompletionRequest{
		Prompt:    "Say hi",
		System:    "Be brief",
		ModelHint: "hinted",
		MaxTokens: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, "hinted-001", got.Model)
	assert.Equal(t, 3, got.Usage.PromptTokens)
}

func TestOpenAIClient_ProviderError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit_exceeded"}}`))
	}))
	t.Cleanup(server.Close)

	_, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL}).Complete(context.Background(), protocol.CompletionRequest{Prompt: "x"})

	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusTooManyRequests, providerErr.Status)
	assert.Equal(t, "slow down", providerErr.Body)
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	t.Cleanup(server.Close)

	_, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL}).Complete(context.Background(), protocol.CompletionRequest{Prompt: "x"})
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	got, err := Static{}.Complete(context.Background(), protocol.CompletionRequest{Prompt: "echo me"})
	require.NoError(t, err)
	assert.Equal(t, "echo me", got.Text)
	assert.Equal(t, "static", got.Model)

	got, err = Static{Text: "fixed", Model: "m"}.Complete(context.Background(), protocol.CompletionRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", got.Text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Static{}.Complete(ctx, protocol.CompletionRequest{})
	require.ErrorIs(t, err, context.Canceled)
}
