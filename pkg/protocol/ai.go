package protocol

import "context"

// CompletionRequest is a single prompt sent to the AI capability.
type CompletionRequest struct {
	Prompt      string
	System      string
	ModelHint   string
	MaxTokens   int
	Temperature *float64
}

// Completion is the generated answer.
type Completion struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Completer is the external AI completion capability consumed by ai_call nodes.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}
