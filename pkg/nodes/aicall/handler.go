// Package aicall provides the ai_call node, which sends a templated prompt to the AI capability.
package aicall

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/nodes"
	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/autoflow-io/autoflow/pkg/template"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

var (
	_ protocol.Handler = (*Handler)(nil)

	errNoCompleter = errors.New("no AI provider configured")
)

type Handler struct {
	completer protocol.Completer
}

// New returns an ai_call handler backed by completer. A nil completer makes every call fail
// with an AIProviderError.
func New(completer protocol.Completer) *Handler {
	return &Handler{completer: completer}
}

func (h *Handler) Type() string {
	return models.NodeTypeAICall
}

func (h *Handler) Validate(config map[string]any) error {
	if _, err := nodes.RequiredString(config, "prompt"); err != nil {
		return err
	}

	if output, ok := nodes.String(config, "output"); ok && output != OutputText && output != OutputJSON {
		return &nodes.ConfigError{Field: "output", Message: "must be text or json"}
	}

	return nil
}

func (h *Handler) Execute(ctx context.Context, req protocol.Request) (map[string]any, error) {
	if err := h.Validate(req.Config); err != nil {
		return nil, err
	}

	data := req.TemplateData()

	rawPrompt, _ := nodes.String(req.Config, "prompt")

	prompt, err := template.Render(rawPrompt, data)
	if err != nil {
		return nil, &nodes.ConfigError{Field: "prompt", Message: err.Error()}
	}

	completion := protocol.CompletionRequest{Prompt: prompt}

	if system, ok := nodes.String(req.Config, "system"); ok {
		completion.System, err = template.Render(system, data)
		if err != nil {
			return nil, &nodes.ConfigError{Field: "system", Message: err.Error()}
		}
	}

	completion.ModelHint, _ = nodes.String(req.Config, "model")

	if maxTokens, ok := nodes.Number(req.Config, "max_tokens"); ok {
		completion.MaxTokens = int(maxTokens)
	}

	if temperature, ok := nodes.Number(req.Config, "temperature"); ok {
		completion.Temperature = &temperature
	}

	if h.completer == nil {
		return nil, &nodes.AIProviderError{Err: errNoCompleter}
	}

	result, err := h.completer.Complete(ctx, completion)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, &nodes.AIProviderError{Err: err}
	}

	output := map[string]any{
		"text":  result.Text,
		"model": result.Model,
		"usage": map[string]any{
			"prompt_tokens":     result.Usage.PromptTokens,
			"completion_tokens": result.Usage.CompletionTokens,
		},
	}

	if format, _ := nodes.String(req.Config, "output"); format == OutputJSON {
		var parsed any
		if err := json.Unmarshal([]byte(stripCodeFence(result.Text)), &parsed); err != nil {
			return nil, &nodes.AIProviderError{Err: errors.New("completion is not valid JSON: " + err.Error())}
		}

		output["data"] = parsed
	}

	return output, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence that models often add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}

	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
