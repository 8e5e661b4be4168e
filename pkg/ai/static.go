package ai

import (
	"context"

	"github.com/autoflow-io/autoflow/pkg/protocol"
)

var _ protocol.Completer = Static{}

// Static answers every prompt with a fixed text, or echoes the prompt when Text is empty.
// It backs local development and tests.
type Static struct {
	Text  string
	Model string
}

func (s Static) Complete(ctx context.Context, req protocol.CompletionRequest) (*protocol.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := s.Text
	if text == "" {
		text = req.Prompt
	}

	model := s.Model
	if model == "" {
		model = "static"
	}

	return &protocol.Completion{Text: text, Model: model}, nil
}
