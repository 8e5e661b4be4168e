// Package condition provides the node that evaluates a boolean expression over its inputs.
package condition

import (
	"context"
	"errors"

	"github.com/autoflow-io/autoflow/pkg/expression"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/nodes"
	"github.com/autoflow-io/autoflow/pkg/protocol"
)

var _ protocol.Handler = (*Handler)(nil)

// Handler outputs {matched: bool}. Downstream edges usually branch on output.matched.
type Handler struct{}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) Type() string {
	return models.NodeTypeCondition
}

func (h *Handler) Validate(config map[string]any) error {
	expr, err := nodes.RequiredString(config, "expression")
	if err != nil {
		return err
	}

	if err := expression.Compile(expr); err != nil {
		return &nodes.ExpressionError{Expression: expr, Err: errors.Unwrap(err)}
	}

	return nil
}

func (h *Handler) Execute(ctx context.Context, req protocol.Request) (map[string]any, error) {
	expr, err := nodes.RequiredString(req.Config, "expression")
	if err != nil {
		return nil, err
	}

	matched, err := expression.Evaluate(ctx, expr, req.TemplateData())
	if err != nil {
		var exprErr *expression.Error
		if errors.As(err, &exprErr) {
			return nil, &nodes.ExpressionError{Expression: expr, Err: exprErr.Err}
		}

		return nil, err
	}

	return map[string]any{"matched": matched}, nil
}
