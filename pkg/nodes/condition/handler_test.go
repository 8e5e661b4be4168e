package condition

import (
	"context"
	"testing"

	"github.com/autoflow-io/autoflow/pkg/nodes"
	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute(t *testing.T) {
	t.Parallel()

	req := protocol.Request{
		Inputs: map[string]map[string]any{
			"fetch": {"status_code": 200, "body": map[string]any{"role": "admin"}},
		},
		InputData: map[string]any{"amount": 150},
		Variables: map[string]any{"mode": "live"},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"input.status_code === 200", true},
		{"inputs.fetch.body.role == 'admin'", true},
		{"input_data.amount > 100 && variables.mode !== 'test'", true},
		{"input_data.amount < 100", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()

			r := req
			r.Config = map[string]any{"expression": tt.expr}

			out, err := New().Execute(context.Background(), r)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"matched": tt.want}, out)
		})
	}
}

func TestHandler_ExecuteMalformed(t *testing.T) {
	t.Parallel()

	_, err := New().Execute(context.Background(), protocol.Request{
		Config: map[string]any{"expression": "input.status_code ==="},
	})

	var exprErr *nodes.ExpressionError
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "input.status_code ===", exprErr.Expression)
}

func TestHandler_ExecuteThrows(t *testing.T) {
	t.Parallel()

	_, err := New().Execute(context.Background(), protocol.Request{
		Config: map[string]any{"expression": "input.user.name.length > 0"},
	})

	var exprErr *nodes.ExpressionError
	require.ErrorAs(t, err, &exprErr)
}

func TestHandler_Validate(t *testing.T) {
	t.Parallel()

	h := New()

	require.NoError(t, h.Validate(map[string]any{"expression": "input.ok"}))

	var configErr *nodes.ConfigError
	require.ErrorAs(t, h.Validate(map[string]any{}), &configErr)

	var exprErr *nodes.ExpressionError
	require.ErrorAs(t, h.Validate(map[string]any{"expression": "a &&"}), &exprErr)
}
