package expression

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	env := map[string]any{
		"output": map[string]any{
			"status": 200,
			"items":  []any{"a", "b"},
			"user":   map[string]any{"role": "admin"},
		},
		"input_data": map[string]any{"threshold": 10},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"empty is true", "", true},
		{"blank is true", "   ", true},
		{"equality", "output.status === 200", true},
		{"inequality", "output.status !== 200", false},
		{"nested", "output.user.role == 'admin'", true},
		{"array length", "output.items.length > 1", true},
		{"cross scope", "input_data.threshold < 20 && output.status < 300", true},
		{"truthy string", "'yes'", true},
		{"falsy zero", "0", false},
		{"undefined property", "output.missing", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Evaluate(context.Background(), tt.expr, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Malformed(t *testing.T) {
	t.Parallel()

	_, err := Evaluate(context.Background(), "output.status ===", map[string]any{"output": map[string]any{}})
	require.Error(t, err)

	var exprErr *Error
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "output.status ===", exprErr.Expression)
}

func TestEvaluate_RuntimeError(t *testing.T) {
	t.Parallel()

	_, err := Evaluate(context.Background(), "missing.field", nil)

	var exprErr *Error
	require.ErrorAs(t, err, &exprErr)
}

func TestEvaluate_InterruptedByContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Evaluate(ctx, "while (true) {}", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestValue(t *testing.T) {
	t.Parallel()

	got, err := Value(context.Background(), "a + b", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, got)
}

func TestCompile(t *testing.T) {
	t.Parallel()

	require.NoError(t, Compile("x > 1"))
	require.Error(t, Compile("x >"))
}

func TestCompile_ReusesPrograms(t *testing.T) {
	t.Parallel()

	const expr = "output.count > variables.limit"

	first, err := compile(expr)
	require.NoError(t, err)

	second, err := compile(expr)
	require.NoError(t, err)

	assert.Same(t, first, second)

	for _, tt := range []struct {
		count int
		want  bool
	}{{count: 5, want: true}, {count: 1, want: false}} {
		got, err := Evaluate(context.Background(), expr, map[string]any{
			"output":    map[string]any{"count": tt.count},
			"variables": map[string]any{"limit": 3},
		})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestCompile_DoesNotCacheSyntaxErrors(t *testing.T) {
	t.Parallel()

	const expr = "output.( cached"

	_, err := compile(expr)
	require.Error(t, err)

	_, found := programs.Get(expr)
	assert.False(t, found)
}
