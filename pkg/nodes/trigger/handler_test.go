package trigger

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

	h := New()
	input := map[string]any{"order_id": "o-1", "amount": 42.0}

	out, err := h.Execute(context.Background(), protocol.Request{InputData: input})
	require.NoError(t, err)
	assert.Equal(t, "o-1", out["order_id"])
	assert.Equal(t, input, out["data"])

	out["order_id"] = "changed"
	assert.Equal(t, "o-1", input["order_id"])
}

func TestHandler_ExecuteWithoutInput(t *testing.T) {
	t.Parallel()

	out, err := New().Execute(context.Background(), protocol.Request{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, out["data"])
}

func TestHandler_Validate(t *testing.T) {
	t.Parallel()

	h := New()

	require.NoError(t, h.Validate(nil))
	require.NoError(t, h.Validate(map[string]any{"schedule": "*/5 * * * *"}))
	require.NoError(t, h.Validate(map[string]any{"schedule": "0 9 * * MON-FRI", "timezone": "Europe/London"}))

	err := h.Validate(map[string]any{"schedule": "every now and then"})

	var configErr *nodes.ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "schedule", configErr.Field)

	require.Error(t, h.Validate(map[string]any{"schedule": "* * * * *", "timezone": "Mars/Olympus"}))
}
