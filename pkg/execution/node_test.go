package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/nodes"
	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	fn func(ctx context.Context) (map[string]any, error)
}

func (h stubHandler) Type() string { return "stub" }
func (h stubHandler) Validate(map[string]any) error { return nil }
func (h stubHandler) Execute(ctx context.Context, _ protocol.Request) (map[string]any, error) {
	return h.fn(ctx)
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	t.Run("exponential and capped", func(t *testing.T) {
		t.Parallel()

		policy := retryPolicy(models.NodePolicy{
			OnError:        models.OnErrorRetry,
			RetryCount:     4,
			RetryBaseDelay: 100 * time.Millisecond,
			RetryMaxDelay:  300 * time.Millisecond,
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			300 * time.Millisecond,
			300 * time.Millisecond,
			backoff.Stop,
		}

		for i, want := range expected {
			assert.Equal(t, want, policy.NextBackOff(), "interval %d", i)
		}
	})

	t.Run("stop and continue run once", func(t *testing.T) {
		t.Parallel()

		for _, onError := range []models.OnErrorPolicy{models.OnErrorStop, models.OnErrorContinue} {
			policy := retryPolicy(models.NodePolicy{OnError: onError, RetryCount: 3, RetryBaseDelay: time.Millisecond})
			assert.Equal(t, backoff.Stop, policy.NextBackOff())
		}
	})

	t.Run("retry without budget runs once", func(t *testing.T) {
		t.Parallel()

		policy := retryPolicy(models.NodePolicy{OnError: models.OnErrorRetry, RetryBaseDelay: time.Millisecond})
		assert.Equal(t, backoff.Stop, policy.NextBackOff())
	})
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, retryable(errors.New("flaky")))
	assert.True(t, retryable(&nodes.RemoteError{Status: 503}))
	assert.True(t, retryable(&nodes.TimeoutError{Op: "n", Err: context.DeadlineExceeded}))
	assert.False(t, retryable(nodes.Required("url")))
	assert.False(t, retryable(&nodes.ExpressionError{Expression: "x(", Err: errors.New("syntax")}))
}

func TestInvoke(t *testing.T) {
	t.Parallel()

	req := protocol.Request{NodeID: "n1"}

	t.Run("returns handler output", func(t *testing.T) {
		t.Parallel()

		output, err := invoke(context.Background(), stubHandler{fn: func(context.Context) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		}}, time.Second, req)

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"ok": true}, output)
	})

	t.Run("times out handlers that ignore their context", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		defer close(release)

		_, err := invoke(context.Background(), stubHandler{fn: func(context.Context) (map[string]any, error) {
			<-release

			return nil, nil
		}}, 20*time.Millisecond, req)

		var timeoutErr *nodes.TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, "n1", timeoutErr.Op)
	})

	t.Run("wraps context errors after the deadline", func(t *testing.T) {
		t.Parallel()

		_, err := invoke(context.Background(), stubHandler{fn: func(ctx context.Context) (map[string]any, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		}}, 20*time.Millisecond, req)

		var timeoutErr *nodes.TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("recovers panics", func(t *testing.T) {
		t.Parallel()

		_, err := invoke(context.Background(), stubHandler{fn: func(context.Context) (map[string]any, error) {
			panic("kaboom")
		}}, time.Second, req)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "handler panicked: kaboom")
	})

	t.Run("parent cancellation is not a timeout", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := invoke(ctx, stubHandler{fn: func(ctx context.Context) (map[string]any, error) {
			<-ctx.Done()

			return nil, ctx.Err()
		}}, time.Second, req)

		require.ErrorIs(t, err, context.Canceled)

		var timeoutErr *nodes.TimeoutError
		assert.False(t, errors.As(err, &timeoutErr))
	})
}
