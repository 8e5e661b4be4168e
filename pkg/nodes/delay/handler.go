// Package delay provides the node that waits before completing.
package delay

import (
	"context"
	"time"

	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/nodes"
	"github.com/autoflow-io/autoflow/pkg/protocol"
)

var _ protocol.Handler = (*Handler)(nil)

// Handler blocks only its own goroutine, so sibling nodes in the same level keep running.
type Handler struct {
	after func(time.Duration) <-chan time.Time
}

func New() *Handler {
	return &Handler{after: time.After}
}

func (h *Handler) Type() string {
	return models.NodeTypeDelay
}

// Duration reads config.duration as a Go duration string ("1m30s") or a number of seconds.
func Duration(config map[string]any) (time.Duration, error) {
	if s, ok := nodes.String(config, "duration"); ok {
		if d, err := time.ParseDuration(s); err == nil {
			if d < 0 {
				return 0, &nodes.ConfigError{Field: "duration", Message: "must not be negative"}
			}

			return d, nil
		}
	}

	seconds, ok := nodes.Number(config, "duration")
	if !ok {
		return 0, &nodes.ConfigError{Field: "duration", Message: "must be a duration string or a number of seconds"}
	}

	if seconds < 0 {
		return 0, &nodes.ConfigError{Field: "duration", Message: "must not be negative"}
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

func (h *Handler) Validate(config map[string]any) error {
	d, err := Duration(config)
	if err != nil {
		return err
	}

	if timeout := models.ParseNodePolicy(config).Timeout; d >= timeout {
		return &nodes.ConfigError{Field: "duration", Message: "must be shorter than the node timeout " + timeout.String()}
	}

	return nil
}

func (h *Handler) Execute(ctx context.Context, req protocol.Request) (map[string]any, error) {
	d, err := Duration(req.Config)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	select {
	case <-h.after(d):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	output := req.MergedInput()
	output["delayed_ms"] = time.Since(start).Milliseconds()

	return output, nil
}
