package models

import (
	"strconv"
	"time"
)

// OnErrorPolicy decides what the dispatcher does after a node fails.
type OnErrorPolicy string

const (
	OnErrorStop     OnErrorPolicy = "stop"
	OnErrorContinue OnErrorPolicy = "continue"
	OnErrorRetry    OnErrorPolicy = "retry"
)

const (
	DefaultRetryCount     = 3
	DefaultNodeTimeout    = 300 * time.Second
	DefaultRetryBaseDelay = 500 * time.Millisecond
	DefaultRetryMaxDelay  = 30 * time.Second
)

// NodePolicy groups the per-node execution settings read from the node config.
type NodePolicy struct {
	OnError        OnErrorPolicy `json:"on_error"`
	RetryCount     int           `json:"retry_count"`
	Timeout        time.Duration `json:"timeout"`
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
	RetryMaxDelay  time.Duration `json:"retry_max_delay"`
}

// ParseNodePolicy reads on_error, retry_count, timeout (seconds), retry_delay_ms and
// retry_max_delay_ms from a node config, falling back to defaults for missing or invalid values.
func ParseNodePolicy(config map[string]any) NodePolicy {
	policy := NodePolicy{
		OnError:        OnErrorStop,
		RetryCount:     DefaultRetryCount,
		Timeout:        DefaultNodeTimeout,
		RetryBaseDelay: DefaultRetryBaseDelay,
		RetryMaxDelay:  DefaultRetryMaxDelay,
	}

	if config == nil {
		return policy
	}

	if raw, ok := config["on_error"].(string); ok {
		switch OnErrorPolicy(raw) {
		case OnErrorStop, OnErrorContinue, OnErrorRetry:
			policy.OnError = OnErrorPolicy(raw)
		}
	}

	if n, ok := numberValue(config["retry_count"]); ok && n >= 0 {
		policy.RetryCount = int(n)
	}

	if n, ok := numberValue(config["timeout"]); ok && n > 0 {
		policy.Timeout = time.Duration(n * float64(time.Second))
	}

	if n, ok := numberValue(config["retry_delay_ms"]); ok && n >= 0 {
		policy.RetryBaseDelay = time.Duration(n) * time.Millisecond
	}

	if n, ok := numberValue(config["retry_max_delay_ms"]); ok && n > 0 {
		policy.RetryMaxDelay = time.Duration(n) * time.Millisecond
	}

	if policy.RetryMaxDelay < policy.RetryBaseDelay {
		policy.RetryMaxDelay = policy.RetryBaseDelay
	}

	return policy
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
