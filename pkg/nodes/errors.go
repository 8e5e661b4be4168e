// Package nodes holds the failure types shared by the built-in node handlers.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/autoflow-io/autoflow/pkg/expression"
	"github.com/autoflow-io/autoflow/pkg/models"
)

// maxBodyDetail caps how much of a remote response body is copied into node logs.
const maxBodyDetail = 2048

// TimeoutError means the node did not finish before its deadline.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// AuthError is a 401 or 403 from a remote integration.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("remote rejected credentials with status %d", e.Status)
}

// RemoteError is any other failed remote call. Status is zero for transport failures.
type RemoteError struct {
	Status int
	Body   string
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote call failed: %v", e.Err)
	}

	return fmt.Sprintf("remote returned status %d", e.Status)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ExpressionError wraps a malformed or throwing expression.
type ExpressionError struct {
	Expression string
	Err        error
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("invalid expression %q: %v", e.Expression, e.Err)
}

func (e *ExpressionError) Unwrap() error { return e.Err }

// AIProviderError is a failure reported by the AI completion capability.
type AIProviderError struct {
	Err error
}

func (e *AIProviderError) Error() string {
	return fmt.Sprintf("ai provider: %v", e.Err)
}

func (e *AIProviderError) Unwrap() error { return e.Err }

// ConfigError is a node configuration that cannot be used.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config field '%s': %s", e.Field, e.Message)
}

// Required returns a ConfigError for a missing field.
func Required(field string) *ConfigError {
	return &ConfigError{Field: field, Message: "is required"}
}

// Classify converts a handler error into the record stored in node logs.
func Classify(err error) *models.NodeError {
	if err == nil {
		return nil
	}

	var (
		nodeErr    *models.NodeError
		timeoutErr *TimeoutError
		authErr    *AuthError
		remoteErr  *RemoteError
		exprErr    *ExpressionError
		rawExprErr *expression.Error
		aiErr      *AIProviderError
		configErr  *ConfigError
	)

	switch {
	case errors.As(err, &nodeErr):
		return nodeErr
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return &models.NodeError{Code: models.NodeErrorTimeout, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return &models.NodeError{Code: models.NodeErrorCancelled, Message: err.Error()}
	case errors.As(err, &authErr):
		return &models.NodeError{
			Code:    models.NodeErrorAuth,
			Message: err.Error(),
			Details: map[string]any{"status": authErr.Status, "body": truncate(authErr.Body)},
		}
	case errors.As(err, &remoteErr):
		details := map[string]any{"status": remoteErr.Status}
		if remoteErr.Body != "" {
			details["body"] = truncate(remoteErr.Body)
		}

		return &models.NodeError{Code: models.NodeErrorRemote, Message: err.Error(), Details: details}
	case errors.As(err, &exprErr), errors.As(err, &rawExprErr):
		return &models.NodeError{Code: models.NodeErrorExpression, Message: err.Error()}
	case errors.As(err, &aiErr):
		return &models.NodeError{Code: models.NodeErrorAIProvider, Message: err.Error()}
	case errors.As(err, &configErr):
		return &models.NodeError{
			Code:    models.NodeErrorInvalidConfig,
			Message: err.Error(),
			Details: map[string]any{"field": configErr.Field},
		}
	default:
		return &models.NodeError{Code: models.NodeErrorHandler, Message: err.Error()}
	}
}

// truncate cuts s to at most maxBodyDetail bytes without splitting a UTF-8 sequence.
func truncate(s string) string {
	if len(s) <= maxBodyDetail {
		return s
	}

	cut := maxBodyDetail
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
