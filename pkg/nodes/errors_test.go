package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/autoflow-io/autoflow/pkg/expression"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want models.NodeErrorCode
	}{
		{"timeout type", &TimeoutError{Op: "GET", Err: errors.New("slow")}, models.NodeErrorTimeout},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), models.NodeErrorTimeout},
		{"cancelled", context.Canceled, models.NodeErrorCancelled},
		{"auth", &AuthError{Status: 401}, models.NodeErrorAuth},
		{"remote", &RemoteError{Status: 502, Body: "bad gateway"}, models.NodeErrorRemote},
		{"expression", &ExpressionError{Expression: "x >", Err: errors.New("syntax")}, models.NodeErrorExpression},
		{"raw expression", &expression.Error{Expression: "x >", Err: errors.New("syntax")}, models.NodeErrorExpression},
		{"ai", &AIProviderError{Err: errors.New("quota")}, models.NodeErrorAIProvider},
		{"config", Required("url"), models.NodeErrorInvalidConfig},
		{"node error passthrough", &models.NodeError{Code: models.NodeErrorUnknownNodeType, Message: "no handler"}, models.NodeErrorUnknownNodeType},
		{"other", errors.New("boom"), models.NodeErrorHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Classify(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Code)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Classify(nil))
}

func TestClassify_RemoteDetails(t *testing.T) {
	t.Parallel()

	got := Classify(&RemoteError{Status: 500, Body: strings.Repeat("x", 5000)})
	assert.Equal(t, 500, got.Details["status"])
	assert.Len(t, got.Details["body"], maxBodyDetail)
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	t.Parallel()

	// "é" is two bytes, so the cap falls inside the last one.
	body := strings.Repeat("a", maxBodyDetail-1) + strings.Repeat("é", 10)

	got := truncate(body)

	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxBodyDetail-1)
	assert.Equal(t, strings.Repeat("a", maxBodyDetail-1), got)

	assert.Equal(t, "short", truncate("short"))
}
