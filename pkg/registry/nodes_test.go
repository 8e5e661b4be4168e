package registry

import (
	"log/slog"
	"testing"

	"github.com/autoflow-io/autoflow/pkg/ai"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDefaultNodes(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	r.RegisterDefaultNodes(Dependencies{Completer: ai.Static{}})

	assert.Equal(t, []string{
		models.NodeTypeAction,
		models.NodeTypeAICall,
		models.NodeTypeCondition,
		models.NodeTypeDelay,
		models.NodeTypeTrigger,
		models.NodeTypeWebhookCall,
	}, r.Types())

	for _, entry := range r.Catalog() {
		assert.NotEmpty(t, entry.Description, entry.Type)
		assert.NotNil(t, entry.Schema, entry.Type)
	}
}

func TestRegisterDefaultNodes_ValidateConfig(t *testing.T) {
	t.Parallel()

	r := NewRegistry(slog.Default())
	r.RegisterDefaultNodes(Dependencies{})

	tests := []struct {
		nodeType string
		config   map[string]any
		valid    bool
	}{
		{models.NodeTypeTrigger, map[string]any{}, true},
		{models.NodeTypeTrigger, map[string]any{"schedule": "not cron"}, false},
		{models.NodeTypeAction, map[string]any{"url": "https://example.com", "method": "POST"}, true},
		{models.NodeTypeAction, map[string]any{"method": "POST"}, false},
		{models.NodeTypeAction, map[string]any{"url": "https://example.com", "method": "BREW"}, false},
		{models.NodeTypeWebhookCall, map[string]any{"url": "https://example.com"}, true},
		{models.NodeTypeCondition, map[string]any{"expression": "input.ok === true"}, true},
		{models.NodeTypeCondition, map[string]any{"expression": 42}, false},
		{models.NodeTypeDelay, map[string]any{"duration": "2s"}, true},
		{models.NodeTypeDelay, map[string]any{"duration": true}, false},
		{models.NodeTypeAICall, map[string]any{"prompt": "hi", "temperature": 0.5}, true},
		{models.NodeTypeAICall, map[string]any{"prompt": "hi", "temperature": 5}, false},
	}

	for _, tt := range tests {
		err := r.ValidateConfig(tt.nodeType, tt.config)
		if tt.valid {
			require.NoError(t, err, "%s %v", tt.nodeType, tt.config)
		} else {
			require.Error(t, err, "%s %v", tt.nodeType, tt.config)
		}
	}
}
