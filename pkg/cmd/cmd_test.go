package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/autoflow-io/autoflow/pkg/ai"
	"github.com/autoflow-io/autoflow/pkg/models"
	"github.com/autoflow-io/autoflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistenceProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url      string
		provider string
		target   string
	}{
		{url: "./data", provider: "file", target: "./data"},
		{url: "file:///var/lib/autoflow", provider: "file", target: "/var/lib/autoflow"},
		{url: "postgres://u:p@db:5432/autoflow", provider: "postgresql", target: "postgres://u:p@db:5432/autoflow"},
		{url: "postgresql://db/autoflow", provider: "postgresql", target: "postgresql://db/autoflow"},
		{url: "redis://cache:6379/0", provider: "redis", target: "redis://cache:6379/0"},
		{url: "rediss://cache:6380", provider: "redis", target: "rediss://cache:6380"},
		{url: "mongodb://db", provider: "file", target: "mongodb://db"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()

			provider, target := PersistenceProvider(tt.url)
			assert.Equal(t, tt.provider, provider)
			assert.Equal(t, tt.target, target)
		})
	}
}

func TestNewPersistence_File(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p := NewPersistence(context.Background(), slog.New(slog.DiscardHandler), "file://"+root)

	assert.IsType(t, &file.Persistence{}, p)
	require.NoError(t, p.HealthCheck(context.Background()))
}

func TestNewPersistence_BadRedisURLPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		NewPersistence(context.Background(), slog.New(slog.DiscardHandler), "redis://:bad url")
	})
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	bus := NewEventBus("gochannel", "", "autoflow-test", slog.New(slog.DiscardHandler))
	require.NotNil(t, bus)
	require.NoError(t, bus.Close())

	assert.Panics(t, func() {
		NewEventBus("carrier-pigeon", "", "autoflow-test", slog.New(slog.DiscardHandler))
	})

	assert.Panics(t, func() {
		NewEventBus("kafka", "", "autoflow-test", slog.New(slog.DiscardHandler))
	})
}

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(slog.New(slog.DiscardHandler), filepath.Join(t.TempDir(), "plugins"), AIConfig{})

	assert.Equal(t, []string{
		models.NodeTypeAction,
		models.NodeTypeAICall,
		models.NodeTypeCondition,
		models.NodeTypeDelay,
		models.NodeTypeTrigger,
		models.NodeTypeWebhookCall,
	}, reg.Types())
}

func TestNewCompleter(t *testing.T) {
	t.Parallel()

	assert.IsType(t, ai.Static{}, NewCompleter(AIConfig{Provider: "echo"}))
	assert.IsType(t, &ai.OpenAIClient{}, NewCompleter(AIConfig{Provider: "openai", BaseURL: "http://localhost", Model: "m"}))
	assert.Panics(t, func() { NewCompleter(AIConfig{Provider: "nope"}) })
}
