// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/autoflow-io/autoflow/pkg/ai"
	"github.com/autoflow-io/autoflow/pkg/protocol"
	"github.com/autoflow-io/autoflow/pkg/registry"
)

const httpClientTimeout = 60 * time.Second

// AIConfig selects the AI capability behind ai_call nodes.
type AIConfig struct {
	// Provider is "openai" for an OpenAI-compatible endpoint or "echo" for the static completer.
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

//nolint:ireturn // completers are chosen at startup
func NewCompleter(cfg AIConfig) protocol.Completer {
	switch cfg.Provider {
	case "openai":
		return ai.NewOpenAIClient(ai.OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
		})
	case "", "echo", "static":
		return ai.Static{}
	default:
		panic("Unsupported AI provider: " + cfg.Provider)
	}
}

func registerHandlerPlugins(reg *registry.Registry, pluginsPath string) {
	handlers, err := reg.LoadHandlerPlugins(pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, handler := range handlers {
		reg.Register(handler)
	}
}

// NewRegistry registers the built-in node handlers and any handler plugins found under
// pluginsPath.
func NewRegistry(log *slog.Logger, pluginsPath string, aiConfig AIConfig) *registry.Registry {
	reg := registry.NewRegistry(log)

	reg.RegisterDefaultNodes(registry.Dependencies{
		HTTPClient: &http.Client{Timeout: httpClientTimeout},
		Completer:  NewCompleter(aiConfig),
	})

	registerHandlerPlugins(reg, pluginsPath)

	return reg
}
