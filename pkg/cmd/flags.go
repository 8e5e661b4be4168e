package cmd

import (
	"github.com/autoflow-io/autoflow/pkg/execution"
	cli "github.com/urfave/cli/v3"
)

// CommonFlags are shared by every binary that owns an execution engine.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://, postgres://, redis://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated kafka brokers",
			Value:   "kafka:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:     "plugins-path",
			Usage:    "Path to the directory containing handler plugins",
			Value:    "./plugins",
			Required: false,
			Sources:  cli.EnvVars("PLUGINS_PATH"),
		},
		&cli.IntFlag{
			Name:    "max-parallel-nodes",
			Usage:   "Nodes of one level executed at the same time per run",
			Value:   execution.DefaultMaxParallel,
			Sources: cli.EnvVars("MAX_PARALLEL_NODES"),
		},
		&cli.StringFlag{
			Name:    "ai-provider",
			Usage:   "Completer behind ai_call nodes (echo, openai)",
			Value:   "echo",
			Sources: cli.EnvVars("AI_PROVIDER"),
		},
		&cli.StringFlag{
			Name:    "ai-base-url",
			Usage:   "Base URL of the OpenAI compatible endpoint",
			Sources: cli.EnvVars("AI_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "ai-api-key",
			Usage:   "API key of the AI provider",
			Sources: cli.EnvVars("AI_API_KEY", "OPENAI_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "ai-model",
			Usage:   "Default model for ai_call nodes",
			Sources: cli.EnvVars("AI_MODEL"),
		},
		&cli.BoolFlag{
			Name:    "otel",
			Usage:   "Export traces over OTLP/HTTP",
			Value:   false,
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

// AIConfigFromCommand reads the ai-* flags.
func AIConfigFromCommand(command *cli.Command) AIConfig {
	return AIConfig{
		Provider: command.String("ai-provider"),
		BaseURL:  command.String("ai-base-url"),
		APIKey:   command.String("ai-api-key"),
		Model:    command.String("ai-model"),
	}
}
