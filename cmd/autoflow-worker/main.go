// Package main provides the Autoflow worker, which drives runs dispatched through the event bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/autoflow-io/autoflow/pkg/cmd"
	"github.com/autoflow-io/autoflow/pkg/execution"
	"github.com/autoflow-io/autoflow/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "autoflow-worker",
		Usage:                 "Execute workflow runs requested through the event bus",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("autoflow-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Autoflow Worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tracer, shutdownTracer := cmd.NewTracer(ctx, logger, command.Bool("otel"), "autoflow-worker")
			defer shutdownTracer()

			registry := cmd.NewRegistry(logger, command.String("plugins-path"), cmd.AIConfigFromCommand(command))

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "autoflow-worker", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			engine := execution.NewEngine(execution.Options{
				Store:       persistence.ExecutionRepository(),
				Workflows:   persistence.WorkflowRepository(),
				Registry:    registry,
				Publisher:   eventBus,
				Logger:      logger,
				Tracer:      tracer,
				MaxParallel: command.Int("max-parallel-nodes"),
				WorkerID:    workerID,
			})

			worker := NewWorkerManager(workerID, engine, eventBus, logger)

			err := worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Worker stopped with error", "error", err)

				return err
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
