package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autoflow-io/autoflow/pkg/cmd"
	"github.com/autoflow-io/autoflow/pkg/execution"
	"github.com/autoflow-io/autoflow/pkg/log"
	"github.com/autoflow-io/autoflow/pkg/scheduler"
	"github.com/autoflow-io/autoflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 30 * time.Second
)

func main() {
	logger := log.WithModule("api")

	cmd := &cli.Command{
		Name:                  "autoflow-api",
		Usage:                 "Create, execute and inspect workflows",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "dispatch-mode",
				Usage:   "Who drives submitted runs: inline (this process) or queue (workers)",
				Value:   string(services.DispatchInline),
				Sources: cli.EnvVars("DISPATCH_MODE"),
			},
			&cli.BoolFlag{
				Name:    "scheduler",
				Usage:   "Submit executions for trigger nodes with a cron schedule",
				Value:   false,
				Sources: cli.EnvVars("SCHEDULER_ENABLED"),
			},
			&cli.DurationFlag{
				Name:    "scheduler-sync-interval",
				Usage:   "How often schedules are reloaded from the workflow store",
				Value:   scheduler.DefaultSyncInterval,
				Sources: cli.EnvVars("SCHEDULER_SYNC_INTERVAL"),
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Autoflow API")

			mode, err := services.ParseDispatchMode(command.String("dispatch-mode"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tracer, shutdownTracer := cmd.NewTracer(ctx, logger, command.Bool("otel"), "autoflow-api")
			defer shutdownTracer()

			registry := cmd.NewRegistry(logger, command.String("plugins-path"), cmd.AIConfigFromCommand(command))
			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "autoflow-api", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if mode == services.DispatchQueue && command.String("event-bus") != "kafka" {
				logger.WarnContext(ctx, "Queue dispatch without kafka only reaches workers in this process")
			}

			engine := execution.NewEngine(execution.Options{
				Store:       persistence.ExecutionRepository(),
				Workflows:   persistence.WorkflowRepository(),
				Registry:    registry,
				Publisher:   eventBus,
				Logger:      logger,
				Tracer:      tracer,
				MaxParallel: command.Int("max-parallel-nodes"),
			})

			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()

				if err := engine.Close(closeCtx); err != nil {
					logger.ErrorContext(ctx, "Engine did not stop in time", "error", err)
				}
			}()

			api := NewAPI(logger, persistence, registry, engine, eventBus, mode)

			if command.Bool("scheduler") {
				sched := scheduler.New(persistence.WorkflowRepository(), api.ExecutionService(), logger,
					command.Duration("scheduler-sync-interval"))

				if err := sched.Start(ctx); err != nil {
					return err
				}

				defer func() {
					if err := sched.Stop(context.WithoutCancel(ctx)); err != nil {
						logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
					}
				}()
			}

			err = api.Start(ctx, command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "API server stopped with error", "error", err)

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
