// Package main provides the Autoflow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/autoflow-io/autoflow/pkg/eventbus"
	"github.com/autoflow-io/autoflow/pkg/execution"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/autoflow-io/autoflow/pkg/registry"
	"github.com/autoflow-io/autoflow/pkg/services"
	"github.com/autoflow-io/autoflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	engine      *execution.Engine
	eventBus    eventbus.EventBus
	mode        services.DispatchMode
	validate    *validator.Validate

	executionService *services.Execution
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	engine *execution.Engine,
	eventBus eventbus.EventBus,
	mode services.DispatchMode,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		registry:    registry,
		engine:      engine,
		eventBus:    eventBus,
		mode:        mode,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ExecutionService is shared by the HTTP handlers and the scheduler.
func (a *API) ExecutionService() *services.Execution {
	if a.executionService == nil {
		var publisher eventbus.EventPublisher
		if a.eventBus != nil {
			publisher = a.eventBus
		}

		a.executionService = services.NewExecution(a.engine, a.persistence, publisher, a.mode, a.logger)
	}

	return a.executionService
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.registry, a.logger)

	handlers := web.NewAPIHandlers(workflowService, a.ExecutionService(), a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Autoflow API")
	})

	handlers.Register(app)

	return app
}

// Start serves the API until ctx is done, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(":" + strconv.Itoa(port))
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		a.logger.InfoContext(ctx, "Shutting down API server")

		return app.ShutdownWithContext(context.WithoutCancel(ctx))
	}
}
