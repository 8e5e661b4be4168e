package web

import (
	"errors"

	"github.com/autoflow-io/autoflow/pkg/graph"
	"github.com/autoflow-io/autoflow/pkg/persistence"
	"github.com/autoflow-io/autoflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType(validationType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")

	case persistence.IsRunNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")

	default:
		return internalError(c, err)
	}
}

// validationType names the reason a request was rejected.
func validationType(err error) string {
	var (
		empty       *graph.EmptyGraphError
		duplicate   *graph.DuplicateNodeError
		dangling    *graph.DanglingEdgeError
		cycle       *graph.CycleDetectedError
		unreachable *graph.UnreachableNodesError
		triggerIn   *graph.TriggerInputError
	)

	switch {
	case errors.As(err, &empty):
		return "empty_graph"
	case errors.As(err, &duplicate):
		return "duplicate_node"
	case errors.As(err, &dangling):
		return "dangling_edge"
	case errors.As(err, &cycle):
		return "cycle_detected"
	case errors.As(err, &unreachable):
		return "unreachable_nodes"
	case errors.As(err, &triggerIn):
		return "trigger_input"
	case errors.Is(err, services.ErrInvalidNodeConfig):
		return "invalid_node_config"
	case errors.Is(err, services.ErrInvalidCondition):
		return "invalid_condition"
	default:
		return "validation_error"
	}
}
