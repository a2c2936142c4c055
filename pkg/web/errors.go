package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/loomworks/loom/pkg/persistence"
	"github.com/loomworks/loom/pkg/plan"
	"github.com/loomworks/loom/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and store errors onto problem responses.
// Definition errors carry the full list of structural problems so clients
// can show what is wrong with the graph.
func handleServiceError(c fiber.Ctx, err error) error {
	var definitionErr *plan.DefinitionError

	switch {
	case errors.As(err, &definitionErr):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("invalid_definition").
			WithDetail(definitionErr.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "Workflow not found")

	case persistence.IsRunNotFound(err):
		return notFound(c, "Execution not found")

	case errors.Is(err, persistence.ErrWorkflowAlreadyExists):
		return conflict(c, err.Error())

	case errors.Is(err, services.ErrRunNotActive):
		return conflict(c, err.Error())

	default:
		return internalError(c, err)
	}
}
