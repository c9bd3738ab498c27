package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/heraldhq/herald/pkg/campaign"
	"github.com/heraldhq/herald/pkg/persistence"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/workflow"
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

// handleError maps domain errors onto RFC-7807 responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsItemNotFound(err):
		return notFound(c, "queue item not found")
	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")
	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")
	case persistence.IsCampaignNotFound(err):
		return notFound(c, "campaign not found")
	case errors.Is(err, queue.ErrInvalidPriority),
		errors.Is(err, queue.ErrInvalidMaxAttempts),
		errors.Is(err, queue.ErrMissingRecipient),
		errors.Is(err, workflow.ErrInvalidDefinition):
		return badRequest(c, err.Error())
	case errors.Is(err, queue.ErrItemProcessing),
		errors.Is(err, queue.ErrItemTerminal),
		errors.Is(err, queue.ErrItemNotFailed),
		errors.Is(err, queue.ErrItemSent),
		errors.Is(err, campaign.ErrNotSendable),
		errors.Is(err, campaign.ErrNotSending),
		errors.Is(err, campaign.ErrNotPaused):
		return conflict(c, err.Error())
	default:
		return internalError(c, err)
	}
}
