// Package web provides the HTTP read/admin API over the queue, the workflow
// engine, and the campaign runner.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/heraldhq/herald/pkg/campaign"
	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/persistence"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/workflow"
)

type APIHandlers struct {
	queue     *queue.Queue
	engine    *workflow.Engine
	campaigns *campaign.Runner
	persist   persistence.Persistence
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(
	q *queue.Queue,
	engine *workflow.Engine,
	campaigns *campaign.Runner,
	persist persistence.Persistence,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		queue:     q,
		engine:    engine,
		campaigns: campaigns,
		persist:   persist,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("module", "web"),
	}
}

func (h *APIHandlers) GetQueueItems(c fiber.Ctx) error {
	filter := persistence.ItemFilter{
		Status:    models.QueueItemStatus(c.Query("status")),
		Priority:  models.Priority(c.Query("priority")),
		Recipient: c.Query("recipient"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return badRequest(c, "invalid limit: "+limitStr)
		}

		filter.Limit = limit
	}

	items, err := h.queue.GetItems(c.Context(), filter)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"items": items,
		"count": len(items),
	})
}

func (h *APIHandlers) CreateQueueItem(c fiber.Ctx) error {
	var req queue.AddRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	item, err := h.queue.Add(c.Context(), req)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(item)
}

func (h *APIHandlers) GetQueueItem(c fiber.Ctx) error {
	item, err := h.queue.GetItem(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) CancelQueueItem(c fiber.Ctx) error {
	item, err := h.queue.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) RetryQueueItem(c fiber.Ctx) error {
	item, err := h.queue.Retry(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) RescheduleQueueItem(c fiber.Ctx) error {
	var req RescheduleItemRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	item, err := h.queue.Reschedule(c.Context(), c.Params("id"), req.ScheduledAt)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(item)
}

func (h *APIHandlers) DeleteQueueItem(c fiber.Ctx) error {
	err := h.queue.Delete(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetQueueStats(c fiber.Ctx) error {
	stats, err := h.queue.GetStats(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetQueueHealth(c fiber.Ctx) error {
	health, err := h.queue.GetHealth(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(health)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.engine.ListWorkflows(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows": workflows,
		"count":     len(workflows),
	})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	definition := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		Trigger:     req.Trigger,
		Steps:       req.Steps,
		IsActive:    req.IsActive,
	}

	created, err := h.engine.CreateWorkflow(c.Context(), definition)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	definition, err := h.engine.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.engine.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Description != nil {
		existing.Description = *req.Description
	}

	if req.Trigger != nil {
		existing.Trigger = *req.Trigger
	}

	if req.Steps != nil {
		existing.Steps = req.Steps
	}

	updated, err := h.engine.UpdateWorkflow(c.Context(), existing)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.engine.DeleteWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PauseWorkflow(c fiber.Ctx) error {
	err := h.engine.PauseWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ResumeWorkflow(c fiber.Ctx) error {
	err := h.engine.ResumeWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	executions, err := h.engine.GetActiveExecutions(c.Context(), c.Query("workflow_id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions": executions,
		"count":      len(executions),
	})
}

// IngestEvent accepts one trigger event and fans it out to matching
// workflows before responding.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var req TriggerEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := models.TriggerEvent{
		Type:      req.Type,
		ContactID: req.ContactID,
		Data:      req.Data,
	}

	err := h.engine.HandleTriggerEvent(c.Context(), event)
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetCampaigns(c fiber.Ctx) error {
	campaigns, err := h.campaigns.ListCampaigns(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"campaigns": campaigns,
		"count":     len(campaigns),
	})
}

func (h *APIHandlers) GetCampaign(c fiber.Ctx) error {
	result, err := h.campaigns.GetCampaign(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(result)
}

// SendCampaign validates the transition synchronously, then runs the batch
// loop detached from the request.
func (h *APIHandlers) SendCampaign(c fiber.Ctx) error {
	id := c.Params("id")

	result, err := h.campaigns.GetCampaign(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	if result.Status != models.CampaignDraft && result.Status != models.CampaignScheduled {
		return conflict(c, "campaign is not in a sendable status")
	}

	go func() {
		err := h.campaigns.Send(context.Background(), id)
		if err != nil {
			h.logger.Error("Campaign send failed", "campaign_id", id, "error", err)
		}
	}()

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) PauseCampaign(c fiber.Ctx) error {
	err := h.campaigns.Pause(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ResumeCampaign(c fiber.Ctx) error {
	id := c.Params("id")

	result, err := h.campaigns.GetCampaign(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	if result.Status != models.CampaignPaused {
		return conflict(c, "campaign is not paused")
	}

	go func() {
		err := h.campaigns.Resume(context.Background(), id)
		if err != nil {
			h.logger.Error("Campaign resume failed", "campaign_id", id, "error", err)
		}
	}()

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persist.HealthCheck(c.Context())

	status := "healthy"
	httpStatus := http.StatusOK

	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
