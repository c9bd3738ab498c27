package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heraldhq/herald/pkg/models"
)

// CreateWorkflow validates and stores a new definition.
func (e *Engine) CreateWorkflow(ctx context.Context, definition *models.Workflow) (*models.Workflow, error) {
	if definition.ID == "" {
		definition.ID = uuid.New().String()
	}

	err := ValidateDefinition(definition)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	definition.CreatedAt = now
	definition.UpdatedAt = now
	definition.Stats = models.WorkflowStats{}

	err = e.workflows.Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	e.logger.InfoContext(ctx, "Workflow created", "workflow_id", definition.ID, "name", definition.Name)

	return definition, nil
}

// UpdateWorkflow replaces a definition's trigger, steps, and metadata. Stats
// and creation time carry over from the stored definition.
func (e *Engine) UpdateWorkflow(ctx context.Context, definition *models.Workflow) (*models.Workflow, error) {
	existing, err := e.workflows.GetByID(ctx, definition.ID)
	if err != nil {
		return nil, err
	}

	err = ValidateDefinition(definition)
	if err != nil {
		return nil, err
	}

	definition.Stats = existing.Stats
	definition.CreatedAt = existing.CreatedAt
	definition.UpdatedAt = time.Now()

	err = e.workflows.Save(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return definition, nil
}

func (e *Engine) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return e.workflows.GetByID(ctx, id)
}

func (e *Engine) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	return e.workflows.GetAll(ctx)
}

// PauseWorkflow stops the definition from matching new trigger events.
// Already-running executions are unaffected.
func (e *Engine) PauseWorkflow(ctx context.Context, id string) error {
	return e.setActive(ctx, id, false)
}

// ResumeWorkflow re-enables trigger matching for the definition.
func (e *Engine) ResumeWorkflow(ctx context.Context, id string) error {
	return e.setActive(ctx, id, true)
}

func (e *Engine) setActive(ctx context.Context, id string, active bool) error {
	definition, err := e.workflows.GetByID(ctx, id)
	if err != nil {
		return err
	}

	definition.IsActive = active
	definition.UpdatedAt = time.Now()

	err = e.workflows.Save(ctx, definition)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	e.logger.InfoContext(ctx, "Workflow activation changed", "workflow_id", id, "is_active", active)

	return nil
}

// DeleteWorkflow removes the definition, pauses its active executions, and
// cancels their pending wait continuations.
func (e *Engine) DeleteWorkflow(ctx context.Context, id string) error {
	_, err := e.workflows.GetByID(ctx, id)
	if err != nil {
		return err
	}

	active, err := e.executions.ListActive(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list executions: %w", err)
	}

	pausedIDs := make([]string, 0, len(active))

	for _, execution := range active {
		execution.Status = models.ExecutionPaused
		execution.WakeAt = nil

		err = e.executions.Save(ctx, execution)
		if err != nil {
			return fmt.Errorf("failed to pause execution %s: %w", execution.ID, err)
		}

		pausedIDs = append(pausedIDs, execution.ID)
	}

	e.cancelTimersFor(pausedIDs)

	err = e.workflows.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	e.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", id, "paused_executions", len(pausedIDs))

	return nil
}
