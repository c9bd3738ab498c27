// Package workflow implements the event-driven automation engine. Trigger
// events start executions of matching definitions; the engine walks each
// execution through its step graph, gating on wait timers and recording an
// append-only history.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/heraldhq/herald/pkg/eventbus"
	"github.com/heraldhq/herald/pkg/events"
	"github.com/heraldhq/herald/pkg/metrics"
	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/otelhelper"
	"github.com/heraldhq/herald/pkg/persistence"
	"github.com/heraldhq/herald/pkg/protocol"
	"github.com/heraldhq/herald/pkg/template"
)

var (
	ErrUnknownStep      = errors.New("unknown step id")
	ErrUnknownStepType  = errors.New("unknown step type")
	ErrMissingCondition = errors.New("condition step has no condition config")
)

// Engine advances workflow executions. Wait continuations are persisted as
// WakeAt on the execution and tracked as cancellable timers in memory, so
// they survive a restart via Recover.
type Engine struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	dispatcher protocol.Dispatcher
	contacts   protocol.ContactService
	eventBus   eventbus.EventBus
	logger     *slog.Logger
	tracer     trace.Tracer

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewEngine(persist persistence.Persistence, dispatcher protocol.Dispatcher, contacts protocol.ContactService, eventBus eventbus.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		workflows:  persist.Workflows(),
		executions: persist.Executions(),
		dispatcher: dispatcher,
		contacts:   contacts,
		eventBus:   eventBus,
		logger:     logger.With("module", "workflow"),
		tracer:     otel.Tracer("herald.workflow"),
		timers:     make(map[string]*time.Timer),
	}
}

// HandleTriggerEvent starts one execution for every active definition whose
// trigger matches the event. A match failure on one definition never blocks
// the others.
func (e *Engine) HandleTriggerEvent(ctx context.Context, event models.TriggerEvent) error {
	definitions, err := e.workflows.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active workflows: %w", err)
	}

	for _, definition := range definitions {
		if !matchesTrigger(definition.Trigger, event) {
			continue
		}

		err := e.startExecution(ctx, definition, event)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to start execution",
				"workflow_id", definition.ID, "contact_id", event.ContactID, "error", err)
		}
	}

	return nil
}

// matchesTrigger checks the event type and the declarative conditions. A
// plain condition value means equality against the event data; a
// {"min": x, "max": y} object means an inclusive numeric range. No
// conditions means "always matches".
func matchesTrigger(trigger models.WorkflowTrigger, event models.TriggerEvent) bool {
	if trigger.EventType != event.Type {
		return false
	}

	for field, expected := range trigger.Conditions {
		actual, exists := event.Data[field]
		if !exists {
			return false
		}

		if rangeSpec, ok := expected.(map[string]any); ok {
			if !matchesRange(rangeSpec, actual) {
				return false
			}

			continue
		}

		if !models.EqualValues(actual, expected) {
			return false
		}
	}

	return true
}

func matchesRange(rangeSpec map[string]any, actual any) bool {
	value, ok := models.ToFloat(actual)
	if !ok {
		return false
	}

	if minRaw, exists := rangeSpec["min"]; exists {
		minVal, ok := models.ToFloat(minRaw)
		if !ok || value < minVal {
			return false
		}
	}

	if maxRaw, exists := rangeSpec["max"]; exists {
		maxVal, ok := models.ToFloat(maxRaw)
		if !ok || value > maxVal {
			return false
		}
	}

	return true
}

func (e *Engine) startExecution(ctx context.Context, definition *models.Workflow, event models.TriggerEvent) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execution",
		attribute.String(otelhelper.WorkflowIDKey, definition.ID),
	)
	defer span.End()

	firstStep, ok := definition.FirstStep()
	if !ok {
		err := fmt.Errorf("workflow %s has no steps", definition.ID)
		otelhelper.SetError(span, err)

		return err
	}

	variables := make(map[string]any, len(event.Data))
	for k, v := range event.Data {
		variables[k] = v
	}

	execution := &models.WorkflowExecution{
		ID:            uuid.New().String(),
		WorkflowID:    definition.ID,
		ContactID:     event.ContactID,
		CurrentStepID: firstStep.ID,
		Status:        models.ExecutionActive,
		Variables:     variables,
		History:       []models.HistoryEntry{},
		StartedAt:     time.Now(),
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	err := e.executions.Save(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	definition.Stats.TotalEntered++
	definition.Stats.CurrentlyActive++

	err = e.workflows.Save(ctx, definition)
	if err != nil {
		return fmt.Errorf("failed to update workflow stats: %w", err)
	}

	metrics.ExecutionStarted()
	e.publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent),
		ExecutionID: execution.ID,
		WorkflowID:  definition.ID,
		ContactID:   event.ContactID,
		TriggerType: event.Type,
		Variables:   variables,
	})

	e.logger.InfoContext(ctx, "Execution started",
		"execution_id", execution.ID, "workflow_id", definition.ID, "contact_id", event.ContactID)

	if definition.Trigger.InitialDelay > 0 {
		return e.scheduleWake(ctx, execution, definition.Trigger.InitialDelay)
	}

	e.executeStep(ctx, definition, execution, firstStep)

	return nil
}

// executeStep runs one step and advances the execution. Errors mark only
// this execution failed; siblings are untouched.
func (e *Engine) executeStep(ctx context.Context, definition *models.Workflow, execution *models.WorkflowExecution, step *models.WorkflowStep) {
	execution.CurrentStepID = step.ID

	switch step.Type {
	case models.StepSendEmail:
		err := e.runSendEmail(ctx, execution, step)
		if err != nil {
			e.failExecution(ctx, definition, execution, step, err)

			return
		}
	case models.StepWait:
		// The wait gate only delays; it produces no history entry.
		err := e.scheduleWake(ctx, execution, step.WaitDuration())
		if err != nil {
			e.failExecution(ctx, definition, execution, step, err)
		}

		return
	case models.StepCondition:
		e.runCondition(ctx, definition, execution, step)

		return
	case models.StepUpdateContact:
		_, err := e.contacts.UpdateContact(ctx, execution.ContactID, step.Fields())
		if err != nil {
			e.failExecution(ctx, definition, execution, step, err)

			return
		}

		for k, v := range step.Fields() {
			execution.Variables[k] = v
		}
	case models.StepAddTag:
		err := e.contacts.AddTags(ctx, execution.ContactID, step.Tags())
		if err != nil {
			e.failExecution(ctx, definition, execution, step, err)

			return
		}
	case models.StepRemoveTag:
		err := e.contacts.RemoveTags(ctx, execution.ContactID, step.Tags())
		if err != nil {
			e.failExecution(ctx, definition, execution, step, err)

			return
		}
	default:
		e.failExecution(ctx, definition, execution, step, fmt.Errorf("%w: %q", ErrUnknownStepType, step.Type))

		return
	}

	execution.AppendHistory(models.HistoryEntry{
		StepID:     step.ID,
		ExecutedAt: time.Now(),
		Status:     models.ExecutionActive,
		NextSteps:  step.NextSteps,
	})

	e.advance(ctx, definition, execution, step.NextSteps)
}

func (e *Engine) runSendEmail(ctx context.Context, execution *models.WorkflowExecution, step *models.WorkflowStep) error {
	contact, err := e.contacts.GetContactByID(ctx, execution.ContactID)
	if err != nil {
		return fmt.Errorf("failed to load contact: %w", err)
	}

	templateCtx := template.MergeContexts(contact.TemplateContext(), execution.Variables, step.CustomData())

	subject, _ := step.Config["subject"].(string)
	body, _ := step.Config["body"].(string)

	priority := models.PriorityNormal
	if p, ok := step.Config["priority"].(string); ok && models.Priority(p).Valid() {
		priority = models.Priority(p)
	}

	item := &models.QueueItem{
		Recipient: contact.Email,
		Payload: models.EmailPayload{
			Subject:      template.Render(subject, templateCtx),
			Body:         template.Render(body, templateCtx),
			TemplateData: templateCtx,
		},
		Priority: priority,
		Metadata: map[string]any{
			"execution_id": execution.ID,
			"workflow_id":  execution.WorkflowID,
			"step_id":      step.ID,
		},
	}

	err = e.dispatcher.Send(ctx, item)
	if err != nil {
		return fmt.Errorf("failed to dispatch step email: %w", err)
	}

	return nil
}

func (e *Engine) runCondition(ctx context.Context, definition *models.Workflow, execution *models.WorkflowExecution, step *models.WorkflowStep) {
	condition, ok := step.Condition()
	if !ok {
		e.failExecution(ctx, definition, execution, step, ErrMissingCondition)

		return
	}

	result, err := condition.Evaluate(execution.Variables)
	if err != nil {
		e.failExecution(ctx, definition, execution, step, err)

		return
	}

	var next []string

	switch {
	case result && len(step.NextSteps) > 0:
		next = step.NextSteps[:1]
	case !result && len(step.NextSteps) > 1:
		next = step.NextSteps[1:2]
	default:
		// False with no false-branch ends the path cleanly.
		next = nil
	}

	execution.AppendHistory(models.HistoryEntry{
		StepID:     step.ID,
		ExecutedAt: time.Now(),
		Status:     models.ExecutionActive,
		NextSteps:  next,
	})

	e.advance(ctx, definition, execution, next)
}

// advance continues the execution into the given successor steps. An empty
// successor set completes the execution.
func (e *Engine) advance(ctx context.Context, definition *models.Workflow, execution *models.WorkflowExecution, nextIDs []string) {
	if len(nextIDs) == 0 {
		e.completeExecution(ctx, definition, execution)

		return
	}

	err := e.executions.Save(ctx, execution)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to save execution", "execution_id", execution.ID, "error", err)

		return
	}

	for _, nextID := range nextIDs {
		step, ok := definition.FindStep(nextID)
		if !ok {
			e.failExecution(ctx, definition, execution, nil, fmt.Errorf("%w: %q", ErrUnknownStep, nextID))

			return
		}

		e.executeStep(ctx, definition, execution, step)
	}
}

func (e *Engine) completeExecution(ctx context.Context, definition *models.Workflow, execution *models.WorkflowExecution) {
	now := time.Now()
	execution.Status = models.ExecutionCompleted
	execution.CompletedAt = &now
	execution.WakeAt = nil

	err := e.executions.Save(ctx, execution)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to complete execution", "execution_id", execution.ID, "error", err)

		return
	}

	e.adjustStats(ctx, definition, func(stats *models.WorkflowStats) {
		stats.CurrentlyActive--
		stats.Completed++
	})

	metrics.ExecutionCompleted()
	e.publish(ctx, execution.ID, events.ExecutionCompleted{
		BaseEvent:     e.baseEvent(events.ExecutionCompletedEvent),
		ExecutionID:   execution.ID,
		WorkflowID:    execution.WorkflowID,
		StepsExecuted: len(execution.History),
		Duration:      now.Sub(execution.StartedAt),
	})

	e.logger.InfoContext(ctx, "Execution completed",
		"execution_id", execution.ID, "workflow_id", execution.WorkflowID,
		"steps", len(execution.History))
}

func (e *Engine) failExecution(ctx context.Context, definition *models.Workflow, execution *models.WorkflowExecution, step *models.WorkflowStep, cause error) {
	now := time.Now()
	stepID := execution.CurrentStepID

	if step != nil {
		stepID = step.ID
	}

	execution.AppendHistory(models.HistoryEntry{
		StepID:     stepID,
		ExecutedAt: now,
		Status:     models.ExecutionFailed,
		Error:      cause.Error(),
	})

	execution.Status = models.ExecutionFailed
	execution.CompletedAt = &now
	execution.WakeAt = nil

	err := e.executions.Save(ctx, execution)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist failed execution", "execution_id", execution.ID, "error", err)
	}

	e.adjustStats(ctx, definition, func(stats *models.WorkflowStats) {
		stats.CurrentlyActive--
		stats.Failed++
	})

	metrics.ExecutionFailed()
	e.publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent:   e.baseEvent(events.ExecutionFailedEvent),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		StepID:      stepID,
		Error:       cause.Error(),
	})

	e.logger.WarnContext(ctx, "Execution failed",
		"execution_id", execution.ID, "workflow_id", execution.WorkflowID,
		"step_id", stepID, "error", cause)
}

func (e *Engine) adjustStats(ctx context.Context, definition *models.Workflow, adjust func(*models.WorkflowStats)) {
	adjust(&definition.Stats)

	if definition.Stats.CurrentlyActive < 0 {
		definition.Stats.CurrentlyActive = 0
	}

	err := e.workflows.Save(ctx, definition)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to update workflow stats", "workflow_id", definition.ID, "error", err)
	}
}

// GetActiveExecutions returns active executions, most recent first. An empty
// workflow id means all workflows.
func (e *Engine) GetActiveExecutions(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	return e.executions.ListActive(ctx, workflowID)
}

func (e *Engine) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        e.eventBus.GenerateID(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	err := e.eventBus.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish workflow event",
			"event_type", event.GetType(), "error", err)
	}
}
