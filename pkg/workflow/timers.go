package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/heraldhq/herald/pkg/models"
)

// scheduleWake persists the execution's wake time and arms an in-memory
// timer. The persisted WakeAt is authoritative; the timer is just the live
// process's way of honoring it.
func (e *Engine) scheduleWake(ctx context.Context, execution *models.WorkflowExecution, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}

	wakeAt := time.Now().Add(delay)
	execution.WakeAt = &wakeAt

	err := e.executions.Save(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to persist wake time: %w", err)
	}

	e.armTimer(execution.ID, delay)

	e.logger.InfoContext(ctx, "Continuation scheduled",
		"execution_id", execution.ID, "wake_at", wakeAt)

	return nil
}

func (e *Engine) armTimer(executionID string, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.timers[executionID]; ok {
		existing.Stop()
	}

	e.timers[executionID] = time.AfterFunc(delay, func() {
		e.wake(context.Background(), executionID)
	})
}

// wake resumes a sleeping execution. If the current step is a wait gate the
// execution advances past it; otherwise the current step has not run yet
// (initial trigger delay) and is executed now.
func (e *Engine) wake(ctx context.Context, executionID string) {
	e.mu.Lock()
	delete(e.timers, executionID)
	e.mu.Unlock()

	execution, err := e.executions.GetByID(ctx, executionID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to load execution on wake", "execution_id", executionID, "error", err)

		return
	}

	if execution.Status != models.ExecutionActive {
		return
	}

	execution.WakeAt = nil

	definition, err := e.workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to load workflow on wake",
			"execution_id", executionID, "workflow_id", execution.WorkflowID, "error", err)

		return
	}

	step, ok := definition.FindStep(execution.CurrentStepID)
	if !ok {
		e.failExecution(ctx, definition, execution, nil, fmt.Errorf("%w: %q", ErrUnknownStep, execution.CurrentStepID))

		return
	}

	if step.Type == models.StepWait {
		e.advance(ctx, definition, execution, step.NextSteps)

		return
	}

	e.executeStep(ctx, definition, execution, step)
}

// Recover re-arms timers for active executions whose wake time was persisted
// before a restart. Overdue continuations fire immediately.
func (e *Engine) Recover(ctx context.Context) error {
	sleeping, err := e.executions.ListScheduledWake(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sleeping executions: %w", err)
	}

	now := time.Now()

	for _, execution := range sleeping {
		delay := execution.WakeAt.Sub(now)
		if delay < 0 {
			delay = 0
		}

		e.armTimer(execution.ID, delay)
	}

	if len(sleeping) > 0 {
		e.logger.InfoContext(ctx, "Recovered sleeping executions", "count", len(sleeping))
	}

	return nil
}

// cancelTimersFor stops pending continuations for the given executions.
func (e *Engine) cancelTimersFor(executionIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range executionIDs {
		if timer, ok := e.timers[id]; ok {
			timer.Stop()
			delete(e.timers, id)
		}
	}
}

// Shutdown cancels every outstanding timer. Persisted wake times remain, so
// Recover picks the continuations back up on the next start.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, timer := range e.timers {
		timer.Stop()
		delete(e.timers, id)
	}
}
