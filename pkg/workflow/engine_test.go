package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/channels/gochannel"
	"github.com/heraldhq/herald/pkg/contacts"
	"github.com/heraldhq/herald/pkg/eventbus"
	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/persistence"
	"github.com/heraldhq/herald/pkg/persistence/memory"
)

// recordingDispatcher captures dispatched items and can fail on demand.
type recordingDispatcher struct {
	mu    sync.Mutex
	items []*models.QueueItem
	err   error
}

func (d *recordingDispatcher) Name() string { return "recording" }

func (d *recordingDispatcher) Send(_ context.Context, item *models.QueueItem) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}

	d.items = append(d.items, item)

	return nil
}

func (d *recordingDispatcher) sent() []*models.QueueItem {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*models.QueueItem(nil), d.items...)
}

type engineFixture struct {
	engine     *Engine
	persist    persistence.Persistence
	dispatcher *recordingDispatcher
	contacts   *contacts.MemoryService
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	persist := memory.NewPersistence()
	dispatcher := &recordingDispatcher{}
	contactService := contacts.NewMemoryService()
	contactService.Put(&models.Contact{
		ID:        "contact-1",
		Email:     "ana@example.com",
		FirstName: "Ana",
	})

	engine := NewEngine(persist, dispatcher, contactService, bus, slog.Default())
	t.Cleanup(engine.Shutdown)

	return &engineFixture{
		engine:     engine,
		persist:    persist,
		dispatcher: dispatcher,
		contacts:   contactService,
	}
}

func (f *engineFixture) saveWorkflow(t *testing.T, definition *models.Workflow) {
	t.Helper()
	require.NoError(t, f.persist.Workflows().Save(context.Background(), definition))
}

func (f *engineFixture) activeExecutions(t *testing.T, workflowID string) []*models.WorkflowExecution {
	t.Helper()

	executions, err := f.engine.GetActiveExecutions(context.Background(), workflowID)
	require.NoError(t, err)

	return executions
}

func sendEmailStep(id, subject string, next ...string) *models.WorkflowStep {
	return &models.WorkflowStep{
		ID:   id,
		Type: models.StepSendEmail,
		Config: map[string]any{
			"subject": subject,
		},
		NextSteps: next,
	}
}

func TestHandleTriggerEventMatching(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name       string
		conditions map[string]any
		data       map[string]any
		wantMatch  bool
	}{
		{
			name:      "no conditions always matches",
			data:      map[string]any{"plan": "pro"},
			wantMatch: true,
		},
		{
			name:       "equality condition matches",
			conditions: map[string]any{"plan": "pro"},
			data:       map[string]any{"plan": "pro"},
			wantMatch:  true,
		},
		{
			name:       "equality condition rejects",
			conditions: map[string]any{"plan": "pro"},
			data:       map[string]any{"plan": "free"},
			wantMatch:  false,
		},
		{
			name:       "range condition matches inclusive bounds",
			conditions: map[string]any{"total": map[string]any{"min": 10.0, "max": 100.0}},
			data:       map[string]any{"total": 100.0},
			wantMatch:  true,
		},
		{
			name:       "range condition rejects below min",
			conditions: map[string]any{"total": map[string]any{"min": 10.0}},
			data:       map[string]any{"total": 5.0},
			wantMatch:  false,
		},
		{
			name:       "missing field rejects",
			conditions: map[string]any{"plan": "pro"},
			data:       map[string]any{},
			wantMatch:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newEngineFixture(t)
			f.saveWorkflow(t, &models.Workflow{
				ID:       "wf-1",
				Name:     "Signup Welcome",
				IsActive: true,
				Trigger: models.WorkflowTrigger{
					EventType:  "signup",
					Conditions: tt.conditions,
				},
				Steps: []*models.WorkflowStep{sendEmailStep("step-1", "Welcome")},
			})

			err := f.engine.HandleTriggerEvent(ctx, models.TriggerEvent{
				Type:      "signup",
				ContactID: "contact-1",
				Data:      tt.data,
			})
			require.NoError(t, err)

			if tt.wantMatch {
				assert.Len(t, f.dispatcher.sent(), 1)
			} else {
				assert.Empty(t, f.dispatcher.sent())
			}
		})
	}
}

func TestInactiveWorkflowNeverMatches(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(t)
	f.saveWorkflow(t, &models.Workflow{
		ID:       "wf-1",
		Name:     "Signup Welcome",
		IsActive: false,
		Trigger:  models.WorkflowTrigger{EventType: "signup"},
		Steps:    []*models.WorkflowStep{sendEmailStep("step-1", "Welcome")},
	})

	require.NoError(t, f.engine.HandleTriggerEvent(ctx, models.TriggerEvent{
		Type:      "signup",
		ContactID: "contact-1",
	}))

	assert.Empty(t, f.dispatcher.sent())
}

func TestExecutionRunsToCompletion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(t)
	f.saveWorkflow(t, &models.Workflow{
		ID:       "wf-1",
		Name:     "Two Step Sequence",
		IsActive: true,
		Trigger:  models.WorkflowTrigger{EventType: "signup"},
		Steps: []*models.WorkflowStep{
			sendEmailStep("step-1", "Welcome {{firstName}}", "step-2"),
			sendEmailStep("step-2", "Getting started"),
		},
	})

	require.NoError(t, f.engine.HandleTriggerEvent(ctx, models.TriggerEvent{
		Type:      "signup",
		ContactID: "contact-1",
	}))

	sent := f.dispatcher.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Welcome Ana", sent[0].Payload.Subject)
	assert.Equal(t, "ana@example.com", sent[0].Recipient)

	assert.Empty(t, f.activeExecutions(t, "wf-1"))

	definition, err := f.engine.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, definition.Stats.TotalEntered)
	assert.Equal(t, 0, definition.Stats.CurrentlyActive)
	assert.Equal(t, 1, definition.Stats.Completed)
}

func TestWaitStepGatesWithoutHistoryEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(t)
	f.saveWorkflow(t, &models.Workflow{
		ID:       "wf-1",
		Name:     "Send Wait Send",
		IsActive: true,
		Trigger:  models.WorkflowTrigger{EventType: "signup"},
		Steps: []*models.WorkflowStep{
			sendEmailStep("step-1", "Welcome", "step-wait"),
			{
				ID:        "step-wait",
				Type:      models.StepWait,
				Config:    map[string]any{"waitDuration": 0.0005},
				NextSteps: []string{"step-2"},
			},
			sendEmailStep("step-2", "Follow up"),
		},
	})

	require.NoError(t, f.engine.HandleTriggerEvent(ctx, models.TriggerEvent{
		Type:      "signup",
		ContactID: "contact-1",
	}))

	// Only the first email went out; the execution is parked on the wait.
	require.Len(t, f.dispatcher.sent(), 1)

	executions := f.activeExecutions(t, "wf-1")
	require.Len(t, executions, 1)
	require.NotNil(t, executions[0].WakeAt)
	executionID := executions[0].ID

	require.Eventually(t, func() bool {
		return len(f.dispatcher.sent()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	execution, err := f.persist.Executions().GetByID(ctx, executionID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionCompleted, execution.Status)
	assert.Nil(t, execution.WakeAt)

	// The wait gate itself leaves no trace in the history.
	require.Len(t, execution.History, 2)
	assert.Equal(t, "step-1", execution.History[0].StepID)
	assert.Equal(t, "step-2", execution.History[1].StepID)
}

func TestConditionBranching(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	conditionStep := func(next ...string) *models.WorkflowStep {
		return &models.WorkflowStep{
			ID:   "step-cond",
			Type: models.StepCondition,
			Config: map[string]any{
				"condition": map[string]any{
					"field":    "total",
					"operator": "greater_than",
					"value":    100.0,
				},
			},
			NextSteps: next,
		}
	}

	t.Run("true branch advances to first successor", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		f.saveWorkflow(t, &models.Workflow{
			ID:       "wf-1",
			Name:     "Big Spender",
			IsActive: true,
			Trigger:  models.WorkflowTrigger{EventType: "purchase"},
			Steps: []*models.WorkflowStep{
				conditionStep("step-big", "step-small"),
				sendEmailStep("step-big", "VIP thanks"),
				sendEmailStep("step-small", "Thanks"),
			},
		})

		require.NoError(t, f.engine.HandleTriggerEvent(ctx, models.TriggerEvent{
			Type:      "purchase",
			ContactID: "contact-1",
			Data:      map[string]any{"total": 250.0},
		}))

		sent := f.dispatcher.sent()
		require.Len(t, sent, 1)
		assert.Equal(t, "VIP thanks", sent[0].Payload.Subject)
	})

	t.Run("false with single branch completes cleanly", func(t *testing.T) {
		t.Parallel()

		f := newEngineFixture(t)
		f.saveWorkflow(t, &models.Workflow{
			ID:       "wf-1",
			Name:     "Big Spender",
			IsActive: true,
			Trigger:  models.WorkflowTrigger{EventType: "purchase"},
			Steps: []*models.WorkflowStep{
				conditionStep("step-big"),
				sendEmailStep("step-big", "VIP thanks"),
			},
		})

		require.NoError(t, f.engine.HandleTriggerEvent(ctx, models.TriggerEvent{
			Type:      "purchase",
			ContactID: "contact-1",
			Data:      map[string]any{"total": 10.0},
		}))

		assert.Empty(t, f.dispatcher.sent())
		assert.Empty(t, f.activeExecutions(t, "wf-1"))

		definition, err := f.engine.GetWorkflow(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, 1, definition.Stats.Completed)
		assert.Equal(t, 0, definition.Stats.Failed)
	})
}

func TestContactSteps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(t)
	f.saveWorkflow(t, &models.Workflow{
		ID:       "wf-1",
		Name:     "Tag And Update",
		IsActive: true,
		Trigger:  models.WorkflowTrigger{EventType: "signup"},
		Steps: []*models.WorkflowStep{
			{
				ID:        "step-tag",
				Type:      models.StepAddTag,
				Config:    map[string]any{"tags": []any{"newsletter"}},
				NextSteps: []string{"step-update"},
			},
			{
				ID:     "step-update",
				Type:   models.StepUpdateContact,
				Config: map[string]any{"fields": map[string]any{"plan": "pro"}},
			},
		},
	})

	require.NoError(t, f.engine.HandleTriggerEvent(ctx, models.TriggerEvent{
		Type:      "signup",
		ContactID: "contact-1",
	}))

	contact, err := f.contacts.GetContactByID(ctx, "contact-1")
	require.NoError(t, err)
	assert.Contains(t, contact.Tags, "newsletter")
	assert.Equal(t, "pro", contact.Attributes["plan"])
}

func TestStepErrorFailsOnlyThatExecution(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(t)
	f.dispatcher.err = errors.New("provider down")

	f.saveWorkflow(t, &models.Workflow{
		ID:       "wf-1",
		Name:     "Signup Welcome",
		IsActive: true,
		Trigger:  models.WorkflowTrigger{EventType: "signup"},
		Steps:    []*models.WorkflowStep{sendEmailStep("step-1", "Welcome")},
	})

	require.NoError(t, f.engine.HandleTriggerEvent(ctx, models.TriggerEvent{
		Type:      "signup",
		ContactID: "contact-1",
	}))

	definition, err := f.engine.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, definition.Stats.Failed)
	assert.Equal(t, 0, definition.Stats.CurrentlyActive)
	assert.True(t, definition.IsActive)

	assert.Empty(t, f.activeExecutions(t, "wf-1"))
}

func TestInitialDelayDefersFirstStep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(t)
	f.saveWorkflow(t, &models.Workflow{
		ID:       "wf-1",
		Name:     "Delayed Welcome",
		IsActive: true,
		Trigger: models.WorkflowTrigger{
			EventType:    "signup",
			InitialDelay: 30 * time.Millisecond,
		},
		Steps: []*models.WorkflowStep{sendEmailStep("step-1", "Welcome")},
	})

	require.NoError(t, f.engine.HandleTriggerEvent(ctx, models.TriggerEvent{
		Type:      "signup",
		ContactID: "contact-1",
	}))

	assert.Empty(t, f.dispatcher.sent())

	require.Eventually(t, func() bool {
		return len(f.dispatcher.sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecoverReschedulesPersistedWakes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(t)
	f.saveWorkflow(t, &models.Workflow{
		ID:       "wf-1",
		Name:     "Send Wait Send",
		IsActive: true,
		Trigger:  models.WorkflowTrigger{EventType: "signup"},
		Steps: []*models.WorkflowStep{
			{
				ID:        "step-wait",
				Type:      models.StepWait,
				Config:    map[string]any{"waitDuration": 60},
				NextSteps: []string{"step-1"},
			},
			sendEmailStep("step-1", "Welcome"),
		},
	})

	// Simulate an execution persisted by a previous process, overdue.
	past := time.Now().Add(-time.Minute)
	execution := &models.WorkflowExecution{
		ID:            "exec-1",
		WorkflowID:    "wf-1",
		ContactID:     "contact-1",
		CurrentStepID: "step-wait",
		Status:        models.ExecutionActive,
		Variables:     map[string]any{},
		History:       []models.HistoryEntry{},
		WakeAt:        &past,
		StartedAt:     past,
	}
	require.NoError(t, f.persist.Executions().Save(ctx, execution))

	require.NoError(t, f.engine.Recover(ctx))

	require.Eventually(t, func() bool {
		return len(f.dispatcher.sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	recovered, err := f.persist.Executions().GetByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, recovered.Status)
}

func TestDeleteWorkflowPausesExecutionsAndCancelsTimers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(t)
	f.saveWorkflow(t, &models.Workflow{
		ID:       "wf-1",
		Name:     "Waiting Flow",
		IsActive: true,
		Trigger:  models.WorkflowTrigger{EventType: "signup"},
		Steps: []*models.WorkflowStep{
			{
				ID:        "step-wait",
				Type:      models.StepWait,
				Config:    map[string]any{"waitDuration": 0.002},
				NextSteps: []string{"step-1"},
			},
			sendEmailStep("step-1", "Welcome"),
		},
	})

	require.NoError(t, f.engine.HandleTriggerEvent(ctx, models.TriggerEvent{
		Type:      "signup",
		ContactID: "contact-1",
	}))

	executions := f.activeExecutions(t, "wf-1")
	require.Len(t, executions, 1)
	executionID := executions[0].ID

	require.NoError(t, f.engine.DeleteWorkflow(ctx, "wf-1"))

	execution, err := f.persist.Executions().GetByID(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPaused, execution.Status)

	// The cancelled timer never fires the follow-up send.
	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, f.dispatcher.sent())

	_, err = f.engine.GetWorkflow(ctx, "wf-1")
	require.True(t, persistence.IsWorkflowNotFound(err))
}

func TestGetActiveExecutionsMostRecentFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newEngineFixture(t)

	for i, started := range []time.Time{
		time.Now().Add(-2 * time.Hour),
		time.Now().Add(-time.Hour),
		time.Now(),
	} {
		require.NoError(t, f.persist.Executions().Save(ctx, &models.WorkflowExecution{
			ID:         string(rune('a' + i)),
			WorkflowID: "wf-1",
			ContactID:  "contact-1",
			Status:     models.ExecutionActive,
			History:    []models.HistoryEntry{},
			StartedAt:  started,
		}))
	}

	executions := f.activeExecutions(t, "wf-1")
	require.Len(t, executions, 3)
	assert.Equal(t, "c", executions[0].ID)
	assert.Equal(t, "a", executions[2].ID)
}

func TestValidateDefinition(t *testing.T) {
	t.Parallel()

	valid := &models.Workflow{
		ID:      "wf-1",
		Name:    "Valid Flow",
		Trigger: models.WorkflowTrigger{EventType: "signup"},
		Steps: []*models.WorkflowStep{
			sendEmailStep("step-1", "Welcome", "step-2"),
			{
				ID:     "step-2",
				Type:   models.StepWait,
				Config: map[string]any{"waitDuration": 5},
			},
		},
	}
	require.NoError(t, ValidateDefinition(valid))

	tests := []struct {
		name   string
		mutate func(w *models.Workflow)
	}{
		{
			name:   "short name",
			mutate: func(w *models.Workflow) { w.Name = "ab" },
		},
		{
			name:   "no steps",
			mutate: func(w *models.Workflow) { w.Steps = nil },
		},
		{
			name: "unknown step type",
			mutate: func(w *models.Workflow) {
				w.Steps[0].Type = "teleport"
			},
		},
		{
			name: "dangling next step",
			mutate: func(w *models.Workflow) {
				w.Steps[0].NextSteps = []string{"missing"}
			},
		},
		{
			name: "duplicate step ids",
			mutate: func(w *models.Workflow) {
				w.Steps[1].ID = "step-1"
			},
		},
		{
			name: "send email without subject",
			mutate: func(w *models.Workflow) {
				w.Steps[0].Config = map[string]any{}
			},
		},
		{
			name: "wait without duration",
			mutate: func(w *models.Workflow) {
				w.Steps[1].Config = map[string]any{}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			definition := &models.Workflow{
				ID:      "wf-1",
				Name:    "Valid Flow",
				Trigger: models.WorkflowTrigger{EventType: "signup"},
				Steps: []*models.WorkflowStep{
					sendEmailStep("step-1", "Welcome", "step-2"),
					{
						ID:     "step-2",
						Type:   models.StepWait,
						Config: map[string]any{"waitDuration": 5},
					},
				},
			}
			tt.mutate(definition)

			err := ValidateDefinition(definition)
			require.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}
