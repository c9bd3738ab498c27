package models

import "time"

// ExecutionStatus represents the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionActive    ExecutionStatus = "active"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionFailed    ExecutionStatus = "failed"
)

// HistoryEntry records one executed step of an execution.
type HistoryEntry struct {
	StepID     string          `json:"step_id"`
	ExecutedAt time.Time       `json:"executed_at"`
	Status     ExecutionStatus `json:"status"`
	NextSteps  []string        `json:"next_steps,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// WorkflowExecution is one run of a workflow definition for one contact.
//
// History is append-only and reflects actual execution order. WakeAt is set
// while a wait step or an initial trigger delay is pending, so continuations
// survive a restart and can be rescheduled by Engine.Recover.
type WorkflowExecution struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflow_id"`
	ContactID     string          `json:"contact_id"`
	CurrentStepID string          `json:"current_step_id,omitempty"`
	Status        ExecutionStatus `json:"status"`
	Variables     map[string]any  `json:"variables,omitempty"`
	History       []HistoryEntry  `json:"history"`
	WakeAt        *time.Time      `json:"wake_at,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// AppendHistory adds an entry to the execution history. History never shrinks
// or reorders.
func (e *WorkflowExecution) AppendHistory(entry HistoryEntry) {
	e.History = append(e.History, entry)
}
