package models

import "time"

// Workflow is a named automation definition: a trigger plus a step graph.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Trigger     WorkflowTrigger `json:"trigger"     validate:"required"`
	Steps       []*WorkflowStep `json:"steps"       validate:"required,min=1,dive"`
	IsActive    bool            `json:"is_active"`
	Stats       WorkflowStats   `json:"stats"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WorkflowTrigger declares which events start this workflow and under which
// conditions. Conditions compare against the event data: a plain value means
// equality, a {"min": x, "max": y} object means a numeric range. An absent
// conditions map always matches.
type WorkflowTrigger struct {
	EventType    string         `json:"event_type" validate:"required"`
	Conditions   map[string]any `json:"conditions,omitempty"`
	InitialDelay time.Duration  `json:"initial_delay,omitempty"`
}

// WorkflowStats holds aggregate counters for a definition. The counters are
// derived bookkeeping, not an authoritative audit; execution history is.
type WorkflowStats struct {
	TotalEntered    int `json:"total_entered"`
	CurrentlyActive int `json:"currently_active"`
	Completed       int `json:"completed"`
	Failed          int `json:"failed"`
}

// FindStep returns the step with the given id, if present.
func (w *Workflow) FindStep(stepID string) (*WorkflowStep, bool) {
	for _, step := range w.Steps {
		if step.ID == stepID {
			return step, true
		}
	}

	return nil, false
}

// FirstStep returns the entry step of the graph.
func (w *Workflow) FirstStep() (*WorkflowStep, bool) {
	if len(w.Steps) == 0 {
		return nil, false
	}

	return w.Steps[0], true
}
