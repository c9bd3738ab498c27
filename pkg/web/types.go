package web

import (
	"time"

	"github.com/heraldhq/herald/pkg/models"
)

// RescheduleItemRequest moves a queue item's dispatch time.
type RescheduleItemRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// CreateWorkflowRequest carries a full workflow definition.
type CreateWorkflowRequest struct {
	Name        string                 `json:"name"        validate:"required,min=3"`
	Description string                 `json:"description"`
	Trigger     models.WorkflowTrigger `json:"trigger"     validate:"required"`
	Steps       []*models.WorkflowStep `json:"steps"       validate:"required,min=1,dive"`
	IsActive    bool                   `json:"is_active"`
}

// UpdateWorkflowRequest applies partial updates to a definition.
type UpdateWorkflowRequest struct {
	Name        *string                 `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string                 `json:"description,omitempty"`
	Trigger     *models.WorkflowTrigger `json:"trigger,omitempty"`
	Steps       []*models.WorkflowStep  `json:"steps,omitempty"       validate:"omitempty,min=1,dive"`
}

// TriggerEventRequest is an ingested business event.
type TriggerEventRequest struct {
	Type      string         `json:"type"       validate:"required"`
	ContactID string         `json:"contact_id" validate:"required"`
	Data      map[string]any `json:"data,omitempty"`
}
