// Package persistence provides the data storage abstraction for the pipeline.
//
// The queue and the engine talk only to these interfaces, so the in-memory
// store and the PostgreSQL store are interchangeable. A conforming
// implementation must survive a restart without losing attempts, schedule
// times, or execution history.
package persistence

import (
	"context"
	"time"

	"github.com/heraldhq/herald/pkg/models"
)

type Persistence interface {
	QueueItems() QueueItemRepository
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Campaigns() CampaignRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// ItemFilter narrows queue item listings. Zero values mean "any".
type ItemFilter struct {
	Status    models.QueueItemStatus
	Priority  models.Priority
	Recipient string
	Limit     int
}

type QueueItemRepository interface {
	GetByID(ctx context.Context, id string) (*models.QueueItem, error)
	Save(ctx context.Context, item *models.QueueItem) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ItemFilter) ([]*models.QueueItem, error)

	// ListReady returns pending items due at or before now with attempts
	// remaining, ordered by priority weight descending then scheduled_at
	// ascending.
	ListReady(ctx context.Context, now time.Time, limit int) ([]*models.QueueItem, error)

	// PurgeTerminal removes sent and cancelled items updated before the
	// cutoff, returning how many were removed.
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error)

	CountByStatus(ctx context.Context) (map[models.QueueItemStatus]int, error)
}

type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	ListActive(ctx context.Context) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

type ExecutionRepository interface {
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	Save(ctx context.Context, execution *models.WorkflowExecution) error

	// ListActive returns active executions, most recent first, optionally
	// filtered by workflow id ("" means all).
	ListActive(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)

	// ListScheduledWake returns active executions with a pending wake time,
	// used to recover wait continuations after a restart.
	ListScheduledWake(ctx context.Context) ([]*models.WorkflowExecution, error)
}

type CampaignRepository interface {
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	Save(ctx context.Context, campaign *models.Campaign) error
	List(ctx context.Context) ([]*models.Campaign, error)
}
