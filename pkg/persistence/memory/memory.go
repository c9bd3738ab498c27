// Package memory provides the in-process persistence implementation.
//
// All maps are guarded by a single RWMutex, which reproduces under real
// goroutines the serialization the original event loop gave implicitly.
// Values are copied on the way in and out, so callers can mutate their
// snapshots freely and nothing is stored until Save.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/persistence"
)

// Persistence implements persistence.Persistence with mutex-guarded maps.
type Persistence struct {
	store *store
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{store: newStore()}
}

func (p *Persistence) QueueItems() persistence.QueueItemRepository {
	return &queueItemRepository{store: p.store}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return &workflowRepository{store: p.store}
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return &executionRepository{store: p.store}
}

func (p *Persistence) Campaigns() persistence.CampaignRepository {
	return &campaignRepository{store: p.store}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

type store struct {
	mu         sync.RWMutex
	items      map[string]*models.QueueItem
	workflows  map[string]*models.Workflow
	executions map[string]*models.WorkflowExecution
	campaigns  map[string]*models.Campaign
}

func newStore() *store {
	return &store{
		items:      make(map[string]*models.QueueItem),
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*models.WorkflowExecution),
		campaigns:  make(map[string]*models.Campaign),
	}
}

type queueItemRepository struct {
	store *store
}

func (r *queueItemRepository) GetByID(_ context.Context, id string) (*models.QueueItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	item, ok := r.store.items[id]
	if !ok {
		return nil, persistence.NewStoreError("GetByID", "queue_item", id, persistence.ErrItemNotFound)
	}

	return copyItem(item), nil
}

func (r *queueItemRepository) Save(_ context.Context, item *models.QueueItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.items[item.ID] = copyItem(item)

	return nil
}

func (r *queueItemRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.items[id]; !ok {
		return persistence.NewStoreError("Delete", "queue_item", id, persistence.ErrItemNotFound)
	}

	delete(r.store.items, id)

	return nil
}

func (r *queueItemRepository) List(_ context.Context, filter persistence.ItemFilter) ([]*models.QueueItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	items := make([]*models.QueueItem, 0, len(r.store.items))

	for _, item := range r.store.items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}

		if filter.Priority != "" && item.Priority != filter.Priority {
			continue
		}

		if filter.Recipient != "" && !strings.EqualFold(item.Recipient, filter.Recipient) {
			continue
		}

		items = append(items, copyItem(item))
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}

	return items, nil
}

func (r *queueItemRepository) ListReady(_ context.Context, now time.Time, limit int) ([]*models.QueueItem, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ready := make([]*models.QueueItem, 0)

	for _, item := range r.store.items {
		if item.Ready(now) {
			ready = append(ready, copyItem(item))
		}
	}

	// Priority is the primary key: a low item scheduled earlier never jumps
	// ahead of a ready high item.
	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority.Weight() != ready[j].Priority.Weight() {
			return ready[i].Priority.Weight() > ready[j].Priority.Weight()
		}

		return ready[i].ScheduledAt.Before(ready[j].ScheduledAt)
	})

	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}

	return ready, nil
}

func (r *queueItemRepository) PurgeTerminal(_ context.Context, olderThan time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	removed := 0

	for id, item := range r.store.items {
		if item.Status != models.QueueItemSent && item.Status != models.QueueItemCancelled {
			continue
		}

		if item.UpdatedAt.Before(olderThan) {
			delete(r.store.items, id)

			removed++
		}
	}

	return removed, nil
}

func (r *queueItemRepository) CountByStatus(_ context.Context) (map[models.QueueItemStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[models.QueueItemStatus]int)

	for _, item := range r.store.items {
		counts[item.Status]++
	}

	return counts, nil
}

type workflowRepository struct {
	store *store
}

func (r *workflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(r.store.workflows))
	for _, wf := range r.store.workflows {
		workflows = append(workflows, copyWorkflow(wf))
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	wf, ok := r.store.workflows[id]
	if !ok {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return copyWorkflow(wf), nil
}

func (r *workflowRepository) ListActive(_ context.Context) ([]*models.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	active := make([]*models.Workflow, 0)

	for _, wf := range r.store.workflows {
		if wf.IsActive {
			active = append(active, copyWorkflow(wf))
		}
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})

	return active, nil
}

func (r *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.workflows[workflow.ID] = copyWorkflow(workflow)

	return nil
}

func (r *workflowRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.workflows[id]; !ok {
		return persistence.NewStoreError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	delete(r.store.workflows, id)

	return nil
}

type executionRepository struct {
	store *store
}

func (r *executionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	execution, ok := r.store.executions[id]
	if !ok {
		return nil, persistence.NewStoreError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	return copyExecution(execution), nil
}

func (r *executionRepository) Save(_ context.Context, execution *models.WorkflowExecution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.executions[execution.ID] = copyExecution(execution)

	return nil
}

func (r *executionRepository) ListActive(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	active := make([]*models.WorkflowExecution, 0)

	for _, execution := range r.store.executions {
		if execution.Status != models.ExecutionActive {
			continue
		}

		if workflowID != "" && execution.WorkflowID != workflowID {
			continue
		}

		active = append(active, copyExecution(execution))
	}

	sort.Slice(active, func(i, j int) bool {
		return active[i].StartedAt.After(active[j].StartedAt)
	})

	return active, nil
}

func (r *executionRepository) ListScheduledWake(_ context.Context) ([]*models.WorkflowExecution, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	scheduled := make([]*models.WorkflowExecution, 0)

	for _, execution := range r.store.executions {
		if execution.Status == models.ExecutionActive && execution.WakeAt != nil {
			scheduled = append(scheduled, copyExecution(execution))
		}
	}

	sort.Slice(scheduled, func(i, j int) bool {
		return scheduled[i].WakeAt.Before(*scheduled[j].WakeAt)
	})

	return scheduled, nil
}

type campaignRepository struct {
	store *store
}

func (r *campaignRepository) GetByID(_ context.Context, id string) (*models.Campaign, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	campaign, ok := r.store.campaigns[id]
	if !ok {
		return nil, persistence.NewStoreError("GetByID", "campaign", id, persistence.ErrCampaignNotFound)
	}

	return copyCampaign(campaign), nil
}

func (r *campaignRepository) Save(_ context.Context, campaign *models.Campaign) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.campaigns[campaign.ID] = copyCampaign(campaign)

	return nil
}

func (r *campaignRepository) List(_ context.Context) ([]*models.Campaign, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	campaigns := make([]*models.Campaign, 0, len(r.store.campaigns))
	for _, campaign := range r.store.campaigns {
		campaigns = append(campaigns, copyCampaign(campaign))
	}

	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].CreatedAt.Before(campaigns[j].CreatedAt)
	})

	return campaigns, nil
}
