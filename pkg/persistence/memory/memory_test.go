package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/persistence"
)

func pendingItem(id string, priority models.Priority, scheduledAt time.Time) *models.QueueItem {
	return &models.QueueItem{
		ID:          id,
		Recipient:   "ana@example.com",
		Priority:    priority,
		Status:      models.QueueItemPending,
		ScheduledAt: scheduledAt,
		MaxAttempts: 3,
	}
}

func TestListReadyOrdersByPriorityThenTime(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPersistence().QueueItems()
	now := time.Now()

	// A low item scheduled an hour ago must still yield to a fresh high item.
	require.NoError(t, repo.Save(ctx, pendingItem("low-old", models.PriorityLow, now.Add(-time.Hour))))
	require.NoError(t, repo.Save(ctx, pendingItem("high-new", models.PriorityHigh, now.Add(-time.Second))))
	require.NoError(t, repo.Save(ctx, pendingItem("normal-old", models.PriorityNormal, now.Add(-30*time.Minute))))
	require.NoError(t, repo.Save(ctx, pendingItem("normal-new", models.PriorityNormal, now.Add(-time.Minute))))
	require.NoError(t, repo.Save(ctx, pendingItem("future", models.PriorityHigh, now.Add(time.Hour))))

	ready, err := repo.ListReady(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, ready, 4)

	ids := []string{ready[0].ID, ready[1].ID, ready[2].ID, ready[3].ID}
	assert.Equal(t, []string{"high-new", "normal-old", "normal-new", "low-old"}, ids)
}

func TestListReadyHonorsLimitAndEligibility(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPersistence().QueueItems()
	now := time.Now()

	exhausted := pendingItem("exhausted", models.PriorityHigh, now.Add(-time.Minute))
	exhausted.Attempts = 3
	require.NoError(t, repo.Save(ctx, exhausted))

	processing := pendingItem("processing", models.PriorityHigh, now.Add(-time.Minute))
	processing.Status = models.QueueItemProcessing
	require.NoError(t, repo.Save(ctx, processing))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Save(ctx, pendingItem(id, models.PriorityNormal, now.Add(-time.Minute))))
	}

	ready, err := repo.ListReady(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, ready, 2)
}

func TestSaveAndGetReturnCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPersistence().QueueItems()

	item := pendingItem("item-1", models.PriorityNormal, time.Now())
	item.Metadata = map[string]any{"campaign_id": "camp-1"}
	require.NoError(t, repo.Save(ctx, item))

	// Mutating the saved value after the fact must not leak into the store.
	item.Recipient = "mutated@example.com"
	item.Metadata["campaign_id"] = "mutated"

	stored, err := repo.GetByID(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", stored.Recipient)
	assert.Equal(t, "camp-1", stored.Metadata["campaign_id"])

	stored.Status = models.QueueItemCancelled

	again, err := repo.GetByID(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, models.QueueItemPending, again.Status)
}

func TestGetByIDNotFound(t *testing.T) {
	t.Parallel()

	repo := NewPersistence().QueueItems()

	_, err := repo.GetByID(context.Background(), "missing")
	require.True(t, persistence.IsItemNotFound(err))
}

func TestListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPersistence().QueueItems()
	now := time.Now()

	sent := pendingItem("sent-1", models.PriorityNormal, now)
	sent.Status = models.QueueItemSent
	require.NoError(t, repo.Save(ctx, sent))

	other := pendingItem("pending-1", models.PriorityHigh, now)
	other.Recipient = "bob@example.com"
	require.NoError(t, repo.Save(ctx, other))

	byStatus, err := repo.List(ctx, persistence.ItemFilter{Status: models.QueueItemSent})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "sent-1", byStatus[0].ID)

	byRecipient, err := repo.List(ctx, persistence.ItemFilter{Recipient: "BOB@example.com"})
	require.NoError(t, err)
	require.Len(t, byRecipient, 1)
	assert.Equal(t, "pending-1", byRecipient[0].ID)
}

func TestPurgeTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPersistence().QueueItems()
	old := time.Now().Add(-48 * time.Hour)

	oldSent := pendingItem("old-sent", models.PriorityNormal, old)
	oldSent.Status = models.QueueItemSent
	oldSent.UpdatedAt = old
	require.NoError(t, repo.Save(ctx, oldSent))

	oldCancelled := pendingItem("old-cancelled", models.PriorityNormal, old)
	oldCancelled.Status = models.QueueItemCancelled
	oldCancelled.UpdatedAt = old
	require.NoError(t, repo.Save(ctx, oldCancelled))

	// Failed items survive the purge so they stay retryable.
	oldFailed := pendingItem("old-failed", models.PriorityNormal, old)
	oldFailed.Status = models.QueueItemFailed
	oldFailed.UpdatedAt = old
	require.NoError(t, repo.Save(ctx, oldFailed))

	freshSent := pendingItem("fresh-sent", models.PriorityNormal, time.Now())
	freshSent.Status = models.QueueItemSent
	freshSent.UpdatedAt = time.Now()
	require.NoError(t, repo.Save(ctx, freshSent))

	removed, err := repo.PurgeTerminal(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = repo.GetByID(ctx, "old-sent")
	require.True(t, persistence.IsItemNotFound(err))

	_, err = repo.GetByID(ctx, "old-failed")
	require.NoError(t, err)

	_, err = repo.GetByID(ctx, "fresh-sent")
	require.NoError(t, err)
}

func TestCountByStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPersistence().QueueItems()
	now := time.Now()

	for i, status := range []models.QueueItemStatus{
		models.QueueItemPending, models.QueueItemPending,
		models.QueueItemSent, models.QueueItemFailed,
	} {
		item := pendingItem(string(rune('a'+i)), models.PriorityNormal, now)
		item.Status = status
		require.NoError(t, repo.Save(ctx, item))
	}

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.QueueItemPending])
	assert.Equal(t, 1, counts[models.QueueItemSent])
	assert.Equal(t, 1, counts[models.QueueItemFailed])
}

func TestExecutionListScheduledWake(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPersistence().Executions()

	later := time.Now().Add(time.Hour)
	sooner := time.Now().Add(time.Minute)

	require.NoError(t, repo.Save(ctx, &models.WorkflowExecution{
		ID: "later", WorkflowID: "wf-1", Status: models.ExecutionActive, WakeAt: &later,
	}))
	require.NoError(t, repo.Save(ctx, &models.WorkflowExecution{
		ID: "sooner", WorkflowID: "wf-1", Status: models.ExecutionActive, WakeAt: &sooner,
	}))
	require.NoError(t, repo.Save(ctx, &models.WorkflowExecution{
		ID: "no-wake", WorkflowID: "wf-1", Status: models.ExecutionActive,
	}))
	require.NoError(t, repo.Save(ctx, &models.WorkflowExecution{
		ID: "done", WorkflowID: "wf-1", Status: models.ExecutionCompleted, WakeAt: &sooner,
	}))

	scheduled, err := repo.ListScheduledWake(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 2)
	assert.Equal(t, "sooner", scheduled[0].ID)
	assert.Equal(t, "later", scheduled[1].ID)
}

func TestWorkflowListActive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewPersistence().Workflows()

	require.NoError(t, repo.Save(ctx, &models.Workflow{
		ID: "active", Name: "Active Flow", IsActive: true, CreatedAt: time.Now(),
	}))
	require.NoError(t, repo.Save(ctx, &models.Workflow{
		ID: "inactive", Name: "Paused Flow", CreatedAt: time.Now(),
	}))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "active", active[0].ID)
}
