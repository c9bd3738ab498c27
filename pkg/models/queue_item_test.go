package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriorityWeightOrdering(t *testing.T) {
	t.Parallel()

	assert.Greater(t, PriorityHigh.Weight(), PriorityNormal.Weight())
	assert.Greater(t, PriorityNormal.Weight(), PriorityLow.Weight())
	assert.Equal(t, 0, Priority("urgent").Weight())
}

func TestPriorityValid(t *testing.T) {
	t.Parallel()

	assert.True(t, PriorityHigh.Valid())
	assert.True(t, PriorityNormal.Valid())
	assert.True(t, PriorityLow.Valid())
	assert.False(t, Priority("urgent").Valid())
	assert.False(t, Priority("").Valid())
}

func TestQueueItemStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, QueueItemSent.Terminal())
	assert.True(t, QueueItemFailed.Terminal())
	assert.True(t, QueueItemCancelled.Terminal())
	assert.False(t, QueueItemPending.Terminal())
	assert.False(t, QueueItemProcessing.Terminal())
}

func TestQueueItemReady(t *testing.T) {
	t.Parallel()

	now := time.Now()

	item := &QueueItem{
		Status:      QueueItemPending,
		ScheduledAt: now.Add(-time.Minute),
		Attempts:    0,
		MaxAttempts: 3,
	}
	assert.True(t, item.Ready(now))

	future := *item
	future.ScheduledAt = now.Add(time.Minute)
	assert.False(t, future.Ready(now))

	exhausted := *item
	exhausted.Attempts = 3
	assert.False(t, exhausted.Ready(now))

	processing := *item
	processing.Status = QueueItemProcessing
	assert.False(t, processing.Ready(now))
}

func TestContactTemplateContext(t *testing.T) {
	t.Parallel()

	contact := &Contact{
		ID:        "contact-1",
		Email:     "ana@example.com",
		FirstName: "Ana",
		LastName:  "Reyes",
		Attributes: map[string]any{
			"plan": "pro",
		},
	}

	ctx := contact.TemplateContext()
	assert.Equal(t, "ana@example.com", ctx["email"])
	assert.Equal(t, "Ana", ctx["firstName"])
	assert.Equal(t, "Reyes", ctx["lastName"])
	assert.Equal(t, "pro", ctx["plan"])
}
