// Package queued adapts the email queue into a Dispatcher, so workflow and
// campaign sends go through queue admission instead of delivering inline.
package queued

import (
	"context"
	"fmt"

	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/queue"
)

type Queued struct {
	queue *queue.Queue
}

func New(q *queue.Queue) *Queued {
	return &Queued{queue: q}
}

func (d *Queued) Name() string {
	return "queued"
}

// Send admits the item into the queue. Delivery happens asynchronously on a
// later scheduler tick; an error here means admission was rejected.
func (d *Queued) Send(ctx context.Context, item *models.QueueItem) error {
	_, err := d.queue.Add(ctx, queue.AddRequest{
		Recipient:   item.Recipient,
		Payload:     item.Payload,
		Priority:    item.Priority,
		MaxAttempts: item.MaxAttempts,
		Metadata:    item.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	return nil
}
