// Package protocol defines the collaborator contracts the pipeline depends on.
package protocol

import (
	"context"

	"github.com/heraldhq/herald/pkg/models"
)

// Dispatcher performs the actual delivery of one message. Implementations
// must be safe to retry with the same payload; the queue retries on
// transient failure.
type Dispatcher interface {
	Send(ctx context.Context, item *models.QueueItem) error
	Name() string
}
