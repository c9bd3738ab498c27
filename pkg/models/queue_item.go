// Package models defines the core domain models for the email delivery pipeline.
package models

import "time"

// Priority orders queue items within a scheduler tick. Higher priority items
// are always admitted before lower priority ones, regardless of schedule time.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Weight returns the sort weight for the ready-set ordering.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the priority is one of the three known values.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityNormal || p == PriorityLow
}

// QueueItemStatus represents the lifecycle state of a queue item.
type QueueItemStatus string

const (
	QueueItemPending    QueueItemStatus = "pending"
	QueueItemProcessing QueueItemStatus = "processing"
	QueueItemSent       QueueItemStatus = "sent"
	QueueItemFailed     QueueItemStatus = "failed"
	QueueItemCancelled  QueueItemStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal items are immutable.
func (s QueueItemStatus) Terminal() bool {
	return s == QueueItemSent || s == QueueItemFailed || s == QueueItemCancelled
}

// EmailPayload is the message content of one send job.
type EmailPayload struct {
	Subject      string            `json:"subject"                 validate:"required"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]any    `json:"template_data,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// QueueItem is one outbound send job with its retry state.
//
// Invariants: Attempts never exceeds MaxAttempts; status only moves
// pending -> processing -> {sent, failed} or pending -> cancelled.
type QueueItem struct {
	ID          string          `json:"id"`
	Recipient   string          `json:"recipient"    validate:"required,email"`
	Payload     EmailPayload    `json:"payload"`
	Priority    Priority        `json:"priority"     validate:"required"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts" validate:"min=1"`
	Status      QueueItemStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Ready reports whether the item is eligible for dispatch at the given time.
func (i *QueueItem) Ready(now time.Time) bool {
	return i.Status == QueueItemPending &&
		!i.ScheduledAt.After(now) &&
		i.Attempts < i.MaxAttempts
}
