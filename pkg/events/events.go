// Package events defines event types for delivery and workflow lifecycle notifications.
package events

import "time"

type EventType string

// Topic is the bus topic all pipeline events are published on.
const Topic = "herald.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Queue lifecycle events.
	QueueItemEnqueuedEvent EventType = "queue.item.enqueued"
	QueueItemSentEvent     EventType = "queue.item.sent"
	QueueItemFailedEvent   EventType = "queue.item.failed"

	// Workflow execution lifecycle events.
	ExecutionStartedEvent   EventType = "workflow.execution.started"
	ExecutionCompletedEvent EventType = "workflow.execution.completed"
	ExecutionFailedEvent    EventType = "workflow.execution.failed"

	// Campaign lifecycle events.
	CampaignStartedEvent   EventType = "campaign.started"
	CampaignCompletedEvent EventType = "campaign.completed"
	CampaignFailedEvent    EventType = "campaign.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type QueueItemEnqueued struct {
	BaseEvent

	ItemID    string `json:"item_id"`
	Recipient string `json:"recipient"`
	Priority  string `json:"priority"`
}

func (e QueueItemEnqueued) GetType() EventType {
	return QueueItemEnqueuedEvent
}

type QueueItemSent struct {
	BaseEvent

	ItemID    string        `json:"item_id"`
	Recipient string        `json:"recipient"`
	Attempts  int           `json:"attempts"`
	Latency   time.Duration `json:"latency"`
}

func (e QueueItemSent) GetType() EventType {
	return QueueItemSentEvent
}

type QueueItemFailed struct {
	BaseEvent

	ItemID    string `json:"item_id"`
	Recipient string `json:"recipient"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error"`
}

func (e QueueItemFailed) GetType() EventType {
	return QueueItemFailedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	ContactID   string         `json:"contact_id"`
	TriggerType string         `json:"trigger_type"`
	Variables   map[string]any `json:"variables,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string        `json:"execution_id"`
	WorkflowID    string        `json:"workflow_id"`
	StepsExecuted int           `json:"steps_executed"`
	Duration      time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	StepID      string `json:"step_id"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type CampaignStarted struct {
	BaseEvent

	CampaignID string `json:"campaign_id"`
	Recipients int    `json:"recipients"`
}

func (e CampaignStarted) GetType() EventType {
	return CampaignStartedEvent
}

type CampaignCompleted struct {
	BaseEvent

	CampaignID string `json:"campaign_id"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}

func (e CampaignCompleted) GetType() EventType {
	return CampaignCompletedEvent
}

type CampaignFailed struct {
	BaseEvent

	CampaignID string `json:"campaign_id"`
	Error      string `json:"error"`
}

func (e CampaignFailed) GetType() EventType {
	return CampaignFailedEvent
}
