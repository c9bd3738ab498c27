// Package queue implements the outbound email queue: admission, priority
// ordering, bounded-concurrency dispatch, and retry with capped exponential
// backoff.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/heraldhq/herald/pkg/dispatch"
	"github.com/heraldhq/herald/pkg/eventbus"
	"github.com/heraldhq/herald/pkg/events"
	"github.com/heraldhq/herald/pkg/metrics"
	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/otelhelper"
	"github.com/heraldhq/herald/pkg/persistence"
	"github.com/heraldhq/herald/pkg/protocol"
)

const (
	defaultTickInterval    = 5 * time.Second
	defaultMaxConcurrency  = 5
	defaultBaseRetryDelay  = time.Minute
	defaultMaxRetryDelay   = time.Hour
	defaultShutdownTimeout = 30 * time.Second
	defaultMaxAttempts     = 3
	defaultPurgeAge        = 7 * 24 * time.Hour
)

var (
	ErrInvalidPriority    = errors.New("invalid priority")
	ErrInvalidMaxAttempts = errors.New("max attempts must be at least 1")
	ErrMissingRecipient   = errors.New("recipient is required")
	ErrItemProcessing     = errors.New("item is currently processing")
	ErrItemTerminal       = errors.New("item is in a terminal status")
	ErrItemNotFailed      = errors.New("item is not failed")
	ErrItemSent           = errors.New("item is already sent")
)

// Config controls the scheduler. Zero values fall back to defaults.
type Config struct {
	TickInterval    time.Duration
	MaxConcurrency  int
	BaseRetryDelay  time.Duration
	MaxRetryDelay   time.Duration
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}

	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}

	if c.BaseRetryDelay <= 0 {
		c.BaseRetryDelay = defaultBaseRetryDelay
	}

	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = defaultMaxRetryDelay
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}

	return c
}

// AddRequest describes a send job to admit.
type AddRequest struct {
	Recipient   string              `json:"recipient"`
	Payload     models.EmailPayload `json:"payload"`
	Priority    models.Priority     `json:"priority,omitempty"`
	ScheduledAt *time.Time          `json:"scheduled_at,omitempty"`
	MaxAttempts int                 `json:"max_attempts,omitempty"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
}

// Queue is the email queue scheduler. A single Queue owns the tick loop;
// the mutex serializes tick admission against external mutations.
type Queue struct {
	items      persistence.QueueItemRepository
	dispatcher protocol.Dispatcher
	eventBus   eventbus.EventBus
	logger     *slog.Logger
	tracer     trace.Tracer
	config     Config

	mu             sync.Mutex
	inFlight       map[string]struct{}
	totalProcessed int64
	totalTime      time.Duration

	stopCh     chan struct{}
	stopOnce   sync.Once
	tickWG     sync.WaitGroup
	inFlightWG sync.WaitGroup
	cleaner    *cron.Cron
}

func New(persist persistence.Persistence, dispatcher protocol.Dispatcher, eventBus eventbus.EventBus, logger *slog.Logger, config Config) *Queue {
	return &Queue{
		items:      persist.QueueItems(),
		dispatcher: dispatcher,
		eventBus:   eventBus,
		logger:     logger.With("module", "queue"),
		tracer:     otel.Tracer("herald.queue"),
		config:     config.withDefaults(),
		inFlight:   make(map[string]struct{}),
		stopCh:     make(chan struct{}),
	}
}

// Add validates and admits one send job. It never touches the dispatcher.
func (q *Queue) Add(ctx context.Context, req AddRequest) (*models.QueueItem, error) {
	if req.Recipient == "" {
		return nil, ErrMissingRecipient
	}

	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, req.Priority)
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultMaxAttempts
	}

	if maxAttempts < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMaxAttempts, req.MaxAttempts)
	}

	now := time.Now()

	scheduledAt := now
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}

	item := &models.QueueItem{
		ID:          uuid.New().String(),
		Recipient:   req.Recipient,
		Payload:     req.Payload,
		Priority:    priority,
		ScheduledAt: scheduledAt,
		MaxAttempts: maxAttempts,
		Status:      models.QueueItemPending,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := q.items.Save(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to save queue item: %w", err)
	}

	metrics.ItemEnqueued()
	q.publish(ctx, item.ID, events.QueueItemEnqueued{
		BaseEvent: q.baseEvent(events.QueueItemEnqueuedEvent),
		ItemID:    item.ID,
		Recipient: item.Recipient,
		Priority:  string(item.Priority),
	})

	q.logger.InfoContext(ctx, "Queue item admitted",
		"item_id", item.ID, "recipient", item.Recipient, "priority", item.Priority)

	return item, nil
}

// Start launches the scheduler tick loop. It returns immediately; the loop
// runs until Shutdown or ctx cancellation.
func (q *Queue) Start(ctx context.Context) {
	q.tickWG.Add(1)

	go func() {
		defer q.tickWG.Done()

		ticker := time.NewTicker(q.config.TickInterval)
		defer ticker.Stop()

		q.logger.InfoContext(ctx, "Queue scheduler started",
			"tick_interval", q.config.TickInterval,
			"max_concurrency", q.config.MaxConcurrency)

		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stopCh:
				return
			case <-ticker.C:
				q.tick(ctx)
			}
		}
	}()
}

// tick admits ready items up to the concurrency budget. Internal failures end
// the tick early; the next tick proceeds normally.
func (q *Queue) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.ErrorContext(ctx, "Panic in scheduler tick", "panic", r)
		}
	}()

	q.mu.Lock()
	capacity := q.config.MaxConcurrency - len(q.inFlight)
	q.mu.Unlock()

	if capacity <= 0 {
		return
	}

	ready, err := q.items.ListReady(ctx, time.Now(), capacity+len(q.inFlight))
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to list ready items", "error", err)

		return
	}

	for _, item := range ready {
		if capacity <= 0 {
			break
		}

		if !q.admit(item.ID) {
			continue
		}

		capacity--

		q.inFlightWG.Add(1)
		metrics.InFlightInc()

		go q.process(ctx, item)
	}
}

// admit reserves an in-flight slot for the item, refusing duplicates.
func (q *Queue) admit(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.inFlight[id]; exists {
		return false
	}

	q.inFlight[id] = struct{}{}

	return true
}

func (q *Queue) process(ctx context.Context, item *models.QueueItem) {
	defer func() {
		q.mu.Lock()
		delete(q.inFlight, item.ID)
		q.mu.Unlock()

		metrics.InFlightDec()
		q.inFlightWG.Done()
	}()

	ctx, span := otelhelper.StartSpan(ctx, q.tracer, "queue.dispatch",
		attribute.String(otelhelper.QueueItemIDKey, item.ID),
		attribute.String(otelhelper.PriorityKey, string(item.Priority)),
		attribute.Int(otelhelper.AttemptKey, item.Attempts+1),
		attribute.String(otelhelper.DispatcherKey, q.dispatcher.Name()),
	)
	defer span.End()

	item.Status = models.QueueItemProcessing
	item.Attempts++
	item.UpdatedAt = time.Now()

	err := q.items.Save(ctx, item)
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to mark item processing", "item_id", item.ID, "error", err)

		return
	}

	start := time.Now()
	sendErr := q.dispatcher.Send(ctx, item)
	latency := time.Since(start)

	if sendErr == nil {
		q.recordSuccess(ctx, item, latency)

		return
	}

	otelhelper.SetError(span, sendErr)
	q.recordFailure(ctx, item, sendErr)
}

func (q *Queue) recordSuccess(ctx context.Context, item *models.QueueItem, latency time.Duration) {
	item.Status = models.QueueItemSent
	item.Error = ""
	item.UpdatedAt = time.Now()

	err := q.items.Save(ctx, item)
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to mark item sent", "item_id", item.ID, "error", err)

		return
	}

	q.mu.Lock()
	q.totalProcessed++
	q.totalTime += latency
	q.mu.Unlock()

	metrics.ItemSent()
	metrics.ObserveDispatch(latency)

	q.publish(ctx, item.ID, events.QueueItemSent{
		BaseEvent: q.baseEvent(events.QueueItemSentEvent),
		ItemID:    item.ID,
		Recipient: item.Recipient,
		Attempts:  item.Attempts,
		Latency:   latency,
	})

	q.logger.InfoContext(ctx, "Queue item sent",
		"item_id", item.ID, "attempts", item.Attempts, "latency", latency)
}

func (q *Queue) recordFailure(ctx context.Context, item *models.QueueItem, sendErr error) {
	permanent := dispatch.IsPermanent(sendErr)
	exhausted := item.Attempts >= item.MaxAttempts

	if permanent || exhausted {
		item.Status = models.QueueItemFailed
		item.Error = sendErr.Error()
		item.UpdatedAt = time.Now()

		err := q.items.Save(ctx, item)
		if err != nil {
			q.logger.ErrorContext(ctx, "Failed to mark item failed", "item_id", item.ID, "error", err)

			return
		}

		metrics.ItemFailed()
		q.publish(ctx, item.ID, events.QueueItemFailed{
			BaseEvent: q.baseEvent(events.QueueItemFailedEvent),
			ItemID:    item.ID,
			Recipient: item.Recipient,
			Attempts:  item.Attempts,
			Error:     item.Error,
		})

		q.logger.WarnContext(ctx, "Queue item failed",
			"item_id", item.ID, "attempts", item.Attempts,
			"permanent", permanent, "error", sendErr)

		return
	}

	delay := q.retryDelay(item.Attempts)
	item.Status = models.QueueItemPending
	item.Error = sendErr.Error()
	item.ScheduledAt = time.Now().Add(delay)
	item.UpdatedAt = time.Now()

	err := q.items.Save(ctx, item)
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to reschedule item", "item_id", item.ID, "error", err)

		return
	}

	metrics.ItemRetried()
	q.logger.InfoContext(ctx, "Queue item rescheduled for retry",
		"item_id", item.ID, "attempts", item.Attempts, "delay", delay, "error", sendErr)
}

// retryDelay computes base * 2^(attempts-1), capped at MaxRetryDelay.
func (q *Queue) retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	delay := q.config.BaseRetryDelay

	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= q.config.MaxRetryDelay {
			return q.config.MaxRetryDelay
		}
	}

	if delay > q.config.MaxRetryDelay {
		return q.config.MaxRetryDelay
	}

	return delay
}

// Cancel marks a pending item cancelled. Items mid-dispatch cannot be
// interrupted, only their outcome is recorded.
func (q *Queue) Cancel(ctx context.Context, id string) (*models.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if item.Status == models.QueueItemProcessing {
		return nil, ErrItemProcessing
	}

	if item.Status.Terminal() {
		return nil, ErrItemTerminal
	}

	item.Status = models.QueueItemCancelled
	item.UpdatedAt = time.Now()

	err = q.items.Save(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel item: %w", err)
	}

	return item, nil
}

// Retry resets a failed item for a fresh attempt cycle.
func (q *Queue) Retry(ctx context.Context, id string) (*models.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if item.Status != models.QueueItemFailed {
		return nil, ErrItemNotFailed
	}

	item.Status = models.QueueItemPending
	item.Attempts = 0
	item.Error = ""
	item.ScheduledAt = time.Now()
	item.UpdatedAt = time.Now()

	err = q.items.Save(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to retry item: %w", err)
	}

	return item, nil
}

// Reschedule moves an item's dispatch time. Sent and processing items are
// immutable here.
func (q *Queue) Reschedule(ctx context.Context, id string, at time.Time) (*models.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if item.Status == models.QueueItemProcessing {
		return nil, ErrItemProcessing
	}

	if item.Status == models.QueueItemSent {
		return nil, ErrItemSent
	}

	item.ScheduledAt = at
	item.UpdatedAt = time.Now()

	err = q.items.Save(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to reschedule item: %w", err)
	}

	return item, nil
}

// Delete removes an item outright. Processing items cannot be deleted.
func (q *Queue) Delete(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.items.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if item.Status == models.QueueItemProcessing {
		return ErrItemProcessing
	}

	return q.items.Delete(ctx, id)
}

// ClearCompleted purges sent and cancelled items older than the given age.
// A zero age uses the default cutoff of 7 days.
func (q *Queue) ClearCompleted(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = defaultPurgeAge
	}

	removed, err := q.items.PurgeTerminal(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed items: %w", err)
	}

	if removed > 0 {
		q.logger.InfoContext(ctx, "Purged completed queue items", "removed", removed)
	}

	return removed, nil
}

func (q *Queue) GetItem(ctx context.Context, id string) (*models.QueueItem, error) {
	return q.items.GetByID(ctx, id)
}

func (q *Queue) GetItems(ctx context.Context, filter persistence.ItemFilter) ([]*models.QueueItem, error) {
	return q.items.List(ctx, filter)
}

// Shutdown stops the tick loop and waits up to ShutdownTimeout for in-flight
// dispatches, returning regardless.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.stopOnce.Do(func() {
		close(q.stopCh)
	})

	q.tickWG.Wait()

	if q.cleaner != nil {
		q.cleaner.Stop()
	}

	done := make(chan struct{})

	go func() {
		q.inFlightWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.InfoContext(ctx, "Queue shut down cleanly")

		return nil
	case <-time.After(q.config.ShutdownTimeout):
	case <-ctx.Done():
	}

	q.mu.Lock()
	remaining := len(q.inFlight)
	q.mu.Unlock()

	q.logger.WarnContext(ctx, "Queue shutdown timed out with items in flight", "in_flight", remaining)

	return nil
}

// StartCleaner schedules ClearCompleted on the given cron expression.
func (q *Queue) StartCleaner(ctx context.Context, cronExpr string) error {
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}

	q.cleaner = cron.New()

	_, err := q.cleaner.AddFunc(cronExpr, func() {
		_, err := q.ClearCompleted(ctx, defaultPurgeAge)
		if err != nil {
			q.logger.ErrorContext(ctx, "Scheduled queue cleanup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule queue cleaner: %w", err)
	}

	q.cleaner.Start()
	q.logger.InfoContext(ctx, "Queue cleaner scheduled", "cron", cronExpr)

	return nil
}

func (q *Queue) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        q.eventBus.GenerateID(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func (q *Queue) publish(ctx context.Context, key string, event eventbus.Event) {
	err := q.eventBus.Publish(ctx, key, event)
	if err != nil {
		q.logger.ErrorContext(ctx, "Failed to publish queue event",
			"event_type", event.GetType(), "error", err)
	}
}
