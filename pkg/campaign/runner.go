// Package campaign implements the bulk send driver: batched, throttled,
// partial-failure-tolerant delivery of a pre-resolved recipient list.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/heraldhq/herald/pkg/eventbus"
	"github.com/heraldhq/herald/pkg/events"
	"github.com/heraldhq/herald/pkg/models"
	"github.com/heraldhq/herald/pkg/otelhelper"
	"github.com/heraldhq/herald/pkg/persistence"
	"github.com/heraldhq/herald/pkg/protocol"
	"github.com/heraldhq/herald/pkg/template"
)

const defaultBatchSize = 100

var (
	ErrNotSendable = errors.New("campaign is not in a sendable status")
	ErrNotSending  = errors.New("campaign is not sending")
	ErrNotPaused   = errors.New("campaign is not paused")
	ErrSendAborted = errors.New("campaign send aborted")
)

// Config controls batching defaults for campaigns that do not set their own.
type Config struct {
	BatchSize int
}

// Runner drives campaign sends. Pause is cooperative: the running batch
// finishes, then the loop observes the pause flag and stops.
type Runner struct {
	campaigns  persistence.CampaignRepository
	dispatcher protocol.Dispatcher
	eventBus   eventbus.EventBus
	logger     *slog.Logger
	tracer     trace.Tracer
	config     Config

	mu     sync.Mutex
	paused map[string]bool
}

func NewRunner(persist persistence.Persistence, dispatcher protocol.Dispatcher, eventBus eventbus.EventBus, logger *slog.Logger, config Config) *Runner {
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}

	return &Runner{
		campaigns:  persist.Campaigns(),
		dispatcher: dispatcher,
		eventBus:   eventBus,
		logger:     logger.With("module", "campaign"),
		tracer:     otel.Tracer("herald.campaign"),
		config:     config,
		paused:     make(map[string]bool),
	}
}

// Send starts the batch loop for a draft or scheduled campaign and blocks
// until the campaign finishes, pauses, or the context is cancelled.
func (r *Runner) Send(ctx context.Context, id string) error {
	campaign, err := r.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if campaign.Status != models.CampaignDraft && campaign.Status != models.CampaignScheduled {
		return fmt.Errorf("%w: %s", ErrNotSendable, campaign.Status)
	}

	return r.run(ctx, campaign)
}

// Resume re-enters the batch loop for a paused campaign. Recipients already
// sent are skipped by their status.
func (r *Runner) Resume(ctx context.Context, id string) error {
	campaign, err := r.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if campaign.Status != models.CampaignPaused {
		return fmt.Errorf("%w: %s", ErrNotPaused, campaign.Status)
	}

	r.setPaused(id, false)

	return r.run(ctx, campaign)
}

// Pause asks a sending campaign to stop after its current batch.
func (r *Runner) Pause(ctx context.Context, id string) error {
	campaign, err := r.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if campaign.Status != models.CampaignSending {
		return fmt.Errorf("%w: %s", ErrNotSending, campaign.Status)
	}

	r.setPaused(id, true)

	campaign.Status = models.CampaignPaused
	campaign.UpdatedAt = time.Now()

	err = r.campaigns.Save(ctx, campaign)
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}

	r.logger.InfoContext(ctx, "Campaign paused", "campaign_id", id)

	return nil
}

func (r *Runner) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	return r.campaigns.GetByID(ctx, id)
}

func (r *Runner) ListCampaigns(ctx context.Context) ([]*models.Campaign, error) {
	return r.campaigns.List(ctx)
}

func (r *Runner) run(ctx context.Context, campaign *models.Campaign) error {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "campaign.send",
		attribute.String(otelhelper.CampaignIDKey, campaign.ID),
	)
	defer span.End()

	campaign.Status = models.CampaignSending
	campaign.UpdatedAt = time.Now()

	err := r.campaigns.Save(ctx, campaign)
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}

	r.publish(ctx, campaign.ID, events.CampaignStarted{
		BaseEvent:  r.baseEvent(events.CampaignStartedEvent),
		CampaignID: campaign.ID,
		Recipients: len(campaign.Recipients),
	})

	r.logger.InfoContext(ctx, "Campaign sending",
		"campaign_id", campaign.ID, "recipients", len(campaign.Recipients))

	err = r.sendBatches(ctx, campaign)
	if err != nil {
		if errors.Is(err, ErrSendAborted) {
			// Paused or cancelled mid-send; status was already recorded.
			return nil
		}

		otelhelper.SetError(span, err)

		// Unexpected error reverts the campaign to draft as a coarse retry
		// point. Recipients already sent keep their status.
		campaign.Status = models.CampaignDraft
		campaign.UpdatedAt = time.Now()

		saveErr := r.campaigns.Save(ctx, campaign)
		if saveErr != nil {
			r.logger.ErrorContext(ctx, "Failed to revert campaign", "campaign_id", campaign.ID, "error", saveErr)
		}

		r.publish(ctx, campaign.ID, events.CampaignFailed{
			BaseEvent:  r.baseEvent(events.CampaignFailedEvent),
			CampaignID: campaign.ID,
			Error:      err.Error(),
		})

		return fmt.Errorf("campaign send failed: %w", err)
	}

	return r.finish(ctx, campaign)
}

func (r *Runner) sendBatches(ctx context.Context, campaign *models.Campaign) error {
	batchSize := campaign.Settings.BatchSize
	if batchSize <= 0 {
		batchSize = r.config.BatchSize
	}

	pending := pendingRecipients(campaign)

	for start := 0; start < len(pending); start += batchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrSendAborted, err)
		}

		if r.isPaused(campaign.ID) {
			// Re-record the paused status in case the last progress save
			// overwrote it with "sending".
			campaign.Status = models.CampaignPaused
			campaign.UpdatedAt = time.Now()

			err := r.campaigns.Save(ctx, campaign)
			if err != nil {
				return fmt.Errorf("failed to save campaign: %w", err)
			}

			return ErrSendAborted
		}

		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}

		batch := pending[start:end]
		r.sendBatch(ctx, campaign, batch)

		campaign.RecomputeStats()
		campaign.UpdatedAt = time.Now()

		err := r.campaigns.Save(ctx, campaign)
		if err != nil {
			return fmt.Errorf("failed to save campaign progress: %w", err)
		}

		if end < len(pending) {
			err = r.throttle(ctx, campaign.Settings.SendRate, len(batch))
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// sendBatch dispatches every recipient of the batch concurrently and waits
// for all outcomes. Individual failures never abort the batch.
func (r *Runner) sendBatch(ctx context.Context, campaign *models.Campaign, batch []*models.Recipient) {
	var wg sync.WaitGroup

	for _, recipient := range batch {
		wg.Add(1)

		go func(recipient *models.Recipient) {
			defer wg.Done()

			err := r.sendRecipient(ctx, campaign, recipient)
			now := time.Now()

			if err != nil {
				recipient.Status = models.RecipientFailed
				recipient.Error = err.Error()

				r.logger.WarnContext(ctx, "Campaign recipient failed",
					"campaign_id", campaign.ID, "email", recipient.Email, "error", err)

				return
			}

			recipient.Status = models.RecipientSent
			recipient.SentAt = &now
			recipient.Error = ""
		}(recipient)
	}

	wg.Wait()
}

func (r *Runner) sendRecipient(ctx context.Context, campaign *models.Campaign, recipient *models.Recipient) error {
	templateCtx := map[string]any{
		"email":      recipient.Email,
		"campaign":   campaign.Name,
		"contact_id": recipient.ContactID,
	}

	item := &models.QueueItem{
		Recipient: recipient.Email,
		Payload: models.EmailPayload{
			Subject: template.Render(campaign.Subject, templateCtx),
			Body:    template.Render(campaign.Body, templateCtx),
		},
		Priority: models.PriorityNormal,
		Metadata: map[string]any{
			"campaign_id": campaign.ID,
			"contact_id":  recipient.ContactID,
		},
	}

	return r.dispatcher.Send(ctx, item)
}

// throttle sleeps between batches to honor the campaign's hourly rate cap.
func (r *Runner) throttle(ctx context.Context, rate models.SendRate, batchSize int) error {
	if rate.MaxPerHour <= 0 {
		return nil
	}

	delay := time.Duration(float64(time.Hour) / float64(rate.MaxPerHour) * float64(batchSize))

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendAborted, ctx.Err())
	case <-time.After(delay):
		return nil
	}
}

func (r *Runner) finish(ctx context.Context, campaign *models.Campaign) error {
	r.setPaused(campaign.ID, false)

	campaign.RecomputeStats()

	if campaign.Stats.Sent == 0 && campaign.Stats.Failed > 0 {
		campaign.Status = models.CampaignFailed
	} else {
		campaign.Status = models.CampaignSent
	}

	campaign.UpdatedAt = time.Now()

	err := r.campaigns.Save(ctx, campaign)
	if err != nil {
		return fmt.Errorf("failed to save campaign: %w", err)
	}

	r.publish(ctx, campaign.ID, events.CampaignCompleted{
		BaseEvent:  r.baseEvent(events.CampaignCompletedEvent),
		CampaignID: campaign.ID,
		Sent:       campaign.Stats.Sent,
		Failed:     campaign.Stats.Failed,
	})

	r.logger.InfoContext(ctx, "Campaign finished",
		"campaign_id", campaign.ID, "status", campaign.Status,
		"sent", campaign.Stats.Sent, "failed", campaign.Stats.Failed)

	return nil
}

// pendingRecipients filters out recipients that already went out, so a
// resumed send never resends.
func pendingRecipients(campaign *models.Campaign) []*models.Recipient {
	pending := make([]*models.Recipient, 0, len(campaign.Recipients))

	for _, recipient := range campaign.Recipients {
		if recipient.Status != models.RecipientSent {
			pending = append(pending, recipient)
		}
	}

	return pending
}

func (r *Runner) setPaused(id string, paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if paused {
		r.paused[id] = true
	} else {
		delete(r.paused, id)
	}
}

func (r *Runner) isPaused(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.paused[id]
}

func (r *Runner) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        r.eventBus.GenerateID(),
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func (r *Runner) publish(ctx context.Context, key string, event eventbus.Event) {
	err := r.eventBus.Publish(ctx, key, event)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to publish campaign event",
			"event_type", event.GetType(), "error", err)
	}
}
