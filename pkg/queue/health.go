package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/heraldhq/herald/pkg/models"
)

const (
	failureRateCritical = 0.20
	failureRateWarning  = 0.10
	backlogCritical     = 1000
	backlogWarning      = 500
	slowProcessing      = 10 * time.Second
)

// GetStats returns counts by status plus the rolling processing counters.
func (q *Queue) GetStats(ctx context.Context) (*models.QueueStats, error) {
	counts, err := q.items.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}

	q.mu.Lock()
	totalProcessed := q.totalProcessed
	totalTime := q.totalTime
	q.mu.Unlock()

	stats := &models.QueueStats{
		Pending:             counts[models.QueueItemPending],
		Processing:          counts[models.QueueItemProcessing],
		Sent:                counts[models.QueueItemSent],
		Failed:              counts[models.QueueItemFailed],
		Cancelled:           counts[models.QueueItemCancelled],
		TotalProcessed:      totalProcessed,
		TotalProcessingTime: totalTime,
	}

	if totalProcessed > 0 {
		stats.AverageProcessingTime = totalTime / time.Duration(totalProcessed)
	}

	return stats, nil
}

// GetHealth grades the queue condition from current stats. Diagnostic only;
// it never mutates the queue.
func (q *Queue) GetHealth(ctx context.Context) (*models.QueueHealth, error) {
	stats, err := q.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	health := &models.QueueHealth{
		Status:    models.HealthHealthy,
		CheckedAt: time.Now(),
	}

	total := stats.Sent + stats.Failed
	if total > 0 {
		failureRate := float64(stats.Failed) / float64(total)

		switch {
		case failureRate > failureRateCritical:
			raise(health, models.HealthCritical,
				fmt.Sprintf("failure rate %.0f%% exceeds 20%%", failureRate*100),
				"inspect recent delivery errors and the provider status")
		case failureRate > failureRateWarning:
			raise(health, models.HealthWarning,
				fmt.Sprintf("failure rate %.0f%% exceeds 10%%", failureRate*100),
				"review failed items for a common cause")
		}
	}

	switch {
	case stats.Pending > backlogCritical:
		raise(health, models.HealthCritical,
			fmt.Sprintf("backlog of %d pending items", stats.Pending),
			"increase max concurrency or shorten the tick interval")
	case stats.Pending > backlogWarning:
		raise(health, models.HealthWarning,
			fmt.Sprintf("backlog of %d pending items", stats.Pending),
			"monitor backlog growth")
	}

	if stats.AverageProcessingTime > slowProcessing {
		raise(health, models.HealthWarning,
			fmt.Sprintf("average processing time %s exceeds %s", stats.AverageProcessingTime, slowProcessing),
			"check dispatcher latency")
	}

	if stats.Processing > 2*q.config.MaxConcurrency {
		raise(health, models.HealthCritical,
			fmt.Sprintf("%d items stuck in processing", stats.Processing),
			"restart the scheduler; items may be orphaned from a crash")
	}

	return health, nil
}

// raise records an issue and escalates the overall status, never downgrading.
func raise(h *models.QueueHealth, status models.HealthStatus, issue, recommendation string) {
	h.Issues = append(h.Issues, issue)
	h.Recommendations = append(h.Recommendations, recommendation)

	if status == models.HealthCritical || h.Status == models.HealthHealthy {
		h.Status = status
	}
}
