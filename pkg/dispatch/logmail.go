package dispatch

import (
	"context"
	"log/slog"

	"github.com/heraldhq/herald/pkg/models"
)

// LogMail is a development dispatcher that logs the message instead of
// delivering it. Every send succeeds.
type LogMail struct {
	logger *slog.Logger
}

func NewLogMail(logger *slog.Logger) *LogMail {
	return &LogMail{
		logger: logger.With("module", "dispatch.logmail"),
	}
}

func (d *LogMail) Name() string {
	return "logmail"
}

func (d *LogMail) Send(ctx context.Context, item *models.QueueItem) error {
	d.logger.InfoContext(ctx, "Delivering message",
		"item_id", item.ID,
		"recipient", item.Recipient,
		"subject", item.Payload.Subject,
		"priority", item.Priority,
		"attempt", item.Attempts+1,
	)

	return nil
}
