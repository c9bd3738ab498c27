package cmd

import (
	"log/slog"

	"github.com/heraldhq/herald/pkg/dispatch"
	"github.com/heraldhq/herald/pkg/protocol"
)

// NewDispatcher selects the delivery provider. "logmail" logs instead of
// sending; anything else needs an endpoint for the HTTP provider API.
func NewDispatcher(provider, endpoint, apiKey string, logger *slog.Logger) protocol.Dispatcher {
	switch provider {
	case "httpapi":
		return dispatch.NewHTTPAPI(endpoint, apiKey)
	case "logmail", "":
		return dispatch.NewLogMail(logger)
	default:
		panic("Unsupported dispatcher provider: " + provider)
	}
}
