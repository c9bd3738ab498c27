package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/heraldhq/herald/pkg/models"
)

const defaultSendTimeout = 30 * time.Second

// HTTPAPI delivers messages through a provider's HTTP send endpoint.
// A 4xx response is treated as permanent; 5xx and transport errors are
// transient and left for the queue to retry.
type HTTPAPI struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

type sendRequest struct {
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body,omitempty"`
	Template string            `json:"template,omitempty"`
	Data     map[string]any    `json:"data,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

func NewHTTPAPI(endpoint, apiKey string) *HTTPAPI {
	return &HTTPAPI{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: defaultSendTimeout,
		},
	}
}

func (d *HTTPAPI) Name() string {
	return "httpapi"
}

func (d *HTTPAPI) Send(ctx context.Context, item *models.QueueItem) error {
	payload := sendRequest{
		To:       item.Recipient,
		Subject:  item.Payload.Subject,
		Body:     item.Payload.Body,
		Template: item.Payload.TemplateID,
		Data:     item.Payload.TemplateData,
		Headers:  item.Payload.Headers,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Permanent(fmt.Errorf("failed to encode send request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("failed to build send request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")

	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Permanent(fmt.Errorf("provider rejected message: status %d", resp.StatusCode))
	default:
		return fmt.Errorf("provider unavailable: status %d", resp.StatusCode)
	}
}
