package models

import "time"

// CampaignStatus represents the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
)

// RecipientStatus tracks a single recipient within a campaign send.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// Recipient is one pre-resolved campaign destination. A recipient whose
// status is already sent is never resent, which makes a resumed send
// idempotent at the recipient level.
type Recipient struct {
	ContactID string          `json:"contact_id"`
	Email     string          `json:"email"      validate:"required,email"`
	Status    RecipientStatus `json:"status"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// CampaignSettings controls batching and throughput of a campaign send.
type CampaignSettings struct {
	BatchSize int      `json:"batch_size,omitempty"`
	SendRate  SendRate `json:"send_rate,omitempty"`
}

// SendRate caps campaign throughput. Zero means unthrottled.
type SendRate struct {
	MaxPerHour int `json:"max_per_hour,omitempty"`
}

// CampaignStats is recomputed from recipient statuses after each batch.
type CampaignStats struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// Campaign is a one-shot bulk send to a pre-resolved recipient list.
type Campaign struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"    validate:"required"`
	Subject    string           `json:"subject" validate:"required"`
	Body       string           `json:"body"`
	Status     CampaignStatus   `json:"status"`
	Recipients []*Recipient     `json:"recipients"`
	Settings   CampaignSettings `json:"settings"`
	Stats      CampaignStats    `json:"stats"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// RecomputeStats refreshes the aggregate counters from recipient statuses.
func (c *Campaign) RecomputeStats() {
	stats := CampaignStats{}

	for _, r := range c.Recipients {
		switch r.Status {
		case RecipientSent:
			stats.Sent++
		case RecipientFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
	}

	c.Stats = stats
}
