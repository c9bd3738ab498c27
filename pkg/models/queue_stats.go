package models

import "time"

// QueueStats is a point-in-time snapshot of queue counters.
type QueueStats struct {
	Pending               int           `json:"pending"`
	Processing            int           `json:"processing"`
	Sent                  int           `json:"sent"`
	Failed                int           `json:"failed"`
	Cancelled             int           `json:"cancelled"`
	TotalProcessed        int64         `json:"total_processed"`
	TotalProcessingTime   time.Duration `json:"total_processing_time"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
}

// HealthStatus grades the queue's condition.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// QueueHealth is a diagnostic report. It never triggers self-healing; it only
// describes what an operator should look at.
type QueueHealth struct {
	Status          HealthStatus `json:"status"`
	Issues          []string     `json:"issues,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
	CheckedAt       time.Time    `json:"checked_at"`
}
