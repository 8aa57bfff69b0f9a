package deliveries

import "time"

// Delivery statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Content modes for report deliveries.
const (
	ModeAttachment = "attachment"
	ModeSummary    = "summary"
)

// Target kinds select which job table a delivery lives in.
const (
	TargetReport  = "report"
	TargetPodcast = "podcast"
)

// Delivery is one outbound message job for a report or podcast.
type Delivery struct {
	ID              string     `json:"id"`
	TargetKind      string     `json:"targetKind"`
	TargetID        string     `json:"targetId"`
	Method          string     `json:"method"`
	Destination     string     `json:"destination"`
	DestinationType string     `json:"destinationType"`
	ContentMode     string     `json:"contentMode,omitempty"`
	Format          string     `json:"format,omitempty"`
	Status          string     `json:"status"`
	RetryCount      int        `json:"retryCount"`
	MaxRetries      int        `json:"maxRetries"`
	LastError       string     `json:"lastError,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	SentAt          *time.Time `json:"sentAt,omitempty"`
}

// JobRetryCount implements jobs.Retryable.
func (d Delivery) JobRetryCount() int { return d.RetryCount }

// JobMaxRetries implements jobs.Retryable.
func (d Delivery) JobMaxRetries() int { return d.MaxRetries }
