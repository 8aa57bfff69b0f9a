package exports

import "time"

// Export statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusExpired    = "expired"
)

// Trigger reasons.
const (
	TriggerOnDemand = "on_demand"
	TriggerEager    = "eager"
)

// Supported formats.
const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
)

// Export is one document rendering job, keyed by (report, format).
type Export struct {
	ID            string    `json:"id"`
	ReportID      string    `json:"reportId"`
	Format        string    `json:"format"`
	Status        string    `json:"status"`
	TriggerReason string    `json:"triggerReason"`
	RetryCount    int       `json:"retryCount"`
	MaxRetries    int       `json:"maxRetries"`
	FilePath      string    `json:"filePath,omitempty"`
	FileSize      int64     `json:"fileSize"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// JobRetryCount implements jobs.Retryable.
func (e Export) JobRetryCount() int { return e.RetryCount }

// JobMaxRetries implements jobs.Retryable.
func (e Export) JobMaxRetries() int { return e.MaxRetries }

// ValidFormat reports whether format names a supported export format.
func ValidFormat(format string) bool {
	return format == FormatPDF || format == FormatDOCX
}
