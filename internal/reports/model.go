package reports

import "time"

// Report statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DeliveryOptions is the delivery request snapshot captured at creation.
type DeliveryOptions struct {
	Enabled         bool   `json:"enabled"`
	Destination     string `json:"destination"`
	DestinationType string `json:"destinationType"`
	ContentMode     string `json:"contentMode"`
	Format          string `json:"format"`
}

// PodcastOptions is the podcast request snapshot captured at creation.
type PodcastOptions struct {
	Enabled         bool   `json:"enabled"`
	Style           string `json:"style"`
	DurationClass   string `json:"durationClass"`
	Destination     string `json:"destination"`
	DestinationType string `json:"destinationType"`
}

// Report is one generation job and its configuration snapshot.
type Report struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Workflow      string            `json:"workflow"`
	Title         string            `json:"title"`
	Status        string            `json:"status"`
	Companies     []string          `json:"companies"`
	Depth         string            `json:"depth"`
	Sections      []string          `json:"sections"`
	TokenBudget   int               `json:"tokenBudget"`
	ExportFormats []string          `json:"exportFormats,omitempty"`
	Delivery      *DeliveryOptions  `json:"delivery,omitempty"`
	Podcast       *PodcastOptions   `json:"podcast,omitempty"`
	Content       map[string]string `json:"content,omitempty"`
	TokensUsed    int               `json:"tokensUsed"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	StartedAt     *time.Time        `json:"startedAt,omitempty"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
}

// Progress returns the coarse per-section completion percentage.
func (r Report) Progress() int {
	switch r.Status {
	case StatusCompleted:
		return 100
	case StatusPending:
		return 0
	}
	if len(r.Sections) == 0 {
		return 0
	}
	done := 0
	for _, section := range r.Sections {
		if _, ok := r.Content[section]; ok {
			done++
		}
	}
	return done * 100 / len(r.Sections)
}
