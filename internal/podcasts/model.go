package podcasts

import "time"

// Podcast generation statuses. The three middle states are the in-progress
// pipeline stages; stale-job reclamation watches all of them.
const (
	StatusPending          = "pending"
	StatusGeneratingScript = "generating_script"
	StatusGeneratingAudio  = "generating_audio"
	StatusMixing           = "mixing"
	StatusCompleted        = "completed"
	StatusFailed           = "failed"
)

// InProgressStatuses lists the stages between claim and completion.
var InProgressStatuses = []string{StatusGeneratingScript, StatusGeneratingAudio, StatusMixing}

// Script styles.
const (
	StyleConversational = "conversational"
	StyleNarrated       = "narrated"
)

// Duration classes and their target spoken length.
const (
	DurationShort    = "short"
	DurationStandard = "standard"
	DurationExtended = "extended"
)

var durationTargetWords = map[string]int{
	DurationShort:    300,
	DurationStandard: 750,
	DurationExtended: 1500,
}

// TargetWords returns the approximate script length for a duration class.
func TargetWords(durationClass string) int {
	if words, ok := durationTargetWords[durationClass]; ok {
		return words
	}
	return durationTargetWords[DurationStandard]
}

// NormalizeStyle falls back to conversational for unknown styles.
func NormalizeStyle(style string) string {
	if style == StyleNarrated {
		return StyleNarrated
	}
	return StyleConversational
}

// NormalizeDuration falls back to standard for unknown classes.
func NormalizeDuration(durationClass string) string {
	if _, ok := durationTargetWords[durationClass]; ok {
		return durationClass
	}
	return DurationStandard
}

// Podcast is one audio synthesis job for a completed report.
type Podcast struct {
	ID              string     `json:"id"`
	ReportID        string     `json:"reportId"`
	Status          string     `json:"status"`
	Style           string     `json:"style"`
	DurationClass   string     `json:"durationClass"`
	RetryCount      int        `json:"retryCount"`
	MaxRetries      int        `json:"maxRetries"`
	AudioPath       string     `json:"audioPath,omitempty"`
	DurationSeconds int        `json:"durationSeconds"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// JobRetryCount implements jobs.Retryable.
func (p Podcast) JobRetryCount() int { return p.RetryCount }

// JobMaxRetries implements jobs.Retryable.
func (p Podcast) JobMaxRetries() int { return p.MaxRetries }

// InProgress reports whether the podcast sits in a pipeline stage.
func (p Podcast) InProgress() bool {
	switch p.Status {
	case StatusGeneratingScript, StatusGeneratingAudio, StatusMixing:
		return true
	}
	return false
}

// QueueStats is the per-status queue depth snapshot.
type QueueStats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
