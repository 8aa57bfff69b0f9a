package schedules

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
)

// Template is a saved report configuration a schedule stamps out on each
// run. The snapshot fields mirror the report creation input.
type Template struct {
	ID            string                   `json:"id"`
	UserID        string                   `json:"userId"`
	Name          string                   `json:"name"`
	Workflow      string                   `json:"workflow"`
	Sections      []string                 `json:"sections,omitempty"`
	Depth         string                   `json:"depth"`
	ExportFormats []string                 `json:"exportFormats,omitempty"`
	Delivery      *reports.DeliveryOptions `json:"delivery,omitempty"`
	Podcast       *reports.PodcastOptions  `json:"podcast,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// Schedule is a recurring report request bound to a template.
type Schedule struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	TemplateID   string     `json:"templateId"`
	CronExpr     string     `json:"cronExpr"`
	Timezone     string     `json:"timezone"`
	Active       bool       `json:"active"`
	Companies    []string   `json:"companies"`
	FailureCount int        `json:"failureCount"`
	LastRunAt    *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt    *time.Time `json:"nextRunAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// NextRun computes the first fire time strictly after `from` for a standard
// five-field cron expression evaluated in the given timezone.
func NextRun(expr, timezone string, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(normalizeTimezone(timezone))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	next := spec.Next(from.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", expr)
	}
	return next.UTC(), nil
}

// ValidateRecurrence checks the cron expression and timezone together.
func ValidateRecurrence(expr, timezone string) error {
	_, err := NextRun(expr, timezone, time.Now())
	return err
}

func normalizeTimezone(timezone string) string {
	if timezone == "" {
		return "UTC"
	}
	return timezone
}
