package schedules

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("schedule not found")
	ErrTemplateNotFound = errors.New("template not found")
)

// TemplateRepo persists saved report configurations.
type TemplateRepo interface {
	Create(ctx context.Context, template Template) error
	GetByID(ctx context.Context, templateID string) (Template, error)
	ListByUser(ctx context.Context, userID string) ([]Template, error)
	Update(ctx context.Context, template Template) error
	Delete(ctx context.Context, templateID string) error
}

// Repo persists schedules.
type Repo interface {
	Create(ctx context.Context, schedule Schedule) error
	GetByID(ctx context.Context, scheduleID string) (Schedule, error)
	ListByUser(ctx context.Context, userID string) ([]Schedule, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]Schedule, error)
	Update(ctx context.Context, schedule Schedule) error
	// RecordRun persists the post-execution bookkeeping: last/next run
	// timestamps and the failure counter.
	RecordRun(ctx context.Context, scheduleID string, lastRunAt time.Time, nextRunAt *time.Time, failureCount int) error
	SetActive(ctx context.Context, scheduleID string, active bool, nextRunAt *time.Time) (bool, error)
	Delete(ctx context.Context, scheduleID string) error
}
