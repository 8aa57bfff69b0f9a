package reports

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("report not found")

// Repo defines persistence for reports. Status transitions are conditional
// on the expected prior status; the bool result reports whether the row
// matched.
type Repo interface {
	Create(ctx context.Context, report Report) error
	GetByID(ctx context.Context, reportID string) (Report, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Report, error)
	MarkProcessing(ctx context.Context, reportID string, startedAt time.Time) (bool, error)
	StoreSection(ctx context.Context, reportID, section, text string, tokensUsed int) error
	MarkCompleted(ctx context.Context, reportID string, tokensUsed int, completedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, reportID, errorMessage string, completedAt time.Time) (bool, error)
	ResetForRetry(ctx context.Context, reportID string) (bool, error)
	SoftDelete(ctx context.Context, userID, reportID string) error
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Report, error)
	HardDelete(ctx context.Context, reportID string) error
}
