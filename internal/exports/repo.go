package exports

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("export not found")

// Repo defines persistence for exports. Transitions are conditional on the
// expected prior status; the bool result reports whether the row matched.
type Repo interface {
	Create(ctx context.Context, export Export) error
	GetByID(ctx context.Context, exportID string) (Export, error)
	GetByReportFormat(ctx context.Context, reportID, format string) (Export, error)
	ListByReport(ctx context.Context, reportID string) ([]Export, error)
	MarkProcessing(ctx context.Context, exportID string) (bool, error)
	MarkCompleted(ctx context.Context, exportID, filePath string, fileSize int64) (bool, error)
	MarkFailedOrRequeue(ctx context.Context, exportID, errorMessage string) (Export, error)
	ResetToPending(ctx context.Context, exportID string, expiresAt time.Time) (bool, error)
	MarkExpired(ctx context.Context, exportID string) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Export, error)
	DeleteByReport(ctx context.Context, reportID string) ([]Export, error)
	Delete(ctx context.Context, exportID string) error
}
