package exports

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu      sync.RWMutex
	exports map[string]Export
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{exports: make(map[string]Export)}
}

func (r *MemoryRepo) Create(ctx context.Context, export Export) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if export.CreatedAt.IsZero() {
		export.CreatedAt = now
	}
	export.UpdatedAt = now
	r.exports[export.ID] = export
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, exportID string) (Export, error) {
	if err := ctx.Err(); err != nil {
		return Export{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	export, ok := r.exports[exportID]
	if !ok {
		return Export{}, ErrNotFound
	}
	return export, nil
}

func (r *MemoryRepo) GetByReportFormat(ctx context.Context, reportID, format string) (Export, error) {
	if err := ctx.Err(); err != nil {
		return Export{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, export := range r.exports {
		if export.ReportID == reportID && export.Format == format {
			return export, nil
		}
	}
	return Export{}, ErrNotFound
}

func (r *MemoryRepo) ListByReport(ctx context.Context, reportID string) ([]Export, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]Export, 0, 2)
	for _, export := range r.exports {
		if export.ReportID == reportID {
			matched = append(matched, export)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Format < matched[j].Format })
	return matched, nil
}

func (r *MemoryRepo) MarkProcessing(ctx context.Context, exportID string) (bool, error) {
	return r.transition(ctx, exportID, []string{StatusPending}, func(export *Export) {
		export.Status = StatusProcessing
	})
}

func (r *MemoryRepo) MarkCompleted(ctx context.Context, exportID, filePath string, fileSize int64) (bool, error) {
	return r.transition(ctx, exportID, []string{StatusProcessing}, func(export *Export) {
		export.Status = StatusCompleted
		export.FilePath = filePath
		export.FileSize = fileSize
		export.ErrorMessage = ""
	})
}

func (r *MemoryRepo) MarkFailedOrRequeue(ctx context.Context, exportID, errorMessage string) (Export, error) {
	if err := ctx.Err(); err != nil {
		return Export{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	export, ok := r.exports[exportID]
	if !ok || export.Status != StatusProcessing {
		return Export{}, ErrNotFound
	}
	export.RetryCount++
	if export.RetryCount >= export.MaxRetries {
		export.Status = StatusFailed
	} else {
		export.Status = StatusPending
	}
	export.ErrorMessage = errorMessage
	export.UpdatedAt = time.Now().UTC()
	r.exports[exportID] = export
	return export, nil
}

func (r *MemoryRepo) ResetToPending(ctx context.Context, exportID string, expiresAt time.Time) (bool, error) {
	return r.transition(ctx, exportID, []string{StatusFailed, StatusExpired}, func(export *Export) {
		export.Status = StatusPending
		export.RetryCount = 0
		export.FilePath = ""
		export.FileSize = 0
		export.ErrorMessage = ""
		export.ExpiresAt = expiresAt
	})
}

func (r *MemoryRepo) MarkExpired(ctx context.Context, exportID string) (bool, error) {
	return r.transition(ctx, exportID, []string{StatusCompleted}, func(export *Export) {
		export.Status = StatusExpired
	})
}

func (r *MemoryRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]Export, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]Export, 0)
	for _, export := range r.exports {
		if export.Status == StatusExpired ||
			(export.Status == StatusCompleted && export.ExpiresAt.Before(now)) {
			matched = append(matched, export)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ExpiresAt.Before(matched[j].ExpiresAt) })
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemoryRepo) DeleteByReport(ctx context.Context, reportID string) ([]Export, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := make([]Export, 0, 2)
	for id, export := range r.exports {
		if export.ReportID == reportID {
			removed = append(removed, export)
			delete(r.exports, id)
		}
	}
	return removed, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, exportID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exports, exportID)
	return nil
}

func (r *MemoryRepo) transition(ctx context.Context, exportID string, expected []string, apply func(*Export)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	export, ok := r.exports[exportID]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range expected {
		if export.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	apply(&export)
	export.UpdatedAt = time.Now().UTC()
	r.exports[exportID] = export
	return true, nil
}
