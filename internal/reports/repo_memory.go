package reports

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu      sync.RWMutex
	reports map[string]Report
	deleted map[string]bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		reports: make(map[string]Report),
		deleted: make(map[string]bool),
	}
}

func (r *MemoryRepo) Create(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[report.ID] = cloneReport(report)
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, reportID string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	report, ok := r.reports[reportID]
	if !ok || r.deleted[reportID] {
		return Report{}, ErrNotFound
	}
	return cloneReport(report), nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]Report, 0)
	for id, report := range r.reports {
		if report.UserID == userID && !r.deleted[id] {
			matched = append(matched, cloneReport(report))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if offset >= len(matched) {
		return []Report{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemoryRepo) MarkProcessing(ctx context.Context, reportID string, startedAt time.Time) (bool, error) {
	return r.transition(ctx, reportID, []string{StatusPending}, func(report *Report) {
		report.Status = StatusProcessing
		at := startedAt
		report.StartedAt = &at
		report.ErrorMessage = ""
	})
}

func (r *MemoryRepo) StoreSection(ctx context.Context, reportID, section, text string, tokensUsed int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[reportID]
	if !ok || r.deleted[reportID] {
		return ErrNotFound
	}
	if report.Content == nil {
		report.Content = make(map[string]string)
	}
	report.Content[section] = text
	report.TokensUsed += tokensUsed
	r.reports[reportID] = report
	return nil
}

func (r *MemoryRepo) MarkCompleted(ctx context.Context, reportID string, tokensUsed int, completedAt time.Time) (bool, error) {
	return r.transition(ctx, reportID, []string{StatusProcessing}, func(report *Report) {
		report.Status = StatusCompleted
		report.TokensUsed = tokensUsed
		at := completedAt
		report.CompletedAt = &at
	})
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, reportID, errorMessage string, completedAt time.Time) (bool, error) {
	return r.transition(ctx, reportID, []string{StatusPending, StatusProcessing}, func(report *Report) {
		report.Status = StatusFailed
		report.ErrorMessage = errorMessage
		at := completedAt
		report.CompletedAt = &at
	})
}

func (r *MemoryRepo) ResetForRetry(ctx context.Context, reportID string) (bool, error) {
	return r.transition(ctx, reportID, []string{StatusFailed}, func(report *Report) {
		report.Status = StatusPending
		report.Content = nil
		report.TokensUsed = 0
		report.ErrorMessage = ""
		report.StartedAt = nil
		report.CompletedAt = nil
	})
}

func (r *MemoryRepo) SoftDelete(ctx context.Context, userID, reportID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[reportID]
	if !ok || r.deleted[reportID] || report.UserID != userID {
		return ErrNotFound
	}
	r.deleted[reportID] = true
	return nil
}

func (r *MemoryRepo) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]Report, 0)
	for _, report := range r.reports {
		if report.CreatedAt.Before(cutoff) {
			matched = append(matched, cloneReport(report))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemoryRepo) HardDelete(ctx context.Context, reportID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reports, reportID)
	delete(r.deleted, reportID)
	return nil
}

func (r *MemoryRepo) transition(ctx context.Context, reportID string, expected []string, apply func(*Report)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	report, ok := r.reports[reportID]
	if !ok || r.deleted[reportID] {
		return false, nil
	}
	matched := false
	for _, status := range expected {
		if report.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	apply(&report)
	r.reports[reportID] = report
	return true, nil
}

func cloneReport(report Report) Report {
	out := report
	out.Companies = append([]string(nil), report.Companies...)
	out.Sections = append([]string(nil), report.Sections...)
	out.ExportFormats = append([]string(nil), report.ExportFormats...)
	if report.Delivery != nil {
		delivery := *report.Delivery
		out.Delivery = &delivery
	}
	if report.Podcast != nil {
		podcast := *report.Podcast
		out.Podcast = &podcast
	}
	if report.Content != nil {
		out.Content = make(map[string]string, len(report.Content))
		for key, value := range report.Content {
			out.Content[key] = value
		}
	}
	if report.StartedAt != nil {
		at := *report.StartedAt
		out.StartedAt = &at
	}
	if report.CompletedAt != nil {
		at := *report.CompletedAt
		out.CompletedAt = &at
	}
	return out
}
