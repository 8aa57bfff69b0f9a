package schedules

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryTemplateRepo struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewMemoryTemplateRepo() *MemoryTemplateRepo {
	return &MemoryTemplateRepo{templates: make(map[string]Template)}
}

func (r *MemoryTemplateRepo) Create(_ context.Context, template Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	template.CreatedAt = now
	template.UpdatedAt = now
	r.templates[template.ID] = template
	return nil
}

func (r *MemoryTemplateRepo) GetByID(_ context.Context, templateID string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	template, ok := r.templates[templateID]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}
	return template, nil
}

func (r *MemoryTemplateRepo) ListByUser(_ context.Context, userID string) ([]Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	templates := make([]Template, 0, 8)
	for _, template := range r.templates {
		if template.UserID == userID {
			templates = append(templates, template)
		}
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})
	return templates, nil
}

func (r *MemoryTemplateRepo) Update(_ context.Context, template Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.templates[template.ID]
	if !ok {
		return ErrTemplateNotFound
	}
	template.CreatedAt = existing.CreatedAt
	template.UpdatedAt = time.Now().UTC()
	r.templates[template.ID] = template
	return nil
}

func (r *MemoryTemplateRepo) Delete(_ context.Context, templateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.templates, templateID)
	return nil
}

type MemoryRepo struct {
	mu        sync.RWMutex
	schedules map[string]Schedule
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{schedules: make(map[string]Schedule)}
}

func (r *MemoryRepo) Create(_ context.Context, schedule Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	schedule.FailureCount = 0
	schedule.LastRunAt = nil
	r.schedules[schedule.ID] = schedule
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, scheduleID string) (Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schedule, ok := r.schedules[scheduleID]
	if !ok {
		return Schedule{}, ErrNotFound
	}
	return schedule, nil
}

func (r *MemoryRepo) ListByUser(_ context.Context, userID string) ([]Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schedules := make([]Schedule, 0, 8)
	for _, schedule := range r.schedules {
		if schedule.UserID == userID {
			schedules = append(schedules, schedule)
		}
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].CreatedAt.After(schedules[j].CreatedAt)
	})
	return schedules, nil
}

func (r *MemoryRepo) ListDue(_ context.Context, now time.Time, limit int) ([]Schedule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	due := make([]Schedule, 0, 8)
	for _, schedule := range r.schedules {
		if schedule.Active && schedule.NextRunAt != nil && !schedule.NextRunAt.After(now) {
			due = append(due, schedule)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRunAt.Before(*due[j].NextRunAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MemoryRepo) Update(_ context.Context, schedule Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.schedules[schedule.ID]
	if !ok {
		return ErrNotFound
	}
	existing.CronExpr = schedule.CronExpr
	existing.Timezone = schedule.Timezone
	existing.Companies = schedule.Companies
	existing.NextRunAt = schedule.NextRunAt
	existing.UpdatedAt = time.Now().UTC()
	r.schedules[schedule.ID] = existing
	return nil
}

func (r *MemoryRepo) RecordRun(_ context.Context, scheduleID string, lastRunAt time.Time, nextRunAt *time.Time, failureCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	schedule, ok := r.schedules[scheduleID]
	if !ok {
		return ErrNotFound
	}
	schedule.LastRunAt = &lastRunAt
	schedule.NextRunAt = nextRunAt
	schedule.FailureCount = failureCount
	schedule.UpdatedAt = time.Now().UTC()
	r.schedules[scheduleID] = schedule
	return nil
}

func (r *MemoryRepo) SetActive(_ context.Context, scheduleID string, active bool, nextRunAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	schedule, ok := r.schedules[scheduleID]
	if !ok || schedule.Active == active {
		return false, nil
	}
	schedule.Active = active
	schedule.NextRunAt = nextRunAt
	schedule.UpdatedAt = time.Now().UTC()
	r.schedules[scheduleID] = schedule
	return true, nil
}

func (r *MemoryRepo) Delete(_ context.Context, scheduleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schedules, scheduleID)
	return nil
}
