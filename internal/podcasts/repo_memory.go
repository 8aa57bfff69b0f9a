package podcasts

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu       sync.RWMutex
	podcasts map[string]Podcast
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{podcasts: make(map[string]Podcast)}
}

func (r *MemoryRepo) Create(_ context.Context, podcast Podcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	podcast.CreatedAt = now
	podcast.UpdatedAt = now
	podcast.RetryCount = 0
	r.podcasts[podcast.ID] = podcast
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, podcastID string) (Podcast, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	podcast, ok := r.podcasts[podcastID]
	if !ok {
		return Podcast{}, ErrNotFound
	}
	return podcast, nil
}

func (r *MemoryRepo) GetByReport(_ context.Context, reportID string) (Podcast, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *Podcast
	for _, podcast := range r.podcasts {
		if podcast.ReportID != reportID {
			continue
		}
		p := podcast
		if found == nil || p.CreatedAt.After(found.CreatedAt) {
			found = &p
		}
	}
	if found == nil {
		return Podcast{}, ErrNotFound
	}
	return *found, nil
}

func (r *MemoryRepo) ClaimPending(_ context.Context, startedAt time.Time) (Podcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *Podcast
	for _, podcast := range r.podcasts {
		if podcast.Status != StatusPending {
			continue
		}
		p := podcast
		if oldest == nil || p.CreatedAt.Before(oldest.CreatedAt) {
			oldest = &p
		}
	}
	if oldest == nil {
		return Podcast{}, ErrNotFound
	}
	oldest.Status = StatusGeneratingScript
	oldest.StartedAt = &startedAt
	oldest.ErrorMessage = ""
	oldest.UpdatedAt = time.Now().UTC()
	r.podcasts[oldest.ID] = *oldest
	return *oldest, nil
}

func (r *MemoryRepo) AdvanceStage(_ context.Context, podcastID, from, to string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	podcast, ok := r.podcasts[podcastID]
	if !ok || podcast.Status != from {
		return false, nil
	}
	podcast.Status = to
	podcast.UpdatedAt = time.Now().UTC()
	r.podcasts[podcastID] = podcast
	return true, nil
}

func (r *MemoryRepo) MarkCompleted(_ context.Context, podcastID, audioPath string, durationSeconds int, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	podcast, ok := r.podcasts[podcastID]
	if !ok || podcast.Status != StatusMixing {
		return false, nil
	}
	podcast.Status = StatusCompleted
	podcast.AudioPath = audioPath
	podcast.DurationSeconds = durationSeconds
	podcast.CompletedAt = &completedAt
	podcast.ErrorMessage = ""
	podcast.UpdatedAt = time.Now().UTC()
	r.podcasts[podcastID] = podcast
	return true, nil
}

func (r *MemoryRepo) MarkFailed(_ context.Context, podcastID, errorMessage string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	podcast, ok := r.podcasts[podcastID]
	if !ok || !podcast.InProgress() {
		return false, nil
	}
	podcast.Status = StatusFailed
	podcast.RetryCount++
	podcast.ErrorMessage = errorMessage
	podcast.UpdatedAt = time.Now().UTC()
	r.podcasts[podcastID] = podcast
	return true, nil
}

func (r *MemoryRepo) ReclaimStale(_ context.Context, cutoff time.Time, exclude []string) ([]Podcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}
	reclaimed := make([]Podcast, 0, 2)
	for id, podcast := range r.podcasts {
		if !podcast.InProgress() || excluded[id] || !podcast.UpdatedAt.Before(cutoff) {
			continue
		}
		podcast.Status = StatusFailed
		podcast.RetryCount++
		podcast.ErrorMessage = "reclaimed: processing exceeded the stale threshold"
		podcast.UpdatedAt = time.Now().UTC()
		r.podcasts[id] = podcast
		reclaimed = append(reclaimed, podcast)
	}
	return reclaimed, nil
}

func (r *MemoryRepo) RequeueEligible(_ context.Context, updatedBefore time.Time) ([]Podcast, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	requeued := make([]Podcast, 0, 2)
	for id, podcast := range r.podcasts {
		if podcast.Status != StatusFailed || podcast.RetryCount >= podcast.MaxRetries || !podcast.UpdatedAt.Before(updatedBefore) {
			continue
		}
		podcast.Status = StatusPending
		podcast.UpdatedAt = time.Now().UTC()
		r.podcasts[id] = podcast
		requeued = append(requeued, podcast)
	}
	return requeued, nil
}

func (r *MemoryRepo) Stats(_ context.Context) (QueueStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stats QueueStats
	for _, podcast := range r.podcasts {
		switch {
		case podcast.Status == StatusPending:
			stats.Pending++
		case podcast.InProgress():
			stats.InProgress++
		case podcast.Status == StatusCompleted:
			stats.Completed++
		case podcast.Status == StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (r *MemoryRepo) ListCompletedBefore(_ context.Context, cutoff time.Time, limit int) ([]Podcast, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	old := make([]Podcast, 0, 4)
	for _, podcast := range r.podcasts {
		if podcast.Status == StatusCompleted && podcast.CompletedAt != nil && podcast.CompletedAt.Before(cutoff) {
			old = append(old, podcast)
		}
	}
	sort.Slice(old, func(i, j int) bool {
		return old[i].CompletedAt.Before(*old[j].CompletedAt)
	})
	if limit > 0 && len(old) > limit {
		old = old[:limit]
	}
	return old, nil
}

func (r *MemoryRepo) Delete(_ context.Context, podcastID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.podcasts, podcastID)
	return nil
}

// setForTest overwrites a podcast row directly; test helper.
func (r *MemoryRepo) setForTest(podcast Podcast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.podcasts[podcast.ID] = podcast
}
