package podcasts

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("podcast not found")

// Repo persists podcast generation jobs.
type Repo interface {
	Create(ctx context.Context, podcast Podcast) error
	GetByID(ctx context.Context, podcastID string) (Podcast, error)
	GetByReport(ctx context.Context, reportID string) (Podcast, error)
	// ClaimPending moves the oldest pending job into generating_script and
	// returns it; ErrNotFound when the queue is empty.
	ClaimPending(ctx context.Context, startedAt time.Time) (Podcast, error)
	// AdvanceStage moves a job from one in-progress stage to the next.
	AdvanceStage(ctx context.Context, podcastID, from, to string) (bool, error)
	MarkCompleted(ctx context.Context, podcastID, audioPath string, durationSeconds int, completedAt time.Time) (bool, error)
	// MarkFailed fails a job from any in-progress stage and increments its
	// retry count.
	MarkFailed(ctx context.Context, podcastID, errorMessage string) (bool, error)
	// ReclaimStale fails in-progress jobs untouched since the cutoff,
	// incrementing each retry count exactly once. Returns the jobs changed.
	ReclaimStale(ctx context.Context, cutoff time.Time, exclude []string) ([]Podcast, error)
	// RequeueEligible moves failed jobs back to pending when their retry
	// count is under the ceiling and the cool-down has elapsed.
	RequeueEligible(ctx context.Context, updatedBefore time.Time) ([]Podcast, error)
	Stats(ctx context.Context) (QueueStats, error)
	ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Podcast, error)
	Delete(ctx context.Context, podcastID string) error
}
