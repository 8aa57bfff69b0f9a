package podcasts

import (
	"context"
	"errors"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/jobs"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/metrics"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

const (
	defaultPollInterval    = 10 * time.Second
	defaultCleanupInterval = 1 * time.Hour
	defaultStaleAfter      = 30 * time.Minute
	defaultRetryCooldown   = 60 * time.Second
	defaultRetention       = 14 * 24 * time.Hour
)

// Processor drives podcast jobs with two timers: a short one for stale-job
// reclamation, retry requeue, and pickup, and a long one for retention
// cleanup. Synthesis is resource-intensive, so the in-flight cap is one
// job regardless of queue depth.
type Processor struct {
	Svc *Service

	PollInterval    time.Duration
	CleanupInterval time.Duration
	StaleAfter      time.Duration
	RetryCooldown   time.Duration
	Retention       time.Duration

	inflight *jobs.InflightSet
	done     chan struct{}
}

func NewProcessor(svc *Service) *Processor {
	return &Processor{
		Svc:             svc,
		PollInterval:    defaultPollInterval,
		CleanupInterval: defaultCleanupInterval,
		StaleAfter:      defaultStaleAfter,
		RetryCooldown:   defaultRetryCooldown,
		Retention:       defaultRetention,
		inflight:        jobs.NewInflightSet(),
		done:            make(chan struct{}),
	}
}

// Start runs both timer loops until the context is cancelled.
func (p *Processor) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		poll := time.NewTicker(p.PollInterval)
		cleanup := time.NewTicker(p.CleanupInterval)
		defer poll.Stop()
		defer cleanup.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				p.Tick(ctx)
			case <-cleanup.C:
				p.CleanupTick(ctx)
			}
		}
	}()
}

// Stop waits for the loops to exit and the in-flight job to finish.
func (p *Processor) Stop(timeout time.Duration) bool {
	select {
	case <-p.done:
	case <-time.After(timeout):
		return false
	}
	return p.inflight.AwaitEmpty(timeout, 50*time.Millisecond)
}

// Tick performs one short-interval round: reclaim stale jobs, requeue
// eligible failures, then claim at most one pending job if none in flight.
func (p *Processor) Tick(ctx context.Context) {
	p.reclaimStale(ctx)
	p.requeueFailed(ctx)

	if p.inflight.Len() > 0 {
		return
	}

	podcast, err := p.Svc.Repo.ClaimPending(ctx, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			telemetry.Error("podcast.claim_failed", map[string]any{"error": err.Error()})
		}
		return
	}
	if !p.inflight.TryAdd(podcast.ID) {
		return
	}
	go func() {
		defer p.inflight.Remove(podcast.ID)
		_ = p.Svc.Process(context.Background(), podcast)
	}()
}

// reclaimStale converts crashed-mid-processing jobs to failed. Jobs this
// process is actively working on are excluded.
func (p *Processor) reclaimStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.StaleAfter)
	reclaimed, err := p.Svc.Repo.ReclaimStale(ctx, cutoff, p.inflight.Snapshot())
	if err != nil {
		telemetry.Error("podcast.reclaim_failed", map[string]any{"error": err.Error()})
		return
	}
	for _, podcast := range reclaimed {
		metrics.IncPodcastReclaimed()
		telemetry.Warn("podcast.reclaimed", map[string]any{
			"podcast_id": podcast.ID,
			"retries":    podcast.RetryCount,
		})
	}
}

// requeueFailed re-queues failures under the retry ceiling once their
// cool-down has elapsed, preventing rapid failure loops.
func (p *Processor) requeueFailed(ctx context.Context) {
	updatedBefore := time.Now().UTC().Add(-p.RetryCooldown)
	requeued, err := p.Svc.Repo.RequeueEligible(ctx, updatedBefore)
	if err != nil {
		telemetry.Error("podcast.requeue_failed", map[string]any{"error": err.Error()})
		return
	}
	for _, podcast := range requeued {
		telemetry.Info("podcast.requeued", map[string]any{
			"podcast_id": podcast.ID,
			"attempt":    podcast.RetryCount + 1,
		})
	}
}

// CleanupTick removes completed podcasts past the retention window.
func (p *Processor) CleanupTick(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.Retention)
	removed, err := p.Svc.DeleteAged(ctx, cutoff)
	if err != nil {
		telemetry.Error("podcast.cleanup_failed", map[string]any{"error": err.Error()})
		return
	}
	if removed > 0 {
		telemetry.Info("podcast.cleanup", map[string]any{"removed": removed})
	}
}
