// Package cleanup enforces data retention across the job stores with a
// single daily run.
package cleanup

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/activity"
	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

// ErrAlreadyRunning rejects a manual trigger while a run is in progress.
var ErrAlreadyRunning = errors.New("cleanup is already running")

const (
	defaultReportRetention    = 90 * 24 * time.Hour
	defaultActivityRetention  = 90 * 24 * time.Hour
	defaultAnalyticsRetention = 365 * 24 * time.Hour
	runHourUTC                = 2
)

// ReportStore is the report persistence surface cleanup uses directly.
type ReportStore interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]reports.Report, error)
	HardDelete(ctx context.Context, reportID string) error
}

// ExportPurger removes export rows and files.
type ExportPurger interface {
	DeleteForReport(ctx context.Context, reportID string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// PodcastPurger removes aged podcast rows and audio.
type PodcastPurger interface {
	DeleteAged(ctx context.Context, cutoff time.Time) (int, error)
}

// Result summarizes one cleanup run.
type Result struct {
	ReportsDeleted   int   `json:"reportsDeleted"`
	ExportsPurged    int   `json:"exportsPurged"`
	PodcastsDeleted  int   `json:"podcastsDeleted"`
	ActivityDeleted  int64 `json:"activityDeleted"`
	AnalyticsDeleted int64 `json:"analyticsDeleted"`
}

// Processor runs retention cleanup once a day at the configured hour. The
// timer is single-shot and re-armed after each run rather than a fixed
// interval, because the absolute target time shifts.
type Processor struct {
	Reports   ReportStore
	Exports   ExportPurger
	Podcasts  PodcastPurger
	Activity  *activity.Service
	Analytics reports.AnalyticsRecorder

	ReportRetention    time.Duration
	ActivityRetention  time.Duration
	AnalyticsRetention time.Duration

	running atomic.Bool
	done    chan struct{}

	// now is swappable for tests.
	now func() time.Time
}

func NewProcessor(reportStore ReportStore, exportPurger ExportPurger, podcastPurger PodcastPurger, activitySvc *activity.Service, analytics reports.AnalyticsRecorder) *Processor {
	return &Processor{
		Reports:            reportStore,
		Exports:            exportPurger,
		Podcasts:           podcastPurger,
		Activity:           activitySvc,
		Analytics:          analytics,
		ReportRetention:    defaultReportRetention,
		ActivityRetention:  defaultActivityRetention,
		AnalyticsRetention: defaultAnalyticsRetention,
		done:               make(chan struct{}),
		now:                func() time.Time { return time.Now().UTC() },
	}
}

// Start arms the daily timer until the context is cancelled.
func (p *Processor) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			timer := time.NewTimer(time.Until(p.NextRunAt()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if _, err := p.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
					telemetry.Error("cleanup.run_failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}()
}

// Stop waits for the timer loop to exit.
func (p *Processor) Stop(timeout time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// NextRunAt computes the next daily trigger: today at the run hour, or
// tomorrow if already past.
func (p *Processor) NextRunAt() time.Time {
	now := p.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), runHourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// Run executes one retention pass. A run already in progress rejects the
// trigger instead of queueing behind it.
func (p *Processor) Run(ctx context.Context) (Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer p.running.Store(false)

	var result Result
	now := p.now()

	aged, err := p.Reports.ListOlderThan(ctx, now.Add(-p.ReportRetention), 200)
	if err != nil {
		return result, err
	}
	for _, report := range aged {
		if err := p.Exports.DeleteForReport(ctx, report.ID); err != nil {
			telemetry.Warn("cleanup.report_exports_failed", map[string]any{
				"report_id": report.ID,
				"error":     err.Error(),
			})
			continue
		}
		if err := p.Reports.HardDelete(ctx, report.ID); err != nil {
			telemetry.Warn("cleanup.report_delete_failed", map[string]any{
				"report_id": report.ID,
				"error":     err.Error(),
			})
			continue
		}
		result.ReportsDeleted++
	}

	if result.ExportsPurged, err = p.Exports.PurgeExpired(ctx, now); err != nil {
		telemetry.Warn("cleanup.exports_failed", map[string]any{"error": err.Error()})
	}
	if p.Podcasts != nil {
		if result.PodcastsDeleted, err = p.Podcasts.DeleteAged(ctx, now.Add(-p.ReportRetention)); err != nil {
			telemetry.Warn("cleanup.podcasts_failed", map[string]any{"error": err.Error()})
		}
	}
	if result.ActivityDeleted, err = p.Activity.PruneOlderThan(ctx, now.Add(-p.ActivityRetention)); err != nil {
		telemetry.Warn("cleanup.activity_failed", map[string]any{"error": err.Error()})
	}
	if result.AnalyticsDeleted, err = p.Analytics.DeleteOlderThan(ctx, now.Add(-p.AnalyticsRetention)); err != nil {
		telemetry.Warn("cleanup.analytics_failed", map[string]any{"error": err.Error()})
	}

	telemetry.Info("cleanup.completed", map[string]any{
		"reports":   result.ReportsDeleted,
		"exports":   result.ExportsPurged,
		"podcasts":  result.PodcastsDeleted,
		"activity":  result.ActivityDeleted,
		"analytics": result.AnalyticsDeleted,
	})
	return result, nil
}
