package reports

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// AnalyticsRecorder aggregates completed generations per day and workflow.
type AnalyticsRecorder interface {
	RecordCompletion(ctx context.Context, workflow string, day time.Time, durationMs int64) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type PGAnalytics struct {
	DB *sql.DB
}

func (a *PGAnalytics) RecordCompletion(ctx context.Context, workflow string, day time.Time, durationMs int64) error {
	const query = `
INSERT INTO report_analytics (day, workflow, reports_completed, avg_duration_ms, updated_at)
VALUES ($1, $2, 1, $3, now())
ON CONFLICT (day, workflow) DO UPDATE SET
  avg_duration_ms = (report_analytics.avg_duration_ms * report_analytics.reports_completed + EXCLUDED.avg_duration_ms)
                    / (report_analytics.reports_completed + 1),
  reports_completed = report_analytics.reports_completed + 1,
  updated_at = now()`
	_, err := a.DB.ExecContext(ctx, query, day.UTC().Format("2006-01-02"), workflow, durationMs)
	return err
}

func (a *PGAnalytics) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := a.DB.ExecContext(ctx,
		`DELETE FROM report_analytics WHERE day < $1`, cutoff.UTC().Format("2006-01-02"))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type analyticsBucket struct {
	Day           string
	Workflow      string
	Completed     int
	AvgDurationMs int64
}

// MemoryAnalytics keeps aggregates in memory for local mode and tests.
type MemoryAnalytics struct {
	mu      sync.Mutex
	buckets map[string]analyticsBucket
}

func NewMemoryAnalytics() *MemoryAnalytics {
	return &MemoryAnalytics{buckets: make(map[string]analyticsBucket)}
}

func (a *MemoryAnalytics) RecordCompletion(ctx context.Context, workflow string, day time.Time, durationMs int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	dayKey := day.UTC().Format("2006-01-02")
	key := dayKey + "|" + workflow
	bucket, ok := a.buckets[key]
	if !ok {
		bucket = analyticsBucket{Day: dayKey, Workflow: workflow}
	}
	bucket.AvgDurationMs = (bucket.AvgDurationMs*int64(bucket.Completed) + durationMs) / int64(bucket.Completed+1)
	bucket.Completed++
	a.buckets[key] = bucket
	return nil
}

func (a *MemoryAnalytics) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	cutoffKey := cutoff.UTC().Format("2006-01-02")
	var removed int64
	for key, bucket := range a.buckets {
		if bucket.Day < cutoffKey {
			delete(a.buckets, key)
			removed++
		}
	}
	return removed, nil
}

// Snapshot returns a copy of the buckets, for queue-stats style endpoints.
func (a *MemoryAnalytics) Snapshot() []analyticsBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]analyticsBucket, 0, len(a.buckets))
	for _, bucket := range a.buckets {
		out = append(out, bucket)
	}
	return out
}
