package podcasts

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const podcastColumns = `
id, report_id, status, style, duration_class, retry_count, max_retries,
audio_path, duration_seconds, error_message, created_at, updated_at,
started_at, completed_at`

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, podcast Podcast) error {
	const query = `
INSERT INTO podcast_generations (
  id, report_id, status, style, duration_class, retry_count, max_retries,
  created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, 0, $6, now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		podcast.ID, podcast.ReportID, podcast.Status, podcast.Style,
		podcast.DurationClass, podcast.MaxRetries)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, podcastID string) (Podcast, error) {
	query := `SELECT` + podcastColumns + ` FROM podcast_generations WHERE id = $1 LIMIT 1`
	podcast, err := scanPodcast(r.DB.QueryRowContext(ctx, query, podcastID))
	if errors.Is(err, sql.ErrNoRows) {
		return Podcast{}, ErrNotFound
	}
	return podcast, err
}

func (r *PGRepo) GetByReport(ctx context.Context, reportID string) (Podcast, error) {
	query := `SELECT` + podcastColumns + `
FROM podcast_generations
WHERE report_id = $1
ORDER BY created_at DESC
LIMIT 1`
	podcast, err := scanPodcast(r.DB.QueryRowContext(ctx, query, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return Podcast{}, ErrNotFound
	}
	return podcast, err
}

func (r *PGRepo) ClaimPending(ctx context.Context, startedAt time.Time) (Podcast, error) {
	query := `
UPDATE podcast_generations
SET status = 'generating_script', started_at = $1, error_message = NULL,
    updated_at = now()
WHERE id = (
  SELECT id FROM podcast_generations
  WHERE status = 'pending'
  ORDER BY created_at
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
RETURNING` + podcastColumns
	podcast, err := scanPodcast(r.DB.QueryRowContext(ctx, query, startedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return Podcast{}, ErrNotFound
	}
	return podcast, err
}

func (r *PGRepo) AdvanceStage(ctx context.Context, podcastID, from, to string) (bool, error) {
	const query = `
UPDATE podcast_generations
SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2`
	return r.execConditional(ctx, query, podcastID, from, to)
}

func (r *PGRepo) MarkCompleted(ctx context.Context, podcastID, audioPath string, durationSeconds int, completedAt time.Time) (bool, error) {
	const query = `
UPDATE podcast_generations
SET status = 'completed', audio_path = $2, duration_seconds = $3,
    completed_at = $4, error_message = NULL, updated_at = now()
WHERE id = $1 AND status = 'mixing'`
	return r.execConditional(ctx, query, podcastID, audioPath, durationSeconds, completedAt)
}

func (r *PGRepo) MarkFailed(ctx context.Context, podcastID, errorMessage string) (bool, error) {
	const query = `
UPDATE podcast_generations
SET status = 'failed', retry_count = retry_count + 1, error_message = $2,
    updated_at = now()
WHERE id = $1 AND status IN ('generating_script', 'generating_audio', 'mixing')`
	return r.execConditional(ctx, query, podcastID, errorMessage)
}

func (r *PGRepo) ReclaimStale(ctx context.Context, cutoff time.Time, exclude []string) ([]Podcast, error) {
	query := `
UPDATE podcast_generations
SET status = 'failed', retry_count = retry_count + 1,
    error_message = 'reclaimed: processing exceeded the stale threshold',
    updated_at = now()
WHERE status IN ('generating_script', 'generating_audio', 'mixing')
  AND updated_at < $1
  AND NOT (id = ANY($2))
RETURNING` + podcastColumns
	if exclude == nil {
		exclude = []string{}
	}
	rows, err := r.DB.QueryContext(ctx, query, cutoff, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPodcasts(rows)
}

func (r *PGRepo) RequeueEligible(ctx context.Context, updatedBefore time.Time) ([]Podcast, error) {
	query := `
UPDATE podcast_generations
SET status = 'pending', updated_at = now()
WHERE status = 'failed'
  AND retry_count < max_retries
  AND updated_at < $1
RETURNING` + podcastColumns
	rows, err := r.DB.QueryContext(ctx, query, updatedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPodcasts(rows)
}

func (r *PGRepo) Stats(ctx context.Context) (QueueStats, error) {
	const query = `SELECT status, COUNT(*) FROM podcast_generations GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return QueueStats{}, err
	}
	defer rows.Close()

	var stats QueueStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return QueueStats{}, err
		}
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusGeneratingScript, StatusGeneratingAudio, StatusMixing:
			stats.InProgress += count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

func (r *PGRepo) ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Podcast, error) {
	query := `SELECT` + podcastColumns + `
FROM podcast_generations
WHERE status = 'completed' AND completed_at < $1
ORDER BY completed_at
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPodcasts(rows)
}

func (r *PGRepo) Delete(ctx context.Context, podcastID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM podcast_generations WHERE id = $1`, podcastID)
	return err
}

func (r *PGRepo) execConditional(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectPodcasts(rows *sql.Rows) ([]Podcast, error) {
	podcasts := make([]Podcast, 0, 4)
	for rows.Next() {
		podcast, err := scanPodcast(rows)
		if err != nil {
			return nil, err
		}
		podcasts = append(podcasts, podcast)
	}
	return podcasts, rows.Err()
}

func scanPodcast(row rowScanner) (Podcast, error) {
	var podcast Podcast
	var audioPath sql.NullString
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime

	err := row.Scan(
		&podcast.ID, &podcast.ReportID, &podcast.Status, &podcast.Style,
		&podcast.DurationClass, &podcast.RetryCount, &podcast.MaxRetries,
		&audioPath, &podcast.DurationSeconds, &errorMessage,
		&podcast.CreatedAt, &podcast.UpdatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return Podcast{}, err
	}
	podcast.AudioPath = audioPath.String
	podcast.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		podcast.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		podcast.CompletedAt = &completedAt.Time
	}
	return podcast, nil
}
