package deliveries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, delivery Delivery) error {
	if delivery.TargetKind == TargetPodcast {
		const query = `
INSERT INTO podcast_deliveries (
  id, podcast_id, method, destination, destination_type, status,
  retry_count, max_retries, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`
		_, err := r.DB.ExecContext(ctx, query,
			delivery.ID,
			delivery.TargetID,
			delivery.Method,
			delivery.Destination,
			delivery.DestinationType,
			delivery.Status,
			delivery.RetryCount,
			delivery.MaxRetries,
		)
		return err
	}

	const query = `
INSERT INTO report_deliveries (
  id, report_id, method, destination, destination_type, content_mode,
  format, status, retry_count, max_retries, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())`
	_, err := r.DB.ExecContext(ctx, query,
		delivery.ID,
		delivery.TargetID,
		delivery.Method,
		delivery.Destination,
		delivery.DestinationType,
		delivery.ContentMode,
		delivery.Format,
		delivery.Status,
		delivery.RetryCount,
		delivery.MaxRetries,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, kind, deliveryID string) (Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 LIMIT 1`,
		columnsFor(kind), tableFor(kind))
	delivery, err := scanDelivery(kind, r.DB.QueryRowContext(ctx, query, deliveryID))
	if errors.Is(err, sql.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	return delivery, err
}

func (r *PGRepo) ListByTarget(ctx context.Context, kind, targetID string) ([]Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY created_at`,
		columnsFor(kind), tableFor(kind), targetColumn(kind))
	return r.queryList(ctx, kind, query, targetID)
}

func (r *PGRepo) ListPendingByTarget(ctx context.Context, kind, targetID string) ([]Delivery, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND status = 'pending' ORDER BY created_at`,
		columnsFor(kind), tableFor(kind), targetColumn(kind))
	return r.queryList(ctx, kind, query, targetID)
}

func (r *PGRepo) MarkSent(ctx context.Context, kind, deliveryID string) (bool, error) {
	query := fmt.Sprintf(`
UPDATE %s
SET status = 'sent', sent_at = now(), last_error = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending'`, tableFor(kind))
	return r.execConditional(ctx, query, deliveryID)
}

// MarkFailedOrRequeue increments the retry count and requeues the job as
// pending while it is retryable and under its ceiling, else fails it.
func (r *PGRepo) MarkFailedOrRequeue(ctx context.Context, kind, deliveryID, lastError string, retryable bool) (Delivery, error) {
	query := fmt.Sprintf(`
UPDATE %s
SET retry_count = retry_count + 1,
    status = CASE WHEN $3 AND retry_count + 1 < max_retries THEN 'pending' ELSE 'failed' END,
    last_error = $2,
    updated_at = now()
WHERE id = $1 AND status = 'pending'
RETURNING %s`, tableFor(kind), columnsFor(kind))
	delivery, err := scanDelivery(kind, r.DB.QueryRowContext(ctx, query, deliveryID, lastError, retryable))
	if errors.Is(err, sql.ErrNoRows) {
		return Delivery{}, ErrNotFound
	}
	return delivery, err
}

func (r *PGRepo) ResetToPending(ctx context.Context, kind, deliveryID string) (bool, error) {
	query := fmt.Sprintf(`
UPDATE %s
SET status = 'pending', retry_count = 0, last_error = NULL, updated_at = now()
WHERE id = $1 AND status = 'failed'`, tableFor(kind))
	return r.execConditional(ctx, query, deliveryID)
}

func (r *PGRepo) queryList(ctx context.Context, kind, query string, args ...any) ([]Delivery, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]Delivery, 0, 4)
	for rows.Next() {
		delivery, err := scanDelivery(kind, rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, rows.Err()
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

func tableFor(kind string) string {
	if kind == TargetPodcast {
		return "podcast_deliveries"
	}
	return "report_deliveries"
}

func targetColumn(kind string) string {
	if kind == TargetPodcast {
		return "podcast_id"
	}
	return "report_id"
}

func columnsFor(kind string) string {
	if kind == TargetPodcast {
		return `id, podcast_id, method, destination, destination_type, status,
retry_count, max_retries, last_error, created_at, updated_at, sent_at`
	}
	return `id, report_id, method, destination, destination_type, content_mode,
format, status, retry_count, max_retries, last_error, created_at, updated_at, sent_at`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(kind string, row rowScanner) (Delivery, error) {
	var delivery Delivery
	var lastError sql.NullString
	var sentAt sql.NullTime

	var err error
	if kind == TargetPodcast {
		err = row.Scan(
			&delivery.ID,
			&delivery.TargetID,
			&delivery.Method,
			&delivery.Destination,
			&delivery.DestinationType,
			&delivery.Status,
			&delivery.RetryCount,
			&delivery.MaxRetries,
			&lastError,
			&delivery.CreatedAt,
			&delivery.UpdatedAt,
			&sentAt,
		)
		delivery.TargetKind = TargetPodcast
	} else {
		err = row.Scan(
			&delivery.ID,
			&delivery.TargetID,
			&delivery.Method,
			&delivery.Destination,
			&delivery.DestinationType,
			&delivery.ContentMode,
			&delivery.Format,
			&delivery.Status,
			&delivery.RetryCount,
			&delivery.MaxRetries,
			&lastError,
			&delivery.CreatedAt,
			&delivery.UpdatedAt,
			&sentAt,
		)
		delivery.TargetKind = TargetReport
	}
	if err != nil {
		return Delivery{}, err
	}
	delivery.LastError = lastError.String
	if sentAt.Valid {
		delivery.SentAt = &sentAt.Time
	}
	return delivery, nil
}
