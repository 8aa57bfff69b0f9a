package exports

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type PGRepo struct {
	DB *sql.DB
}

const exportColumns = `
id, report_id, format, status, trigger_reason, retry_count, max_retries,
file_path, file_size, error_message, created_at, updated_at, expires_at`

func (r *PGRepo) Create(ctx context.Context, export Export) error {
	const query = `
INSERT INTO document_exports (
  id, report_id, format, status, trigger_reason, retry_count, max_retries,
  created_at, updated_at, expires_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now(), $8)`
	_, err := r.DB.ExecContext(ctx, query,
		export.ID,
		export.ReportID,
		export.Format,
		export.Status,
		export.TriggerReason,
		export.RetryCount,
		export.MaxRetries,
		export.ExpiresAt,
	)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, exportID string) (Export, error) {
	query := `SELECT` + exportColumns + `
FROM document_exports
WHERE id = $1
LIMIT 1`
	export, err := scanExport(r.DB.QueryRowContext(ctx, query, exportID))
	if errors.Is(err, sql.ErrNoRows) {
		return Export{}, ErrNotFound
	}
	return export, err
}

func (r *PGRepo) GetByReportFormat(ctx context.Context, reportID, format string) (Export, error) {
	query := `SELECT` + exportColumns + `
FROM document_exports
WHERE report_id = $1 AND format = $2
LIMIT 1`
	export, err := scanExport(r.DB.QueryRowContext(ctx, query, reportID, format))
	if errors.Is(err, sql.ErrNoRows) {
		return Export{}, ErrNotFound
	}
	return export, err
}

func (r *PGRepo) ListByReport(ctx context.Context, reportID string) ([]Export, error) {
	query := `SELECT` + exportColumns + `
FROM document_exports
WHERE report_id = $1
ORDER BY format`
	rows, err := r.DB.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exports := make([]Export, 0, 2)
	for rows.Next() {
		export, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, export)
	}
	return exports, rows.Err()
}

func (r *PGRepo) MarkProcessing(ctx context.Context, exportID string) (bool, error) {
	const query = `
UPDATE document_exports
SET status = 'processing', updated_at = now()
WHERE id = $1 AND status = 'pending'`
	return r.execConditional(ctx, query, exportID)
}

func (r *PGRepo) MarkCompleted(ctx context.Context, exportID, filePath string, fileSize int64) (bool, error) {
	const query = `
UPDATE document_exports
SET status = 'completed', file_path = $2, file_size = $3,
    error_message = NULL, updated_at = now()
WHERE id = $1 AND status = 'processing'`
	return r.execConditional(ctx, query, exportID, filePath, fileSize)
}

// MarkFailedOrRequeue increments the retry count and either requeues the job
// as pending (under the ceiling) or fails it permanently, in one statement.
func (r *PGRepo) MarkFailedOrRequeue(ctx context.Context, exportID, errorMessage string) (Export, error) {
	query := `
UPDATE document_exports
SET retry_count = retry_count + 1,
    status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
    error_message = $2,
    updated_at = now()
WHERE id = $1 AND status = 'processing'
RETURNING` + exportColumns
	export, err := scanExport(r.DB.QueryRowContext(ctx, query, exportID, errorMessage))
	if errors.Is(err, sql.ErrNoRows) {
		return Export{}, ErrNotFound
	}
	return export, err
}

func (r *PGRepo) ResetToPending(ctx context.Context, exportID string, expiresAt time.Time) (bool, error) {
	const query = `
UPDATE document_exports
SET status = 'pending', retry_count = 0, file_path = NULL, file_size = 0,
    error_message = NULL, expires_at = $2, updated_at = now()
WHERE id = $1 AND status IN ('failed', 'expired')`
	return r.execConditional(ctx, query, exportID, expiresAt)
}

func (r *PGRepo) MarkExpired(ctx context.Context, exportID string) (bool, error) {
	const query = `
UPDATE document_exports
SET status = 'expired', updated_at = now()
WHERE id = $1 AND status = 'completed'`
	return r.execConditional(ctx, query, exportID)
}

func (r *PGRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]Export, error) {
	query := `SELECT` + exportColumns + `
FROM document_exports
WHERE (status = 'completed' AND expires_at < $1) OR status = 'expired'
ORDER BY expires_at
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exports := make([]Export, 0, limit)
	for rows.Next() {
		export, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, export)
	}
	return exports, rows.Err()
}

func (r *PGRepo) DeleteByReport(ctx context.Context, reportID string) ([]Export, error) {
	query := `
DELETE FROM document_exports
WHERE report_id = $1
RETURNING` + exportColumns
	rows, err := r.DB.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exports := make([]Export, 0, 2)
	for rows.Next() {
		export, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, export)
	}
	return exports, rows.Err()
}

func (r *PGRepo) Delete(ctx context.Context, exportID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM document_exports WHERE id = $1`, exportID)
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

func scanExport(row rowScanner) (Export, error) {
	var export Export
	var filePath sql.NullString
	var errorMessage sql.NullString
	err := row.Scan(
		&export.ID,
		&export.ReportID,
		&export.Format,
		&export.Status,
		&export.TriggerReason,
		&export.RetryCount,
		&export.MaxRetries,
		&filePath,
		&export.FileSize,
		&errorMessage,
		&export.CreatedAt,
		&export.UpdatedAt,
		&export.ExpiresAt,
	)
	if err != nil {
		return Export{}, err
	}
	export.FilePath = filePath.String
	export.ErrorMessage = errorMessage.String
	return export, nil
}
