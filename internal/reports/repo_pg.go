package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, report Report) error {
	companies, err := json.Marshal(report.Companies)
	if err != nil {
		return fmt.Errorf("marshal companies: %w", err)
	}
	sections, err := json.Marshal(report.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	formats, err := marshalNullable(report.ExportFormats)
	if err != nil {
		return fmt.Errorf("marshal export formats: %w", err)
	}
	delivery, err := marshalNullable(report.Delivery)
	if err != nil {
		return fmt.Errorf("marshal delivery options: %w", err)
	}
	podcast, err := marshalNullable(report.Podcast)
	if err != nil {
		return fmt.Errorf("marshal podcast options: %w", err)
	}

	const query = `
INSERT INTO reports (
  id, user_id, workflow, title, status, companies, depth, sections,
  token_budget, export_formats, delivery_options, podcast_options, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = r.DB.ExecContext(ctx, query,
		report.ID,
		report.UserID,
		report.Workflow,
		report.Title,
		report.Status,
		companies,
		report.Depth,
		sections,
		report.TokenBudget,
		formats,
		delivery,
		podcast,
		report.CreatedAt,
	)
	return err
}

const reportColumns = `
id, user_id, workflow, title, status, companies, depth, sections,
token_budget, export_formats, delivery_options, podcast_options, content,
tokens_used, error_message, created_at, started_at, completed_at`

func (r *PGRepo) GetByID(ctx context.Context, reportID string) (Report, error) {
	query := `SELECT` + reportColumns + `
FROM reports
WHERE id = $1 AND deleted_at IS NULL
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, reportID)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Report{}, ErrNotFound
		}
		return Report{}, err
	}
	return report, nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Report, error) {
	query := `SELECT` + reportColumns + `
FROM reports
WHERE user_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]Report, 0, limit)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (r *PGRepo) MarkProcessing(ctx context.Context, reportID string, startedAt time.Time) (bool, error) {
	const query = `
UPDATE reports
SET status = 'processing', started_at = $2, error_message = NULL
WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL`
	return r.execConditional(ctx, query, reportID, startedAt)
}

func (r *PGRepo) StoreSection(ctx context.Context, reportID, section, text string, tokensUsed int) error {
	encoded, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("marshal section text: %w", err)
	}
	const query = `
UPDATE reports
SET content = jsonb_set(COALESCE(content, '{}'::jsonb), ARRAY[$2], $3::jsonb),
    tokens_used = tokens_used + $4
WHERE id = $1 AND deleted_at IS NULL`
	_, err = r.DB.ExecContext(ctx, query, reportID, section, encoded, tokensUsed)
	return err
}

func (r *PGRepo) MarkCompleted(ctx context.Context, reportID string, tokensUsed int, completedAt time.Time) (bool, error) {
	const query = `
UPDATE reports
SET status = 'completed', tokens_used = $2, completed_at = $3
WHERE id = $1 AND status = 'processing' AND deleted_at IS NULL`
	return r.execConditional(ctx, query, reportID, tokensUsed, completedAt)
}

func (r *PGRepo) MarkFailed(ctx context.Context, reportID, errorMessage string, completedAt time.Time) (bool, error) {
	const query = `
UPDATE reports
SET status = 'failed', error_message = $2, completed_at = $3
WHERE id = $1 AND status IN ('pending', 'processing') AND deleted_at IS NULL`
	return r.execConditional(ctx, query, reportID, errorMessage, completedAt)
}

func (r *PGRepo) ResetForRetry(ctx context.Context, reportID string) (bool, error) {
	const query = `
UPDATE reports
SET status = 'pending', content = NULL, tokens_used = 0,
    error_message = NULL, started_at = NULL, completed_at = NULL
WHERE id = $1 AND status = 'failed' AND deleted_at IS NULL`
	return r.execConditional(ctx, query, reportID)
}

func (r *PGRepo) SoftDelete(ctx context.Context, userID, reportID string) error {
	const query = `
UPDATE reports
SET deleted_at = now()
WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, reportID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Report, error) {
	query := `SELECT` + reportColumns + `
FROM reports
WHERE created_at < $1
ORDER BY created_at
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := make([]Report, 0, limit)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (r *PGRepo) HardDelete(ctx context.Context, reportID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, reportID)
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

func scanReport(row rowScanner) (Report, error) {
	var report Report
	var title sql.NullString
	var companies []byte
	var sections []byte
	var formats []byte
	var delivery []byte
	var podcast []byte
	var content []byte
	var errorMessage sql.NullString
	var startedAt sql.NullTime
	var completedAt sql.NullTime

	err := row.Scan(
		&report.ID,
		&report.UserID,
		&report.Workflow,
		&title,
		&report.Status,
		&companies,
		&report.Depth,
		&sections,
		&report.TokenBudget,
		&formats,
		&delivery,
		&podcast,
		&content,
		&report.TokensUsed,
		&errorMessage,
		&report.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return Report{}, err
	}

	report.Title = title.String
	report.ErrorMessage = errorMessage.String
	if err := json.Unmarshal(companies, &report.Companies); err != nil {
		return Report{}, fmt.Errorf("unmarshal companies: %w", err)
	}
	if err := json.Unmarshal(sections, &report.Sections); err != nil {
		return Report{}, fmt.Errorf("unmarshal sections: %w", err)
	}
	if len(formats) > 0 {
		if err := json.Unmarshal(formats, &report.ExportFormats); err != nil {
			return Report{}, fmt.Errorf("unmarshal export formats: %w", err)
		}
	}
	if len(delivery) > 0 {
		report.Delivery = &DeliveryOptions{}
		if err := json.Unmarshal(delivery, report.Delivery); err != nil {
			return Report{}, fmt.Errorf("unmarshal delivery options: %w", err)
		}
	}
	if len(podcast) > 0 {
		report.Podcast = &PodcastOptions{}
		if err := json.Unmarshal(podcast, report.Podcast); err != nil {
			return Report{}, fmt.Errorf("unmarshal podcast options: %w", err)
		}
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &report.Content); err != nil {
			return Report{}, fmt.Errorf("unmarshal content: %w", err)
		}
	}
	if startedAt.Valid {
		report.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		report.CompletedAt = &completedAt.Time
	}
	return report, nil
}

func marshalNullable(value any) (any, error) {
	switch typed := value.(type) {
	case []string:
		if len(typed) == 0 {
			return nil, nil
		}
	case *DeliveryOptions:
		if typed == nil {
			return nil, nil
		}
	case *PodcastOptions:
		if typed == nil {
			return nil, nil
		}
	}
	return json.Marshal(value)
}
