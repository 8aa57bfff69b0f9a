package schedules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
)

const templateColumns = `
id, user_id, name, workflow, sections, depth, export_formats,
delivery_options, podcast_options, created_at, updated_at`

const scheduleColumns = `
id, user_id, template_id, cron_expr, timezone, active, companies,
failure_count, last_run_at, next_run_at, created_at, updated_at`

type PGTemplateRepo struct {
	DB *sql.DB
}

func (r *PGTemplateRepo) Create(ctx context.Context, template Template) error {
	sections, formats, delivery, podcast, err := marshalTemplateFields(template)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO report_templates (
  id, user_id, name, workflow, sections, depth, export_formats,
  delivery_options, podcast_options, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`
	_, err = r.DB.ExecContext(ctx, query,
		template.ID, template.UserID, template.Name, template.Workflow,
		sections, template.Depth, formats, delivery, podcast)
	return err
}

func (r *PGTemplateRepo) GetByID(ctx context.Context, templateID string) (Template, error) {
	query := `SELECT` + templateColumns + ` FROM report_templates WHERE id = $1 LIMIT 1`
	template, err := scanTemplate(r.DB.QueryRowContext(ctx, query, templateID))
	if errors.Is(err, sql.ErrNoRows) {
		return Template{}, ErrTemplateNotFound
	}
	return template, err
}

func (r *PGTemplateRepo) ListByUser(ctx context.Context, userID string) ([]Template, error) {
	query := `SELECT` + templateColumns + ` FROM report_templates WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := make([]Template, 0, 8)
	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}
	return templates, rows.Err()
}

func (r *PGTemplateRepo) Update(ctx context.Context, template Template) error {
	sections, formats, delivery, podcast, err := marshalTemplateFields(template)
	if err != nil {
		return err
	}
	const query = `
UPDATE report_templates
SET name = $2, workflow = $3, sections = $4, depth = $5,
    export_formats = $6, delivery_options = $7, podcast_options = $8,
    updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query,
		template.ID, template.Name, template.Workflow, sections,
		template.Depth, formats, delivery, podcast)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (r *PGTemplateRepo) Delete(ctx context.Context, templateID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM report_templates WHERE id = $1`, templateID)
	return err
}

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, schedule Schedule) error {
	companies, err := json.Marshal(schedule.Companies)
	if err != nil {
		return fmt.Errorf("marshal companies: %w", err)
	}
	const query = `
INSERT INTO schedules (
  id, user_id, template_id, cron_expr, timezone, active, companies,
  failure_count, last_run_at, next_run_at, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NULL, $8, now(), now())`
	_, err = r.DB.ExecContext(ctx, query,
		schedule.ID, schedule.UserID, schedule.TemplateID, schedule.CronExpr,
		schedule.Timezone, schedule.Active, companies, schedule.NextRunAt)
	return err
}

func (r *PGRepo) GetByID(ctx context.Context, scheduleID string) (Schedule, error) {
	query := `SELECT` + scheduleColumns + ` FROM schedules WHERE id = $1 LIMIT 1`
	schedule, err := scanSchedule(r.DB.QueryRowContext(ctx, query, scheduleID))
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrNotFound
	}
	return schedule, err
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Schedule, error) {
	query := `SELECT` + scheduleColumns + ` FROM schedules WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryList(ctx, query, userID)
}

func (r *PGRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]Schedule, error) {
	query := `SELECT` + scheduleColumns + `
FROM schedules
WHERE active AND next_run_at IS NOT NULL AND next_run_at <= $1
ORDER BY next_run_at
LIMIT $2`
	return r.queryList(ctx, query, now, limit)
}

func (r *PGRepo) Update(ctx context.Context, schedule Schedule) error {
	companies, err := json.Marshal(schedule.Companies)
	if err != nil {
		return fmt.Errorf("marshal companies: %w", err)
	}
	const query = `
UPDATE schedules
SET cron_expr = $2, timezone = $3, companies = $4, next_run_at = $5,
    updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query,
		schedule.ID, schedule.CronExpr, schedule.Timezone, companies, schedule.NextRunAt)
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

func (r *PGRepo) RecordRun(ctx context.Context, scheduleID string, lastRunAt time.Time, nextRunAt *time.Time, failureCount int) error {
	const query = `
UPDATE schedules
SET last_run_at = $2, next_run_at = $3, failure_count = $4, updated_at = now()
WHERE id = $1`
	_, err := r.DB.ExecContext(ctx, query, scheduleID, lastRunAt, nextRunAt, failureCount)
	return err
}

func (r *PGRepo) SetActive(ctx context.Context, scheduleID string, active bool, nextRunAt *time.Time) (bool, error) {
	const query = `
UPDATE schedules
SET active = $2, next_run_at = $3, updated_at = now()
WHERE id = $1 AND active <> $2`
	res, err := r.DB.ExecContext(ctx, query, scheduleID, active, nextRunAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *PGRepo) Delete(ctx context.Context, scheduleID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, scheduleID)
	return err
}

func (r *PGRepo) queryList(ctx context.Context, query string, args ...any) ([]Schedule, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules := make([]Schedule, 0, 8)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (Template, error) {
	var template Template
	var sections []byte
	var formats []byte
	var delivery []byte
	var podcast []byte

	err := row.Scan(
		&template.ID, &template.UserID, &template.Name, &template.Workflow,
		&sections, &template.Depth, &formats, &delivery, &podcast,
		&template.CreatedAt, &template.UpdatedAt,
	)
	if err != nil {
		return Template{}, err
	}
	if len(sections) > 0 {
		if err := json.Unmarshal(sections, &template.Sections); err != nil {
			return Template{}, fmt.Errorf("unmarshal sections: %w", err)
		}
	}
	if len(formats) > 0 {
		if err := json.Unmarshal(formats, &template.ExportFormats); err != nil {
			return Template{}, fmt.Errorf("unmarshal export formats: %w", err)
		}
	}
	if len(delivery) > 0 {
		template.Delivery = &reports.DeliveryOptions{}
		if err := json.Unmarshal(delivery, template.Delivery); err != nil {
			return Template{}, fmt.Errorf("unmarshal delivery options: %w", err)
		}
	}
	if len(podcast) > 0 {
		template.Podcast = &reports.PodcastOptions{}
		if err := json.Unmarshal(podcast, template.Podcast); err != nil {
			return Template{}, fmt.Errorf("unmarshal podcast options: %w", err)
		}
	}
	return template, nil
}

func scanSchedule(row rowScanner) (Schedule, error) {
	var schedule Schedule
	var companies []byte
	var lastRunAt sql.NullTime
	var nextRunAt sql.NullTime

	err := row.Scan(
		&schedule.ID, &schedule.UserID, &schedule.TemplateID,
		&schedule.CronExpr, &schedule.Timezone, &schedule.Active,
		&companies, &schedule.FailureCount, &lastRunAt, &nextRunAt,
		&schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err != nil {
		return Schedule{}, err
	}
	if err := json.Unmarshal(companies, &schedule.Companies); err != nil {
		return Schedule{}, fmt.Errorf("unmarshal companies: %w", err)
	}
	if lastRunAt.Valid {
		schedule.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		schedule.NextRunAt = &nextRunAt.Time
	}
	return schedule, nil
}

func marshalTemplateFields(template Template) (sections, formats, delivery, podcast any, err error) {
	if len(template.Sections) > 0 {
		if sections, err = json.Marshal(template.Sections); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal sections: %w", err)
		}
	}
	if len(template.ExportFormats) > 0 {
		if formats, err = json.Marshal(template.ExportFormats); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal export formats: %w", err)
		}
	}
	if template.Delivery != nil {
		if delivery, err = json.Marshal(template.Delivery); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal delivery options: %w", err)
		}
	}
	if template.Podcast != nil {
		if podcast, err = json.Marshal(template.Podcast); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal podcast options: %w", err)
		}
	}
	return sections, formats, delivery, podcast, nil
}
