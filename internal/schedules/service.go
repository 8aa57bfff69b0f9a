package schedules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingsmanrocky-max/account-intelligence/internal/activity"
	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

// ReportCreator is the orchestrator surface schedule execution needs.
type ReportCreator interface {
	Create(ctx context.Context, input reports.CreateInput) (reports.Report, error)
}

// TemplateInput is the request to create or update a template.
type TemplateInput struct {
	Name          string
	Workflow      string
	Sections      []string
	Depth         string
	ExportFormats []string
	Delivery      *reports.DeliveryOptions
	Podcast       *reports.PodcastOptions
}

// CreateInput is the request to create a schedule.
type CreateInput struct {
	TemplateID string
	CronExpr   string
	Timezone   string
	Companies  []string
	Active     bool
}

// Service owns templates and schedules and executes due runs.
type Service struct {
	Templates TemplateRepo
	Repo      Repo
	Reports   ReportCreator
	Activity  *activity.Service

	// now is swappable for tests.
	now func() time.Time
}

func NewService(templates TemplateRepo, repo Repo, reportCreator ReportCreator, activitySvc *activity.Service) *Service {
	return &Service{
		Templates: templates,
		Repo:      repo,
		Reports:   reportCreator,
		Activity:  activitySvc,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateTemplate validates and saves a report configuration.
func (s *Service) CreateTemplate(ctx context.Context, userID string, input TemplateInput) (Template, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Template{}, errors.New("template name is required")
	}
	if !reports.ValidWorkflow(input.Workflow) {
		return Template{}, fmt.Errorf("unknown workflow %q", input.Workflow)
	}
	sections, err := reports.ResolveSections(input.Workflow, input.Sections)
	if err != nil {
		return Template{}, err
	}

	template := Template{
		ID:            uuid.NewString(),
		UserID:        userID,
		Name:          strings.TrimSpace(input.Name),
		Workflow:      input.Workflow,
		Sections:      sections,
		Depth:         reports.NormalizeDepth(input.Depth),
		ExportFormats: input.ExportFormats,
		Delivery:      input.Delivery,
		Podcast:       input.Podcast,
		CreatedAt:     s.now(),
	}
	if err := s.Templates.Create(ctx, template); err != nil {
		return Template{}, err
	}
	return template, nil
}

func (s *Service) GetTemplate(ctx context.Context, userID, templateID string) (Template, error) {
	template, err := s.Templates.GetByID(ctx, templateID)
	if err != nil {
		return Template{}, err
	}
	if template.UserID != userID {
		return Template{}, ErrTemplateNotFound
	}
	return template, nil
}

func (s *Service) ListTemplates(ctx context.Context, userID string) ([]Template, error) {
	return s.Templates.ListByUser(ctx, userID)
}

// Create validates the recurrence and template, persists the schedule, and
// computes its first run time when active.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (Schedule, error) {
	if err := ValidateRecurrence(input.CronExpr, input.Timezone); err != nil {
		return Schedule{}, err
	}
	template, err := s.GetTemplate(ctx, userID, input.TemplateID)
	if err != nil {
		return Schedule{}, err
	}
	if err := reports.RequiredCompanies(template.Workflow, input.Companies); err != nil {
		return Schedule{}, err
	}

	schedule := Schedule{
		ID:         uuid.NewString(),
		UserID:     userID,
		TemplateID: template.ID,
		CronExpr:   input.CronExpr,
		Timezone:   normalizeTimezone(input.Timezone),
		Active:     input.Active,
		Companies:  input.Companies,
	}
	if schedule.Active {
		next, err := NextRun(schedule.CronExpr, schedule.Timezone, s.now())
		if err != nil {
			return Schedule{}, err
		}
		schedule.NextRunAt = &next
	}
	if err := s.Repo.Create(ctx, schedule); err != nil {
		return Schedule{}, err
	}
	s.Activity.Record(ctx, userID, "schedule.created", "schedule", schedule.ID, map[string]any{
		"cron":     schedule.CronExpr,
		"timezone": schedule.Timezone,
	})
	return s.Repo.GetByID(ctx, schedule.ID)
}

func (s *Service) Get(ctx context.Context, userID, scheduleID string) (Schedule, error) {
	schedule, err := s.Repo.GetByID(ctx, scheduleID)
	if err != nil {
		return Schedule{}, err
	}
	if schedule.UserID != userID {
		return Schedule{}, ErrNotFound
	}
	return schedule, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Schedule, error) {
	return s.Repo.ListByUser(ctx, userID)
}

// Update edits the recurrence or target companies. Editing the recurrence
// or timezone of an active schedule recomputes its next run immediately.
func (s *Service) Update(ctx context.Context, userID, scheduleID string, input CreateInput) (Schedule, error) {
	schedule, err := s.Get(ctx, userID, scheduleID)
	if err != nil {
		return Schedule{}, err
	}
	if err := ValidateRecurrence(input.CronExpr, input.Timezone); err != nil {
		return Schedule{}, err
	}
	template, err := s.Templates.GetByID(ctx, schedule.TemplateID)
	if err != nil {
		return Schedule{}, err
	}
	if err := reports.RequiredCompanies(template.Workflow, input.Companies); err != nil {
		return Schedule{}, err
	}

	schedule.CronExpr = input.CronExpr
	schedule.Timezone = normalizeTimezone(input.Timezone)
	schedule.Companies = input.Companies
	if schedule.Active {
		next, err := NextRun(schedule.CronExpr, schedule.Timezone, s.now())
		if err != nil {
			return Schedule{}, err
		}
		schedule.NextRunAt = &next
	}
	if err := s.Repo.Update(ctx, schedule); err != nil {
		return Schedule{}, err
	}
	return s.Repo.GetByID(ctx, scheduleID)
}

// Activate turns a schedule on and computes its next run.
func (s *Service) Activate(ctx context.Context, userID, scheduleID string) (Schedule, error) {
	schedule, err := s.Get(ctx, userID, scheduleID)
	if err != nil {
		return Schedule{}, err
	}
	next, err := NextRun(schedule.CronExpr, schedule.Timezone, s.now())
	if err != nil {
		return Schedule{}, err
	}
	if _, err := s.Repo.SetActive(ctx, scheduleID, true, &next); err != nil {
		return Schedule{}, err
	}
	return s.Repo.GetByID(ctx, scheduleID)
}

// Deactivate turns a schedule off; the next run is cleared so the poller
// never considers it.
func (s *Service) Deactivate(ctx context.Context, userID, scheduleID string) (Schedule, error) {
	if _, err := s.Get(ctx, userID, scheduleID); err != nil {
		return Schedule{}, err
	}
	if _, err := s.Repo.SetActive(ctx, scheduleID, false, nil); err != nil {
		return Schedule{}, err
	}
	return s.Repo.GetByID(ctx, scheduleID)
}

func (s *Service) Delete(ctx context.Context, userID, scheduleID string) error {
	if _, err := s.Get(ctx, userID, scheduleID); err != nil {
		return err
	}
	return s.Repo.Delete(ctx, scheduleID)
}

// TriggerNow executes a schedule immediately, outside its recurrence.
func (s *Service) TriggerNow(ctx context.Context, userID, scheduleID string) (Schedule, error) {
	schedule, err := s.Get(ctx, userID, scheduleID)
	if err != nil {
		return Schedule{}, err
	}
	s.Execute(ctx, schedule)
	return s.Repo.GetByID(ctx, scheduleID)
}

// ListDue returns active schedules whose next run is at or before now.
func (s *Service) ListDue(ctx context.Context, limit int) ([]Schedule, error) {
	return s.Repo.ListDue(ctx, s.now(), limit)
}

// Execute runs one scheduled report creation. The next run is always
// recomputed and persisted regardless of outcome, so one bad schedule can
// never loop forever; failures only increment the persisted counter.
func (s *Service) Execute(ctx context.Context, schedule Schedule) {
	runAt := s.now()
	failureCount := schedule.FailureCount

	if err := s.runReport(ctx, schedule, runAt); err != nil {
		failureCount++
		telemetry.Error("schedule.run_failed", map[string]any{
			"schedule_id": schedule.ID,
			"failures":    failureCount,
			"error":       err.Error(),
		})
	} else {
		telemetry.Info("schedule.run_ok", map[string]any{
			"schedule_id": schedule.ID,
		})
	}

	var nextRunAt *time.Time
	if schedule.Active {
		next, err := NextRun(schedule.CronExpr, schedule.Timezone, runAt)
		if err != nil {
			telemetry.Error("schedule.next_run_failed", map[string]any{
				"schedule_id": schedule.ID,
				"error":       err.Error(),
			})
		} else {
			nextRunAt = &next
		}
	}
	if err := s.Repo.RecordRun(ctx, schedule.ID, runAt, nextRunAt, failureCount); err != nil {
		telemetry.Error("schedule.record_run_failed", map[string]any{
			"schedule_id": schedule.ID,
			"error":       err.Error(),
		})
	}
}

func (s *Service) runReport(ctx context.Context, schedule Schedule, runAt time.Time) error {
	template, err := s.Templates.GetByID(ctx, schedule.TemplateID)
	if err != nil {
		return fmt.Errorf("resolve template: %w", err)
	}
	if err := reports.RequiredCompanies(template.Workflow, schedule.Companies); err != nil {
		return err
	}

	title := fmt.Sprintf("%s - %s", template.Name, runAt.Format("2006-01-02 15:04"))
	_, err = s.Reports.Create(ctx, reports.CreateInput{
		UserID:        schedule.UserID,
		Workflow:      template.Workflow,
		Title:         title,
		Companies:     schedule.Companies,
		Depth:         template.Depth,
		Sections:      template.Sections,
		ExportFormats: template.ExportFormats,
		Delivery:      template.Delivery,
		Podcast:       template.Podcast,
	})
	return err
}
