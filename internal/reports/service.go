package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingsmanrocky-max/account-intelligence/internal/activity"
	"github.com/kingsmanrocky-max/account-intelligence/internal/llm"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/metrics"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

// Completer is the completion layer consumed section by section.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Downstream triggers fired after a report completes. The orchestrator only
// holds these interfaces; the processors register themselves at bootstrap.
type (
	ExportTrigger interface {
		RequestEager(ctx context.Context, reportID, format string) error
	}
	DeliveryTrigger interface {
		ScheduleForReport(ctx context.Context, report Report) error
	}
	PodcastTrigger interface {
		RequestForReport(ctx context.Context, report Report) error
	}
)

// CreateInput is the request to create a report.
type CreateInput struct {
	UserID        string
	Workflow      string
	Title         string
	Companies     []string
	Depth         string
	Sections      []string
	ExportFormats []string
	Delivery      *DeliveryOptions
	Podcast       *PodcastOptions
}

// Service drives reports through their lifecycle.
type Service struct {
	Repo       Repo
	Completer  Completer
	Analytics  AnalyticsRecorder
	Activity   *activity.Service
	Exports    ExportTrigger
	Deliveries DeliveryTrigger
	Podcasts   PodcastTrigger
}

// Create validates and persists a new report, launches generation
// asynchronously, and returns the pending record immediately.
func (s *Service) Create(ctx context.Context, input CreateInput) (Report, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return Report{}, errors.New("user id is required")
	}
	if !ValidWorkflow(input.Workflow) {
		return Report{}, fmt.Errorf("unknown workflow %q", input.Workflow)
	}
	if err := RequiredCompanies(input.Workflow, input.Companies); err != nil {
		return Report{}, err
	}
	sections, err := ResolveSections(input.Workflow, input.Sections)
	if err != nil {
		return Report{}, err
	}

	depth := NormalizeDepth(input.Depth)
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = defaultTitle(input.Workflow, input.Companies)
	}

	report := Report{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		Workflow:      input.Workflow,
		Title:         title,
		Status:        StatusPending,
		Companies:     trimCompanies(input.Companies),
		Depth:         depth,
		Sections:      sections,
		TokenBudget:   TokenBudget(depth),
		ExportFormats: input.ExportFormats,
		Delivery:      input.Delivery,
		Podcast:       input.Podcast,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.Repo.Create(ctx, report); err != nil {
		return Report{}, err
	}
	s.Activity.Record(ctx, report.UserID, "report.created", "report", report.ID, map[string]any{
		"workflow": report.Workflow,
		"depth":    report.Depth,
	})

	go s.generate(context.Background(), report.ID)

	return report, nil
}

// Get returns a report by id, scoped to its owner.
func (s *Service) Get(ctx context.Context, userID, reportID string) (Report, error) {
	report, err := s.Repo.GetByID(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if report.UserID != userID {
		return Report{}, ErrNotFound
	}
	return report, nil
}

// List returns a user's reports newest-first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Report, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// Delete soft-deletes a report.
func (s *Service) Delete(ctx context.Context, userID, reportID string) error {
	if err := s.Repo.SoftDelete(ctx, userID, reportID); err != nil {
		return err
	}
	s.Activity.Record(ctx, userID, "report.deleted", "report", reportID, nil)
	return nil
}

// Retry resets a failed report back to pending, clearing prior content, and
// re-enters generation. Only failed reports are retryable.
func (s *Service) Retry(ctx context.Context, userID, reportID string) (Report, error) {
	report, err := s.Get(ctx, userID, reportID)
	if err != nil {
		return Report{}, err
	}
	if report.Status != StatusFailed {
		return Report{}, fmt.Errorf("report %s is %s, only failed reports can be retried", reportID, report.Status)
	}

	reset, err := s.Repo.ResetForRetry(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if !reset {
		return Report{}, fmt.Errorf("report %s is no longer failed", reportID)
	}
	s.Activity.Record(ctx, userID, "report.retried", "report", reportID, nil)

	go s.generate(context.Background(), reportID)

	return s.Repo.GetByID(ctx, reportID)
}

func (s *Service) generate(ctx context.Context, reportID string) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, reportID, fmt.Errorf("panic: %v", r), nil)
		}
	}()

	startedAt := time.Now().UTC()
	claimed, err := s.Repo.MarkProcessing(ctx, reportID, startedAt)
	if err != nil {
		s.fail(ctx, reportID, fmt.Errorf("set processing failed: %w", err), &startedAt)
		return
	}
	if !claimed {
		telemetry.Info("report.skip", map[string]any{
			"report_id": reportID,
			"reason":    "not pending",
		})
		return
	}

	report, err := s.Repo.GetByID(ctx, reportID)
	if err != nil {
		s.fail(ctx, reportID, fmt.Errorf("report lookup: %w", err), &startedAt)
		return
	}
	metrics.IncReportStarted()
	telemetry.Info("report.status", map[string]any{
		"report_id":         report.ID,
		"user_id":           report.UserID,
		"workflow":          report.Workflow,
		"status":            StatusProcessing,
		"status_transition": "pending->processing",
	})

	if s.Completer == nil {
		s.fail(ctx, reportID, errors.New("missing completion provider"), &startedAt)
		return
	}

	// Sections generate strictly in order: later sections ride on earlier
	// ones as prompt context.
	generated := make(map[string]string, len(report.Sections))
	tokensUsed := 0
	for _, section := range report.Sections {
		resp, err := s.Completer.Complete(ctx, llm.Request{
			System:    systemPrompt,
			Prompt:    sectionPrompt(report, section, generated),
			MaxTokens: report.TokenBudget,
		})
		if err != nil {
			s.fail(ctx, reportID, fmt.Errorf("section %s: %w", section, err), &startedAt)
			return
		}
		generated[section] = resp.Text
		tokensUsed += resp.Usage.TotalTokens
		if err := s.Repo.StoreSection(ctx, reportID, section, resp.Text, resp.Usage.TotalTokens); err != nil {
			s.fail(ctx, reportID, fmt.Errorf("store section %s: %w", section, err), &startedAt)
			return
		}
	}

	completedAt := time.Now().UTC()
	done, err := s.Repo.MarkCompleted(ctx, reportID, tokensUsed, completedAt)
	if err != nil || !done {
		if err == nil {
			err = errors.New("report left processing state")
		}
		s.fail(ctx, reportID, fmt.Errorf("set completed failed: %w", err), &startedAt)
		return
	}

	durationMs := completedAt.Sub(startedAt).Milliseconds()
	metrics.IncReportCompleted()
	metrics.ObserveReportDurationMs(float64(durationMs))
	telemetry.Info("report.status", map[string]any{
		"report_id":         report.ID,
		"user_id":           report.UserID,
		"workflow":          report.Workflow,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs,
		"tokens_used":       tokensUsed,
	})

	if s.Analytics != nil {
		if err := s.Analytics.RecordCompletion(ctx, report.Workflow, completedAt, durationMs); err != nil {
			telemetry.Warn("report.analytics_failed", map[string]any{
				"report_id": report.ID,
				"error":     err.Error(),
			})
		}
	}

	report.Status = StatusCompleted
	report.Content = generated
	s.fireDownstream(ctx, report)
}

// fireDownstream triggers exports, delivery, and podcast generation in
// sequence. Trigger failures are logged and never revert the completed
// report; each downstream job retries through its own record.
func (s *Service) fireDownstream(ctx context.Context, report Report) {
	if s.Exports != nil {
		for _, format := range report.ExportFormats {
			if err := s.Exports.RequestEager(ctx, report.ID, format); err != nil {
				telemetry.Error("report.export_trigger_failed", map[string]any{
					"report_id": report.ID,
					"format":    format,
					"error":     err.Error(),
				})
			}
		}
	}
	if s.Deliveries != nil && report.Delivery != nil && report.Delivery.Enabled {
		if err := s.Deliveries.ScheduleForReport(ctx, report); err != nil {
			telemetry.Error("report.delivery_trigger_failed", map[string]any{
				"report_id": report.ID,
				"error":     err.Error(),
			})
		}
	}
	if s.Podcasts != nil && report.Podcast != nil && report.Podcast.Enabled {
		if err := s.Podcasts.RequestForReport(ctx, report); err != nil {
			telemetry.Error("report.podcast_trigger_failed", map[string]any{
				"report_id": report.ID,
				"error":     err.Error(),
			})
		}
	}
}

func (s *Service) fail(ctx context.Context, reportID string, cause error, startedAt *time.Time) {
	completedAt := time.Now().UTC()
	if _, updateErr := s.Repo.MarkFailed(context.Background(), reportID, sanitizeError(cause), completedAt); updateErr != nil {
		telemetry.Error("report.fail_update_failed", map[string]any{
			"report_id": reportID,
			"error":     updateErr.Error(),
			"cause":     cause.Error(),
		})
	}
	metrics.IncReportFailed()
	fields := map[string]any{
		"report_id":         reportID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"error":             sanitizeError(cause),
	}
	if startedAt != nil {
		fields["duration_ms"] = completedAt.Sub(*startedAt).Milliseconds()
	}
	telemetry.Info("report.status", fields)
}

func defaultTitle(workflow string, companies []string) string {
	subject := "Account"
	for _, company := range companies {
		if strings.TrimSpace(company) != "" {
			subject = strings.TrimSpace(company)
			break
		}
	}
	switch workflow {
	case WorkflowDueDiligence:
		return subject + " Due Diligence"
	case WorkflowCompetitiveLandscape:
		return subject + " Competitive Landscape"
	default:
		return subject + " Company Profile"
	}
}

func trimCompanies(companies []string) []string {
	out := make([]string, 0, len(companies))
	for _, company := range companies {
		if trimmed := strings.TrimSpace(company); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
