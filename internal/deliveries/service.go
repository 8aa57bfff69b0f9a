package deliveries

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingsmanrocky-max/account-intelligence/internal/activity"
	"github.com/kingsmanrocky-max/account-intelligence/internal/exports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/jobs"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/metrics"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

const (
	defaultMaxRetries   = 3
	defaultWaitStep     = 2 * time.Second
	defaultWaitAttempts = 5
	backoffBase         = 1 * time.Second
	backoffMax          = 10 * time.Second
	summaryLimit        = 600
)

// ReportSource reads the report a delivery belongs to.
type ReportSource interface {
	GetByID(ctx context.Context, reportID string) (reports.Report, error)
}

// ExportClient is the export-processor surface the delivery processor needs
// to materialize report attachments.
type ExportClient interface {
	RequestEager(ctx context.Context, reportID, format string) error
	Find(ctx context.Context, reportID, format string) (exports.Export, error)
	OpenArtifact(ctx context.Context, export exports.Export) (io.ReadCloser, error)
}

// AudioSource reads a finished podcast's audio for attachment. Implemented
// by the podcast processor and injected at bootstrap.
type AudioSource interface {
	OpenAudio(ctx context.Context, podcastID string) (filename string, size int64, body io.ReadCloser, err error)
}

// Service is the delivery processor: it pushes finished reports and
// podcasts to an external messaging destination. It is invoked directly by
// triggers rather than polling.
type Service struct {
	Repo      Repo
	Reports   ReportSource
	Exports   ExportClient
	Audio     AudioSource
	Messenger Messenger
	Activity  *activity.Service

	WaitStep     time.Duration
	WaitAttempts int

	// sleep and spawn are swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
	spawn func(kind, deliveryID string)
}

func NewService(repo Repo, reportSource ReportSource, exportClient ExportClient, messenger Messenger, activitySvc *activity.Service) *Service {
	s := &Service{
		Repo:         repo,
		Reports:      reportSource,
		Exports:      exportClient,
		Messenger:    messenger,
		Activity:     activitySvc,
		WaitStep:     defaultWaitStep,
		WaitAttempts: defaultWaitAttempts,
		sleep:        jobs.Sleep,
	}
	s.spawn = s.spawnDeliver
	return s
}

func (s *Service) spawnDeliver(kind, deliveryID string) {
	go func() {
		if err := s.Deliver(context.Background(), kind, deliveryID); err != nil {
			telemetry.Warn("delivery.run_failed", map[string]any{
				"delivery_id": deliveryID,
				"kind":        kind,
				"error":       err.Error(),
			})
		}
	}()
}

// ScheduleForReport creates the delivery job for a completed report and
// dispatches it asynchronously. Fired by the report orchestrator.
func (s *Service) ScheduleForReport(ctx context.Context, report reports.Report) error {
	opts := report.Delivery
	if opts == nil || !opts.Enabled {
		return nil
	}
	if strings.TrimSpace(opts.Destination) == "" {
		return errors.New("delivery destination is required")
	}

	mode := opts.ContentMode
	if mode != ModeSummary {
		mode = ModeAttachment
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if mode == ModeAttachment && !exports.ValidFormat(format) {
		format = exports.FormatPDF
	}

	delivery := Delivery{
		ID:              uuid.NewString(),
		TargetKind:      TargetReport,
		TargetID:        report.ID,
		Method:          "slack",
		Destination:     strings.TrimSpace(opts.Destination),
		DestinationType: normalizeDestinationType(opts.DestinationType),
		ContentMode:     mode,
		Format:          format,
		Status:          StatusPending,
		MaxRetries:      defaultMaxRetries,
	}
	if err := s.Repo.Create(ctx, delivery); err != nil {
		return err
	}
	s.Activity.Record(ctx, report.UserID, "delivery.scheduled", "delivery", delivery.ID, map[string]any{
		"report_id": report.ID,
		"mode":      mode,
	})
	s.spawn(TargetReport, delivery.ID)
	return nil
}

// ScheduleForPodcast creates a pending delivery job for a podcast. The job
// is not dispatched here: the podcast processor triggers pending podcast
// deliveries once synthesis completes.
func (s *Service) ScheduleForPodcast(ctx context.Context, podcastID, destination, destinationType string) (Delivery, error) {
	if strings.TrimSpace(destination) == "" {
		return Delivery{}, errors.New("delivery destination is required")
	}
	delivery := Delivery{
		ID:              uuid.NewString(),
		TargetKind:      TargetPodcast,
		TargetID:        podcastID,
		Method:          "slack",
		Destination:     strings.TrimSpace(destination),
		DestinationType: normalizeDestinationType(destinationType),
		Status:          StatusPending,
		MaxRetries:      defaultMaxRetries,
	}
	if err := s.Repo.Create(ctx, delivery); err != nil {
		return Delivery{}, err
	}
	return delivery, nil
}

// DispatchPendingForPodcast triggers every pending delivery referencing the
// given podcast. Called by the podcast processor on completion.
func (s *Service) DispatchPendingForPodcast(ctx context.Context, podcastID string) error {
	pending, err := s.Repo.ListPendingByTarget(ctx, TargetPodcast, podcastID)
	if err != nil {
		return err
	}
	for _, delivery := range pending {
		s.spawn(TargetPodcast, delivery.ID)
	}
	return nil
}

// Deliver executes one delivery job end to end. Only pending jobs run; a
// retryable failure under the ceiling requeues the job as pending and
// re-dispatches it after a backoff, anything else fails it permanently.
func (s *Service) Deliver(ctx context.Context, kind, deliveryID string) error {
	delivery, err := s.Repo.GetByID(ctx, kind, deliveryID)
	if err != nil {
		return err
	}
	if delivery.Status != StatusPending {
		telemetry.Info("delivery.skip", map[string]any{
			"delivery_id": deliveryID,
			"status":      delivery.Status,
		})
		return nil
	}

	messageID, sendErr := s.send(ctx, delivery)
	if sendErr != nil {
		return s.failOrRequeue(ctx, delivery, sendErr)
	}

	matched, err := s.Repo.MarkSent(ctx, kind, deliveryID)
	if err != nil {
		return err
	}
	if !matched {
		return nil
	}
	metrics.IncDeliverySent()
	telemetry.Info("delivery.sent", map[string]any{
		"delivery_id": deliveryID,
		"kind":        kind,
		"message_id":  messageID,
	})
	return nil
}

func (s *Service) send(ctx context.Context, delivery Delivery) (string, error) {
	dest := Destination{Type: delivery.DestinationType, Address: delivery.Destination}

	if delivery.TargetKind == TargetPodcast {
		if s.Audio == nil {
			return "", &Error{Kind: KindTransient, Message: "no audio source configured"}
		}
		filename, size, body, err := s.Audio.OpenAudio(ctx, delivery.TargetID)
		if err != nil {
			return "", err
		}
		defer body.Close()
		return s.Messenger.SendFile(ctx, dest, filename, "Podcast briefing", size, body)
	}

	report, err := s.Reports.GetByID(ctx, delivery.TargetID)
	if err != nil {
		return "", err
	}
	if delivery.ContentMode == ModeSummary {
		return s.Messenger.SendText(ctx, dest, summaryText(report))
	}

	export, err := s.awaitArtifact(ctx, delivery)
	if err != nil {
		return "", err
	}
	body, err := s.Exports.OpenArtifact(ctx, export)
	if err != nil {
		return "", err
	}
	defer body.Close()
	filename := fmt.Sprintf("%s.%s", slugTitle(report.Title), delivery.Format)
	return s.Messenger.SendFile(ctx, dest, filename, report.Title, export.FileSize, body)
}

// awaitArtifact returns the completed export for the delivery's report and
// format. If the artifact is not ready it triggers generation and polls
// with a linearly increasing wait; rendering time is roughly constant, so
// exponential growth would only add latency.
func (s *Service) awaitArtifact(ctx context.Context, delivery Delivery) (exports.Export, error) {
	export, err := s.Exports.Find(ctx, delivery.TargetID, delivery.Format)
	if err == nil && export.Status == exports.StatusCompleted {
		return export, nil
	}
	if err != nil && !errors.Is(err, exports.ErrNotFound) {
		return exports.Export{}, err
	}

	if err := s.Exports.RequestEager(ctx, delivery.TargetID, delivery.Format); err != nil {
		return exports.Export{}, fmt.Errorf("trigger export: %w", err)
	}

	for attempt := 1; attempt <= s.WaitAttempts; attempt++ {
		if err := s.sleep(ctx, jobs.LinearWait(attempt, s.WaitStep)); err != nil {
			return exports.Export{}, err
		}
		export, err = s.Exports.Find(ctx, delivery.TargetID, delivery.Format)
		if err != nil {
			if errors.Is(err, exports.ErrNotFound) {
				continue
			}
			return exports.Export{}, err
		}
		switch export.Status {
		case exports.StatusCompleted:
			return export, nil
		case exports.StatusFailed:
			return exports.Export{}, &Error{
				Kind:    KindTransient,
				Message: "export failed: " + export.ErrorMessage,
			}
		}
	}
	return exports.Export{}, &Error{Kind: KindTransient, Message: "export artifact not ready"}
}

func (s *Service) failOrRequeue(ctx context.Context, delivery Delivery, cause error) error {
	retryable := IsRetryable(cause)
	updated, err := s.Repo.MarkFailedOrRequeue(ctx, delivery.TargetKind, delivery.ID, sanitizeError(cause), retryable)
	if err != nil {
		telemetry.Error("delivery.retry_update_failed", map[string]any{
			"delivery_id": delivery.ID,
			"error":       err.Error(),
		})
		return cause
	}

	if updated.Status == StatusFailed {
		metrics.IncDeliveryFailed()
		telemetry.Error("delivery.failed", map[string]any{
			"delivery_id": delivery.ID,
			"kind":        delivery.TargetKind,
			"retries":     updated.RetryCount,
			"error":       sanitizeError(cause),
		})
		return cause
	}

	delay := jobs.Backoff(updated.RetryCount, backoffBase, backoffMax)
	var classified *Error
	if errors.As(cause, &classified) && classified.RetryAfter > 0 {
		delay = classified.RetryAfter
	}
	telemetry.Warn("delivery.requeued", map[string]any{
		"delivery_id": delivery.ID,
		"kind":        delivery.TargetKind,
		"attempt":     updated.RetryCount,
		"delay_ms":    delay.Milliseconds(),
		"error":       sanitizeError(cause),
	})
	if err := s.sleep(ctx, delay); err != nil {
		return err
	}
	return s.Deliver(ctx, delivery.TargetKind, delivery.ID)
}

// Get returns one delivery scoped to the owner of its report.
func (s *Service) Get(ctx context.Context, userID, kind, deliveryID string) (Delivery, error) {
	delivery, err := s.Repo.GetByID(ctx, kind, deliveryID)
	if err != nil {
		return Delivery{}, err
	}
	if err := s.checkOwner(ctx, userID, delivery); err != nil {
		return Delivery{}, err
	}
	return delivery, nil
}

// ListForReport returns a report's deliveries, owner-scoped.
func (s *Service) ListForReport(ctx context.Context, userID, reportID string) ([]Delivery, error) {
	report, err := s.Reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != userID {
		return nil, ErrNotFound
	}
	return s.Repo.ListByTarget(ctx, TargetReport, reportID)
}

// Retry resets a failed delivery to pending and re-dispatches it.
func (s *Service) Retry(ctx context.Context, userID, kind, deliveryID string) (Delivery, error) {
	delivery, err := s.Get(ctx, userID, kind, deliveryID)
	if err != nil {
		return Delivery{}, err
	}
	matched, err := s.Repo.ResetToPending(ctx, kind, deliveryID)
	if err != nil {
		return Delivery{}, err
	}
	if !matched {
		return Delivery{}, fmt.Errorf("delivery %s is not failed", deliveryID)
	}
	s.Activity.Record(ctx, userID, "delivery.retried", "delivery", deliveryID, nil)
	s.spawn(kind, deliveryID)
	return s.Repo.GetByID(ctx, kind, delivery.ID)
}

func (s *Service) checkOwner(ctx context.Context, userID string, delivery Delivery) error {
	if delivery.TargetKind != TargetReport {
		return nil
	}
	report, err := s.Reports.GetByID(ctx, delivery.TargetID)
	if err != nil {
		return err
	}
	if report.UserID != userID {
		return ErrNotFound
	}
	return nil
}

func normalizeDestinationType(destinationType string) string {
	if destinationType == DestinationEmail {
		return DestinationEmail
	}
	return DestinationChannel
}

// summaryText renders the summary-with-link content mode: title, workflow,
// and the leading section trimmed to a readable length.
func summaryText(report reports.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", report.Title)
	fmt.Fprintf(&b, "Workflow: %s | Companies: %s\n", report.Workflow, strings.Join(report.Companies, ", "))
	for _, section := range report.Sections {
		content, ok := report.Content[section]
		if !ok || content == "" {
			continue
		}
		content = strings.TrimSpace(content)
		if len(content) > summaryLimit {
			content = content[:summaryLimit] + "…"
		}
		fmt.Fprintf(&b, "\n%s\n", content)
		break
	}
	fmt.Fprintf(&b, "\nFull report available in the workspace (id %s).", report.ID)
	return b.String()
}

func slugTitle(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "report"
	}
	return slug
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	message := strings.ReplaceAll(err.Error(), "\n", " ")
	if len(message) > 500 {
		message = message[:500]
	}
	return message
}
