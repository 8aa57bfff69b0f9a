package exports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingsmanrocky-max/account-intelligence/internal/activity"
	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/metrics"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/storage/object"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

const (
	defaultTTL        = 7 * 24 * time.Hour
	defaultMaxRetries = 3
)

var (
	ErrReportNotReady  = errors.New("report is not completed")
	ErrNotDownloadable = errors.New("export artifact is not available")
)

// ReportSource resolves reports for rendering and ownership checks.
type ReportSource interface {
	GetByID(ctx context.Context, reportID string) (reports.Report, error)
}

// Service owns the document export job table.
type Service struct {
	Repo      Repo
	Reports   ReportSource
	Renderers RendererSet
	Store     object.ObjectStore
	Activity  *activity.Service
	TTL       time.Duration

	// spawn is swappable for tests; the default processes asynchronously.
	spawn func(exportID string)
}

func (s *Service) spawnProcess(exportID string) {
	if s.spawn != nil {
		s.spawn(exportID)
		return
	}
	go s.process(context.Background(), exportID)
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return defaultTTL
}

// RequestEager implements the report-completion trigger.
func (s *Service) RequestEager(ctx context.Context, reportID, format string) error {
	_, err := s.Request(ctx, reportID, format, TriggerEager)
	return err
}

// Request is the idempotent upsert: a completed export is returned
// unchanged; a failed or expired export is reset to pending with cleared
// artifacts; otherwise a new pending job is created with a fresh TTL.
// Pending work is processed asynchronously.
func (s *Service) Request(ctx context.Context, reportID, format, reason string) (Export, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if !ValidFormat(format) {
		return Export{}, fmt.Errorf("unsupported export format %q", format)
	}
	if reason != TriggerEager {
		reason = TriggerOnDemand
	}

	report, err := s.Reports.GetByID(ctx, reportID)
	if err != nil {
		return Export{}, err
	}
	if report.Status != reports.StatusCompleted {
		return Export{}, ErrReportNotReady
	}

	existing, err := s.Repo.GetByReportFormat(ctx, reportID, format)
	switch {
	case err == nil:
		switch existing.Status {
		case StatusCompleted:
			return existing, nil
		case StatusPending, StatusProcessing:
			return existing, nil
		case StatusFailed, StatusExpired:
			if existing.FilePath != "" {
				if delErr := s.Store.Delete(ctx, existing.FilePath); delErr != nil && !errors.Is(delErr, object.ErrNotFound) {
					telemetry.Warn("export.artifact_delete_failed", map[string]any{
						"export_id": existing.ID,
						"path":      existing.FilePath,
						"error":     delErr.Error(),
					})
				}
			}
			reset, resetErr := s.Repo.ResetToPending(ctx, existing.ID, time.Now().UTC().Add(s.ttl()))
			if resetErr != nil {
				return Export{}, resetErr
			}
			if reset {
				s.spawnProcess(existing.ID)
			}
			return s.Repo.GetByID(ctx, existing.ID)
		}
		return existing, nil
	case errors.Is(err, ErrNotFound):
		// fall through to create
	default:
		return Export{}, err
	}

	export := Export{
		ID:            uuid.NewString(),
		ReportID:      reportID,
		Format:        format,
		Status:        StatusPending,
		TriggerReason: reason,
		MaxRetries:    defaultMaxRetries,
		CreatedAt:     time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(s.ttl()),
	}
	if err := s.Repo.Create(ctx, export); err != nil {
		return Export{}, err
	}
	s.Activity.Record(ctx, report.UserID, "export.requested", "export", export.ID, map[string]any{
		"report_id": reportID,
		"format":    format,
		"trigger":   reason,
	})

	s.spawnProcess(export.ID)

	return export, nil
}

// Process renders one pending export synchronously. Safe to call twice: the
// pending guard makes the second call a no-op.
func (s *Service) Process(ctx context.Context, exportID string) error {
	return s.process(ctx, exportID)
}

func (s *Service) process(ctx context.Context, exportID string) error {
	claimed, err := s.Repo.MarkProcessing(ctx, exportID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	startedAt := time.Now().UTC()

	export, err := s.Repo.GetByID(ctx, exportID)
	if err != nil {
		return s.failOrRequeue(ctx, exportID, fmt.Errorf("export lookup: %w", err))
	}
	report, err := s.Reports.GetByID(ctx, export.ReportID)
	if err != nil {
		return s.failOrRequeue(ctx, exportID, fmt.Errorf("report lookup: %w", err))
	}
	renderer, err := s.Renderers.For(export.Format)
	if err != nil {
		return s.failOrRequeue(ctx, exportID, err)
	}

	artifact, err := renderer.Render(report)
	if err != nil {
		return s.failOrRequeue(ctx, exportID, fmt.Errorf("render %s: %w", export.Format, err))
	}

	key := artifactKey(export)
	size, err := s.Store.Save(ctx, key, renderer.ContentType(), bytes.NewReader(artifact))
	if err != nil {
		return s.failOrRequeue(ctx, exportID, fmt.Errorf("store artifact: %w", err))
	}

	done, err := s.Repo.MarkCompleted(ctx, exportID, key, size)
	if err != nil || !done {
		if err == nil {
			err = errors.New("export left processing state")
		}
		return s.failOrRequeue(ctx, exportID, err)
	}

	metrics.IncExportCompleted()
	metrics.ObserveExportDurationMs(float64(time.Since(startedAt).Milliseconds()))
	telemetry.Info("export.completed", map[string]any{
		"export_id": exportID,
		"report_id": export.ReportID,
		"format":    export.Format,
		"bytes":     size,
	})
	return nil
}

func (s *Service) failOrRequeue(ctx context.Context, exportID string, cause error) error {
	export, err := s.Repo.MarkFailedOrRequeue(ctx, exportID, cause.Error())
	if err != nil {
		telemetry.Error("export.fail_update_failed", map[string]any{
			"export_id": exportID,
			"error":     err.Error(),
			"cause":     cause.Error(),
		})
		return cause
	}
	metrics.IncExportFailed()
	telemetry.Warn("export.attempt_failed", map[string]any{
		"export_id":   exportID,
		"status":      export.Status,
		"retry_count": export.RetryCount,
		"error":       cause.Error(),
	})
	if export.Status == StatusPending {
		s.spawnProcess(exportID)
	}
	return cause
}

// Get returns an export scoped to the report owner.
func (s *Service) Get(ctx context.Context, userID, exportID string) (Export, error) {
	export, err := s.Repo.GetByID(ctx, exportID)
	if err != nil {
		return Export{}, err
	}
	if err := s.checkOwner(ctx, userID, export.ReportID); err != nil {
		return Export{}, err
	}
	return export, nil
}

// ListForReport returns the export jobs for one report.
func (s *Service) ListForReport(ctx context.Context, userID, reportID string) ([]Export, error) {
	if err := s.checkOwner(ctx, userID, reportID); err != nil {
		return nil, err
	}
	return s.Repo.ListByReport(ctx, reportID)
}

// Download opens a completed artifact for streaming. A completed record
// whose file has gone missing is lazily demoted to expired.
func (s *Service) Download(ctx context.Context, userID, exportID string) (Export, io.ReadCloser, error) {
	export, err := s.Get(ctx, userID, exportID)
	if err != nil {
		return Export{}, nil, err
	}
	if export.Status != StatusCompleted || export.FilePath == "" {
		return Export{}, nil, ErrNotDownloadable
	}

	body, err := s.Store.Open(ctx, export.FilePath)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			if _, expireErr := s.Repo.MarkExpired(ctx, export.ID); expireErr != nil {
				telemetry.Warn("export.lazy_expire_failed", map[string]any{
					"export_id": export.ID,
					"error":     expireErr.Error(),
				})
			}
			telemetry.Info("export.lazy_expired", map[string]any{
				"export_id": export.ID,
				"path":      export.FilePath,
			})
			return Export{}, nil, ErrNotDownloadable
		}
		return Export{}, nil, err
	}
	return export, body, nil
}

// OpenArtifact opens a completed export's artifact without ownership
// scoping; used by the delivery processor.
func (s *Service) OpenArtifact(ctx context.Context, export Export) (io.ReadCloser, error) {
	if export.Status != StatusCompleted || export.FilePath == "" {
		return nil, ErrNotDownloadable
	}
	return s.Store.Open(ctx, export.FilePath)
}

// Find returns the export for (report, format) without ownership scoping;
// used by the delivery processor's artifact polling.
func (s *Service) Find(ctx context.Context, reportID, format string) (Export, error) {
	return s.Repo.GetByReportFormat(ctx, reportID, format)
}

// PurgeExpired deletes expired export rows and their files. Returns the
// number of rows removed.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.Repo.ListExpired(ctx, now, 200)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, export := range expired {
		if export.FilePath != "" {
			if err := s.Store.Delete(ctx, export.FilePath); err != nil && !errors.Is(err, object.ErrNotFound) {
				telemetry.Warn("export.purge_file_failed", map[string]any{
					"export_id": export.ID,
					"path":      export.FilePath,
					"error":     err.Error(),
				})
				continue
			}
		}
		if err := s.Repo.Delete(ctx, export.ID); err != nil {
			telemetry.Warn("export.purge_row_failed", map[string]any{
				"export_id": export.ID,
				"error":     err.Error(),
			})
			continue
		}
		removed++
	}
	return removed, nil
}

// DeleteForReport removes all export rows and files for a report; used when
// a report is purged by retention.
func (s *Service) DeleteForReport(ctx context.Context, reportID string) error {
	removed, err := s.Repo.DeleteByReport(ctx, reportID)
	if err != nil {
		return err
	}
	for _, export := range removed {
		if export.FilePath == "" {
			continue
		}
		if err := s.Store.Delete(ctx, export.FilePath); err != nil && !errors.Is(err, object.ErrNotFound) {
			telemetry.Warn("export.purge_file_failed", map[string]any{
				"export_id": export.ID,
				"path":      export.FilePath,
				"error":     err.Error(),
			})
		}
	}
	return nil
}

func (s *Service) checkOwner(ctx context.Context, userID, reportID string) error {
	report, err := s.Reports.GetByID(ctx, reportID)
	if err != nil {
		return err
	}
	if report.UserID != userID {
		return reports.ErrNotFound
	}
	return nil
}

func artifactKey(export Export) string {
	return fmt.Sprintf("exports/%s/%s.%s", export.ReportID, export.ID, export.Format)
}
