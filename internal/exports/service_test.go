package exports

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/activity"
	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/storage/object/local"
)

func setupService(t *testing.T) (*Service, *MemoryRepo, *reports.MemoryRepo) {
	t.Helper()
	reportRepo := reports.NewMemoryRepo()
	exportRepo := NewMemoryRepo()
	svc := &Service{
		Repo:      exportRepo,
		Reports:   reportRepo,
		Renderers: NewRendererSet(),
		Store:     local.New(t.TempDir()),
		Activity:  activity.NewService(),
	}
	// Process synchronously so tests observe deterministic states.
	svc.spawn = func(exportID string) {
		_ = svc.process(context.Background(), exportID)
	}
	return svc, exportRepo, reportRepo
}

func seedCompletedReport(t *testing.T, repo *reports.MemoryRepo, id string) reports.Report {
	t.Helper()
	report := reports.Report{
		ID:        id,
		UserID:    "user-1",
		Workflow:  reports.WorkflowCompanyProfile,
		Title:     "Acme Company Profile",
		Status:    reports.StatusCompleted,
		Companies: []string{"Acme"},
		Depth:     reports.DepthBrief,
		Sections:  []string{"overview", "financials"},
		Content: map[string]string{
			"overview":   "Acme builds everything.\n\nFounded long ago.",
			"financials": "Revenue is healthy.",
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return report
}

func TestRequestRendersAndCompletes(t *testing.T) {
	svc, _, reportRepo := setupService(t)
	report := seedCompletedReport(t, reportRepo, "report-1")

	export, err := svc.Request(context.Background(), report.ID, FormatPDF, TriggerOnDemand)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	got, err := svc.Repo.GetByID(context.Background(), export.ID)
	if err != nil {
		t.Fatalf("get export: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed (error %s)", got.Status, got.ErrorMessage)
	}
	if got.FileSize == 0 || got.FilePath == "" {
		t.Errorf("completed export must carry file path and size, got %q/%d", got.FilePath, got.FileSize)
	}

	body, err := svc.OpenArtifact(context.Background(), got)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("artifact should be a PDF document")
	}
}

func TestRequestIsIdempotentForCompletedExport(t *testing.T) {
	svc, _, reportRepo := setupService(t)
	report := seedCompletedReport(t, reportRepo, "report-1")

	first, err := svc.Request(context.Background(), report.ID, FormatPDF, TriggerOnDemand)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	completed, err := svc.Repo.GetByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("get export: %v", err)
	}

	second, err := svc.Request(context.Background(), report.ID, FormatPDF, TriggerOnDemand)
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if second.ID != completed.ID {
		t.Errorf("second request returned %s, want same export %s", second.ID, completed.ID)
	}
	if second.FilePath != completed.FilePath {
		t.Errorf("second request must return the same file reference, got %q want %q", second.FilePath, completed.FilePath)
	}
	if second.UpdatedAt != completed.UpdatedAt {
		t.Error("second request must not re-render the artifact")
	}
}

func TestRequestResetsFailedExport(t *testing.T) {
	svc, exportRepo, reportRepo := setupService(t)
	report := seedCompletedReport(t, reportRepo, "report-1")

	stale := Export{
		ID:         "export-1",
		ReportID:   report.ID,
		Format:     FormatPDF,
		Status:     StatusFailed,
		RetryCount: 3,
		MaxRetries: 3,
		ExpiresAt:  time.Now().UTC().Add(-time.Hour),
	}
	if err := exportRepo.Create(context.Background(), stale); err != nil {
		t.Fatalf("seed export: %v", err)
	}

	export, err := svc.Request(context.Background(), report.ID, FormatPDF, TriggerOnDemand)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if export.ID != stale.ID {
		t.Fatalf("reset must reuse the existing row, got %s", export.ID)
	}
	if export.Status != StatusCompleted {
		t.Errorf("status = %q, want completed after reprocessing", export.Status)
	}
	if export.RetryCount != 0 {
		t.Errorf("retry count = %d, want reset to 0", export.RetryCount)
	}
}

func TestRequestRejectsUnfinishedReport(t *testing.T) {
	svc, _, reportRepo := setupService(t)
	report := reports.Report{
		ID:       "report-1",
		UserID:   "user-1",
		Workflow: reports.WorkflowCompanyProfile,
		Status:   reports.StatusProcessing,
		Sections: []string{"overview"},
	}
	if err := reportRepo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	if _, err := svc.Request(context.Background(), report.ID, FormatPDF, TriggerOnDemand); !errors.Is(err, ErrReportNotReady) {
		t.Errorf("error = %v, want ErrReportNotReady", err)
	}
}

func TestProcessOnlyClaimsPendingJobs(t *testing.T) {
	svc, exportRepo, reportRepo := setupService(t)
	report := seedCompletedReport(t, reportRepo, "report-1")

	export := Export{
		ID:         "export-1",
		ReportID:   report.ID,
		Format:     FormatPDF,
		Status:     StatusCompleted,
		FilePath:   "exports/report-1/export-1.pdf",
		MaxRetries: 3,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	if err := exportRepo.Create(context.Background(), export); err != nil {
		t.Fatalf("seed export: %v", err)
	}

	if err := svc.process(context.Background(), export.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := exportRepo.GetByID(context.Background(), export.ID)
	if got.FilePath != export.FilePath {
		t.Error("completed export must not be re-rendered")
	}
}

func TestRetryCeilingMarksFailed(t *testing.T) {
	svc, exportRepo, reportRepo := setupService(t)
	svc.spawn = func(string) {} // no automatic reprocessing
	report := seedCompletedReport(t, reportRepo, "report-1")

	// Unknown format renderer lookup fails during processing.
	export := Export{
		ID:         "export-1",
		ReportID:   report.ID,
		Format:     "csv",
		Status:     StatusPending,
		RetryCount: 2,
		MaxRetries: 3,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	if err := exportRepo.Create(context.Background(), export); err != nil {
		t.Fatalf("seed export: %v", err)
	}

	if err := svc.process(context.Background(), export.ID); err == nil {
		t.Fatal("expected processing error")
	}
	got, _ := exportRepo.GetByID(context.Background(), export.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %q, want failed at retry ceiling", got.Status)
	}
	if got.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", got.RetryCount)
	}
}

func TestDownloadLazyExpiresMissingFile(t *testing.T) {
	svc, exportRepo, reportRepo := setupService(t)
	report := seedCompletedReport(t, reportRepo, "report-1")

	export := Export{
		ID:         "export-1",
		ReportID:   report.ID,
		Format:     FormatPDF,
		Status:     StatusCompleted,
		FilePath:   "exports/report-1/missing.pdf",
		FileSize:   1234,
		MaxRetries: 3,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}
	if err := exportRepo.Create(context.Background(), export); err != nil {
		t.Fatalf("seed export: %v", err)
	}

	if _, _, err := svc.Download(context.Background(), report.UserID, export.ID); !errors.Is(err, ErrNotDownloadable) {
		t.Fatalf("error = %v, want ErrNotDownloadable", err)
	}
	got, _ := exportRepo.GetByID(context.Background(), export.ID)
	if got.Status != StatusExpired {
		t.Errorf("status = %q, want expired after lazy check", got.Status)
	}
}

func TestDOCXRendererProducesValidPackage(t *testing.T) {
	report := reports.Report{
		ID:        "report-1",
		Title:     "Acme Due Diligence",
		Workflow:  reports.WorkflowDueDiligence,
		Companies: []string{"Acme"},
		Sections:  []string{"overview"},
		Content:   map[string]string{"overview": "Contains <angle> brackets & ampersands."},
	}

	data, err := (&DOCXRenderer{}).Render(report)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open package: %v", err)
	}
	var foundDocument bool
	for _, file := range reader.File {
		if file.Name == "word/document.xml" {
			foundDocument = true
			rc, err := file.Open()
			if err != nil {
				t.Fatalf("open document.xml: %v", err)
			}
			content, _ := io.ReadAll(rc)
			rc.Close()
			if !bytes.Contains(content, []byte("&lt;angle&gt;")) {
				t.Error("document text must be XML-escaped")
			}
		}
	}
	if !foundDocument {
		t.Error("package must contain word/document.xml")
	}
}

func TestPurgeExpiredRemovesRowsAndFiles(t *testing.T) {
	svc, exportRepo, reportRepo := setupService(t)
	report := seedCompletedReport(t, reportRepo, "report-1")

	key := "exports/report-1/export-1.pdf"
	if _, err := svc.Store.Save(context.Background(), key, "application/pdf", bytes.NewReader([]byte("%PDF-stub"))); err != nil {
		t.Fatalf("save artifact: %v", err)
	}
	export := Export{
		ID:         "export-1",
		ReportID:   report.ID,
		Format:     FormatPDF,
		Status:     StatusCompleted,
		FilePath:   key,
		MaxRetries: 3,
		ExpiresAt:  time.Now().UTC().Add(-time.Minute),
	}
	if err := exportRepo.Create(context.Background(), export); err != nil {
		t.Fatalf("seed export: %v", err)
	}

	removed, err := svc.PurgeExpired(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := exportRepo.GetByID(context.Background(), export.ID); !errors.Is(err, ErrNotFound) {
		t.Error("expired export row must be deleted")
	}
	if _, err := svc.Store.Stat(context.Background(), key); err == nil {
		t.Error("expired artifact file must be deleted")
	}
}
