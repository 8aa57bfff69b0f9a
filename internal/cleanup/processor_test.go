package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/activity"
	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
)

type fakeExportPurger struct {
	deletedReports []string
	purged         int
	block          chan struct{}
}

func (f *fakeExportPurger) DeleteForReport(_ context.Context, reportID string) error {
	if f.block != nil {
		<-f.block
	}
	f.deletedReports = append(f.deletedReports, reportID)
	return nil
}

func (f *fakeExportPurger) PurgeExpired(context.Context, time.Time) (int, error) {
	return f.purged, nil
}

type fakePodcastPurger struct{ deleted int }

func (f *fakePodcastPurger) DeleteAged(context.Context, time.Time) (int, error) {
	return f.deleted, nil
}

func setupProcessor(t *testing.T) (*Processor, *reports.MemoryRepo, *fakeExportPurger) {
	t.Helper()
	reportRepo := reports.NewMemoryRepo()
	exportPurger := &fakeExportPurger{purged: 2}
	processor := NewProcessor(reportRepo, exportPurger, &fakePodcastPurger{deleted: 1}, activity.NewService(), reports.NewMemoryAnalytics())
	return processor, reportRepo, exportPurger
}

func seedAgedReport(t *testing.T, repo *reports.MemoryRepo, id string, age time.Duration) {
	t.Helper()
	report := reports.Report{
		ID:        id,
		UserID:    "user-1",
		Workflow:  reports.WorkflowCompanyProfile,
		Status:    reports.StatusCompleted,
		Companies: []string{"Acme"},
		Sections:  []string{"overview"},
		CreatedAt: time.Now().UTC().Add(-age),
	}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed report: %v", err)
	}
}

func TestNextRunAtDailyBoundary(t *testing.T) {
	processor, _, _ := setupProcessor(t)

	processor.now = func() time.Time {
		return time.Date(2026, 8, 30, 1, 30, 0, 0, time.UTC)
	}
	next := processor.NextRunAt()
	if want := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("before the hour: next = %v, want %v", next, want)
	}

	processor.now = func() time.Time {
		return time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	}
	next = processor.NextRunAt()
	if want := time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("after the hour: next = %v, want %v", next, want)
	}
}

func TestRunDeletesAgedReportsWithExports(t *testing.T) {
	processor, reportRepo, exportPurger := setupProcessor(t)
	seedAgedReport(t, reportRepo, "report-old", 120*24*time.Hour)
	seedAgedReport(t, reportRepo, "report-recent", 24*time.Hour)

	result, err := processor.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ReportsDeleted != 1 {
		t.Fatalf("reports deleted = %d, want 1", result.ReportsDeleted)
	}
	if len(exportPurger.deletedReports) != 1 || exportPurger.deletedReports[0] != "report-old" {
		t.Errorf("export deletions = %v, want exports of the old report only", exportPurger.deletedReports)
	}
	if result.ExportsPurged != 2 || result.PodcastsDeleted != 1 {
		t.Errorf("result = %+v, want purger figures carried through", result)
	}

	if _, err := reportRepo.GetByID(context.Background(), "report-recent"); err != nil {
		t.Errorf("recent report removed: %v", err)
	}
}

func TestConcurrentTriggerIsRejected(t *testing.T) {
	processor, reportRepo, exportPurger := setupProcessor(t)
	seedAgedReport(t, reportRepo, "report-old", 120*24*time.Hour)
	exportPurger.block = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = processor.Run(context.Background())
	}()

	// Wait until the first run is inside its export deletion.
	deadline := time.After(2 * time.Second)
	for !processor.running.Load() {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if _, err := processor.Run(context.Background()); err != ErrAlreadyRunning {
		t.Fatalf("second trigger = %v, want ErrAlreadyRunning", err)
	}

	close(exportPurger.block)
	wg.Wait()

	// With the first run finished, a new trigger goes through.
	if _, err := processor.Run(context.Background()); err != nil {
		t.Fatalf("trigger after completion: %v", err)
	}
}
