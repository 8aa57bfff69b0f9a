package reports

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/activity"
	"github.com/kingsmanrocky-max/account-intelligence/internal/llm"
)

type scriptedCompleter struct {
	failOn    string
	failErr   error
	prompts   []string
	perTokens int
}

func (c *scriptedCompleter) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	c.prompts = append(c.prompts, req.Prompt)
	for _, section := range strings.Fields(c.failOn) {
		if strings.Contains(req.Prompt, strings.ReplaceAll(section, "_", " ")) {
			return llm.Response{}, c.failErr
		}
	}
	tokens := c.perTokens
	if tokens == 0 {
		tokens = 100
	}
	return llm.Response{
		Text:     "generated text",
		Model:    "test-model",
		Provider: "test",
		Usage:    llm.TokenUsage{TotalTokens: tokens},
	}, nil
}

type recordingExportTrigger struct {
	requests [][2]string
}

func (r *recordingExportTrigger) RequestEager(_ context.Context, reportID, format string) error {
	r.requests = append(r.requests, [2]string{reportID, format})
	return nil
}

type recordingDeliveryTrigger struct {
	reports []string
}

func (r *recordingDeliveryTrigger) ScheduleForReport(_ context.Context, report Report) error {
	r.reports = append(r.reports, report.ID)
	return nil
}

type recordingPodcastTrigger struct {
	reports []string
}

func (r *recordingPodcastTrigger) RequestForReport(_ context.Context, report Report) error {
	r.reports = append(r.reports, report.ID)
	return nil
}

func newTestService(completer Completer) (*Service, *MemoryRepo, *recordingExportTrigger, *recordingDeliveryTrigger, *recordingPodcastTrigger) {
	repo := NewMemoryRepo()
	exports := &recordingExportTrigger{}
	deliveries := &recordingDeliveryTrigger{}
	podcasts := &recordingPodcastTrigger{}
	svc := &Service{
		Repo:       repo,
		Completer:  completer,
		Analytics:  NewMemoryAnalytics(),
		Activity:   activity.NewService(),
		Exports:    exports,
		Deliveries: deliveries,
		Podcasts:   podcasts,
	}
	return svc, repo, exports, deliveries, podcasts
}

func seedReport(t *testing.T, repo *MemoryRepo, report Report) Report {
	t.Helper()
	if report.ID == "" {
		report.ID = "report-1"
	}
	if report.UserID == "" {
		report.UserID = "user-1"
	}
	if report.Status == "" {
		report.Status = StatusPending
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return report
}

func TestCreateValidatesCompanyArity(t *testing.T) {
	svc, _, _, _, _ := newTestService(&scriptedCompleter{})

	_, err := svc.Create(context.Background(), CreateInput{
		UserID:    "user-1",
		Workflow:  WorkflowCompanyProfile,
		Companies: []string{"Acme", "Globex"},
	})
	if err == nil {
		t.Error("company_profile with two companies must be rejected")
	}

	_, err = svc.Create(context.Background(), CreateInput{
		UserID:    "user-1",
		Workflow:  WorkflowCompetitiveLandscape,
		Companies: nil,
	})
	if err == nil {
		t.Error("competitive_landscape without companies must be rejected")
	}
}

func TestCreateRejectsInvalidSectionBeforeGeneration(t *testing.T) {
	completer := &scriptedCompleter{}
	svc, _, _, _, _ := newTestService(completer)

	_, err := svc.Create(context.Background(), CreateInput{
		UserID:    "user-1",
		Workflow:  WorkflowCompanyProfile,
		Companies: []string{"Acme"},
		Sections:  []string{"overview", "bogus_section"},
	})
	if err == nil {
		t.Fatal("invalid section must be rejected")
	}
	if len(completer.prompts) != 0 {
		t.Errorf("no generation work may start for rejected input, saw %d calls", len(completer.prompts))
	}
}

func TestGenerateHappyPathCompletesAndFiresTriggers(t *testing.T) {
	completer := &scriptedCompleter{perTokens: 150}
	svc, repo, exports, deliveries, podcasts := newTestService(completer)

	report := seedReport(t, repo, Report{
		Workflow:      WorkflowCompanyProfile,
		Companies:     []string{"Acme"},
		Depth:         DepthBrief,
		Sections:      []string{"overview", "financials"},
		TokenBudget:   TokenBudget(DepthBrief),
		ExportFormats: []string{"pdf"},
		Delivery:      &DeliveryOptions{Enabled: true, Destination: "#intel", DestinationType: "channel"},
		Podcast:       &PodcastOptions{Enabled: true},
	})

	svc.generate(context.Background(), report.ID)

	got, err := repo.GetByID(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed (error: %s)", got.Status, got.ErrorMessage)
	}
	if len(got.Content) != 2 {
		t.Errorf("content sections = %d, want 2", len(got.Content))
	}
	if got.TokensUsed != 300 {
		t.Errorf("tokens used = %d, want 300", got.TokensUsed)
	}
	if got.Progress() != 100 {
		t.Errorf("progress = %d, want 100", got.Progress())
	}

	if len(exports.requests) != 1 || exports.requests[0][1] != "pdf" {
		t.Errorf("export triggers = %v, want one pdf request", exports.requests)
	}
	if len(deliveries.reports) != 1 {
		t.Errorf("delivery triggers = %d, want 1", len(deliveries.reports))
	}
	if len(podcasts.reports) != 1 {
		t.Errorf("podcast triggers = %d, want 1", len(podcasts.reports))
	}
}

func TestGenerateSectionFailureFailsWholeReport(t *testing.T) {
	completer := &scriptedCompleter{
		failOn:  "financials",
		failErr: &llm.Error{Provider: "test", Code: llm.CodeInvalidRequest, Message: "rejected", Retryable: false},
	}
	svc, repo, exports, deliveries, podcasts := newTestService(completer)

	report := seedReport(t, repo, Report{
		Workflow:      WorkflowCompanyProfile,
		Companies:     []string{"Acme"},
		Depth:         DepthBrief,
		Sections:      []string{"overview", "financials"},
		TokenBudget:   TokenBudget(DepthBrief),
		ExportFormats: []string{"pdf"},
		Delivery:      &DeliveryOptions{Enabled: true, Destination: "#intel", DestinationType: "channel"},
		Podcast:       &PodcastOptions{Enabled: true},
	})

	svc.generate(context.Background(), report.ID)

	got, err := repo.GetByID(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("get report: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("failed report must carry an error message")
	}
	if _, ok := got.Content["financials"]; ok {
		t.Error("failed section must not be stored")
	}
	if len(exports.requests) != 0 || len(deliveries.reports) != 0 || len(podcasts.reports) != 0 {
		t.Error("downstream triggers must not fire for a failed report")
	}
}

func TestGenerateSkipsNonPendingReport(t *testing.T) {
	completer := &scriptedCompleter{}
	svc, repo, _, _, _ := newTestService(completer)

	report := seedReport(t, repo, Report{
		Status:   StatusCompleted,
		Workflow: WorkflowCompanyProfile,
		Sections: []string{"overview"},
	})

	svc.generate(context.Background(), report.ID)

	if len(completer.prompts) != 0 {
		t.Errorf("non-pending report must not generate, saw %d calls", len(completer.prompts))
	}
	got, _ := repo.GetByID(context.Background(), report.ID)
	if got.Status != StatusCompleted {
		t.Errorf("status = %q, want untouched completed", got.Status)
	}
}

func TestRetryOnlyFromFailed(t *testing.T) {
	completer := &scriptedCompleter{}
	svc, repo, _, _, _ := newTestService(completer)

	report := seedReport(t, repo, Report{
		Status:       StatusFailed,
		Workflow:     WorkflowCompanyProfile,
		Companies:    []string{"Acme"},
		Sections:     []string{"overview"},
		TokenBudget:  1024,
		ErrorMessage: "section overview: boom",
		Content:      map[string]string{"overview": "stale"},
	})

	retried, err := svc.Retry(context.Background(), report.UserID, report.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != StatusPending && retried.Status != StatusProcessing && retried.Status != StatusCompleted {
		t.Errorf("status after retry = %q", retried.Status)
	}
	if retried.ErrorMessage != "" && retried.Status == StatusPending {
		t.Error("retry must clear the prior error")
	}

	completed := seedReport(t, repo, Report{
		ID:       "report-2",
		Status:   StatusCompleted,
		Workflow: WorkflowCompanyProfile,
		Sections: []string{"overview"},
	})
	if _, err := svc.Retry(context.Background(), completed.UserID, completed.ID); err == nil {
		t.Error("completed report must not be retryable")
	}
}

func TestSectionsGenerateStrictlyInOrder(t *testing.T) {
	completer := &scriptedCompleter{}
	svc, repo, _, _, _ := newTestService(completer)

	report := seedReport(t, repo, Report{
		Workflow:    WorkflowDueDiligence,
		Companies:   []string{"Acme"},
		Sections:    []string{"overview", "financials", "outlook"},
		TokenBudget: 2048,
	})

	svc.generate(context.Background(), report.ID)

	if len(completer.prompts) != 3 {
		t.Fatalf("prompt calls = %d, want 3", len(completer.prompts))
	}
	if !strings.Contains(completer.prompts[0], `"overview"`) {
		t.Errorf("first prompt should request overview: %q", completer.prompts[0])
	}
	if !strings.Contains(completer.prompts[2], `"outlook"`) {
		t.Errorf("last prompt should request outlook: %q", completer.prompts[2])
	}
	// Later prompts carry earlier sections as context.
	if !strings.Contains(completer.prompts[1], "Sections already written") {
		t.Error("second prompt should carry prior section context")
	}
}

func TestProgressReflectsStoredSections(t *testing.T) {
	report := Report{
		Status:   StatusProcessing,
		Sections: []string{"a", "b", "c", "d"},
		Content:  map[string]string{"a": "x", "b": "y"},
	}
	if got := report.Progress(); got != 50 {
		t.Errorf("progress = %d, want 50", got)
	}
	report.Status = StatusPending
	if got := report.Progress(); got != 0 {
		t.Errorf("pending progress = %d, want 0", got)
	}
	report.Status = StatusCompleted
	if got := report.Progress(); got != 100 {
		t.Errorf("completed progress = %d, want 100", got)
	}
}
