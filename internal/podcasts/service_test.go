package podcasts

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/activity"
	"github.com/kingsmanrocky-max/account-intelligence/internal/deliveries"
	"github.com/kingsmanrocky-max/account-intelligence/internal/llm"
	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/storage/object/local"
)

type fakeCompleter struct {
	script string
	err    error
	calls  int
}

func (f *fakeCompleter) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	f.calls++
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Text: f.script, Provider: "test"}, nil
}

type fakeSpeech struct {
	voices []string
	err    error
}

func (f *fakeSpeech) Speech(_ context.Context, _ string, voice string, _ float64) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.voices = append(f.voices, voice)
	return []byte("FRAME-" + voice + ";"), nil
}

type fakeDeliveryScheduler struct {
	scheduled  []string
	dispatched []string
}

func (f *fakeDeliveryScheduler) ScheduleForPodcast(_ context.Context, podcastID, _, _ string) (deliveries.Delivery, error) {
	f.scheduled = append(f.scheduled, podcastID)
	return deliveries.Delivery{ID: "delivery-1", TargetKind: deliveries.TargetPodcast, TargetID: podcastID}, nil
}

func (f *fakeDeliveryScheduler) DispatchPendingForPodcast(_ context.Context, podcastID string) error {
	f.dispatched = append(f.dispatched, podcastID)
	return nil
}

const conversationalScript = `HOST A: Welcome back, today we look at Acme.
HOST B: Their overview is strong.
HOST A: Let's dig into the numbers.`

func setupPodcastService(t *testing.T) (*Service, *MemoryRepo, *reports.MemoryRepo, *fakeCompleter, *fakeSpeech, *fakeDeliveryScheduler) {
	t.Helper()
	reportRepo := reports.NewMemoryRepo()
	repo := NewMemoryRepo()
	completer := &fakeCompleter{script: conversationalScript}
	speech := &fakeSpeech{}
	scheduler := &fakeDeliveryScheduler{}
	svc := &Service{
		Repo:       repo,
		Reports:    reportRepo,
		Completer:  completer,
		Speech:     speech,
		Store:      local.New(t.TempDir()),
		Deliveries: scheduler,
		Activity:   activity.NewService(),
	}
	return svc, repo, reportRepo, completer, speech, scheduler
}

func seedCompletedReport(t *testing.T, repo *reports.MemoryRepo, podcastOpts *reports.PodcastOptions) reports.Report {
	t.Helper()
	report := reports.Report{
		ID:        "report-1",
		UserID:    "user-1",
		Workflow:  reports.WorkflowCompanyProfile,
		Title:     "Acme Company Profile",
		Status:    reports.StatusCompleted,
		Companies: []string{"Acme"},
		Depth:     reports.DepthBrief,
		Sections:  []string{"overview"},
		Content:   map[string]string{"overview": "Acme builds everything."},
		Podcast:   podcastOpts,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), report); err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return report
}

func claim(t *testing.T, repo *MemoryRepo) Podcast {
	t.Helper()
	podcast, err := repo.ClaimPending(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("claim pending: %v", err)
	}
	return podcast
}

func TestParseScriptConversational(t *testing.T) {
	segments := parseScript(conversationalScript, StyleConversational)
	if len(segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(segments))
	}
	wantVoices := []string{voiceHostA, voiceHostB, voiceHostA}
	for i, segment := range segments {
		if segment.Voice != wantVoices[i] {
			t.Errorf("segment %d voice = %q, want %q", i, segment.Voice, wantVoices[i])
		}
		if strings.Contains(segment.Text, "HOST") {
			t.Errorf("segment %d keeps its marker: %q", i, segment.Text)
		}
	}
}

func TestParseScriptNarrated(t *testing.T) {
	segments := parseScript("First paragraph.\n\nSecond paragraph.", StyleNarrated)
	if len(segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(segments))
	}
	for i, segment := range segments {
		if segment.Voice != voiceNarrator {
			t.Errorf("segment %d voice = %q, want narrator", i, segment.Voice)
		}
	}
}

func TestRequestForReportQueuesJobAndDelivery(t *testing.T) {
	svc, repo, reportRepo, _, _, scheduler := setupPodcastService(t)
	report := seedCompletedReport(t, reportRepo, &reports.PodcastOptions{
		Enabled:         true,
		Style:           StyleConversational,
		DurationClass:   DurationShort,
		Destination:     "#briefings",
		DestinationType: deliveries.DestinationChannel,
	})

	if err := svc.RequestForReport(context.Background(), report); err != nil {
		t.Fatalf("request for report: %v", err)
	}

	podcast, err := repo.GetByReport(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("get podcast: %v", err)
	}
	if podcast.Status != StatusPending {
		t.Fatalf("status = %q, want pending", podcast.Status)
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0] != podcast.ID {
		t.Errorf("scheduled deliveries = %v, want [%s]", scheduler.scheduled, podcast.ID)
	}
}

func TestProcessRunsFullPipeline(t *testing.T) {
	svc, repo, reportRepo, _, speech, scheduler := setupPodcastService(t)
	report := seedCompletedReport(t, reportRepo, nil)

	_, err := svc.Request(context.Background(), "user-1", report.ID, RequestInput{
		Style:         StyleConversational,
		DurationClass: DurationShort,
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	podcast := claim(t, repo)

	if err := svc.Process(context.Background(), podcast); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := repo.GetByID(context.Background(), podcast.ID)
	if err != nil {
		t.Fatalf("get podcast: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want completed (error %s)", got.Status, got.ErrorMessage)
	}
	if got.AudioPath == "" || got.DurationSeconds == 0 {
		t.Errorf("completed podcast = %+v, want audio path and duration", got)
	}
	if len(speech.voices) != 3 {
		t.Errorf("synthesized segments = %d, want 3", len(speech.voices))
	}
	if len(scheduler.dispatched) != 1 || scheduler.dispatched[0] != podcast.ID {
		t.Errorf("dispatched = %v, want the completed podcast", scheduler.dispatched)
	}

	filename, size, body, err := svc.OpenAudio(context.Background(), podcast.ID)
	if err != nil {
		t.Fatalf("open audio: %v", err)
	}
	defer body.Close()
	audio, _ := io.ReadAll(body)
	if int64(len(audio)) != size {
		t.Errorf("audio size = %d, stat said %d", len(audio), size)
	}
	if filename != "podcast-"+podcast.ID+".mp3" {
		t.Errorf("filename = %q", filename)
	}
	if strings.Count(string(audio), "FRAME-") != 3 {
		t.Errorf("mixed audio should concatenate all segments, got %q", audio)
	}
}

func TestProcessScriptFailureMarksFailed(t *testing.T) {
	svc, repo, reportRepo, completer, _, scheduler := setupPodcastService(t)
	report := seedCompletedReport(t, reportRepo, nil)
	completer.err = errors.New("completion provider down")

	if _, err := svc.Request(context.Background(), "user-1", report.ID, RequestInput{}); err != nil {
		t.Fatalf("request: %v", err)
	}
	podcast := claim(t, repo)

	if err := svc.Process(context.Background(), podcast); err == nil {
		t.Fatal("process must surface the script failure")
	}

	got, err := repo.GetByID(context.Background(), podcast.ID)
	if err != nil {
		t.Fatalf("get podcast: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", got.RetryCount)
	}
	if len(scheduler.dispatched) != 0 {
		t.Errorf("failed podcast must not dispatch deliveries, got %v", scheduler.dispatched)
	}
}

func TestReclaimStaleIncrementsOnce(t *testing.T) {
	svc, repo, reportRepo, _, _, _ := setupPodcastService(t)
	seedCompletedReport(t, reportRepo, nil)

	stale := Podcast{
		ID:         "podcast-stale",
		ReportID:   "report-1",
		Status:     StatusGeneratingAudio,
		MaxRetries: 3,
		UpdatedAt:  time.Now().UTC().Add(-45 * time.Minute),
	}
	repo.setForTest(stale)
	fresh := Podcast{
		ID:         "podcast-fresh",
		ReportID:   "report-1",
		Status:     StatusGeneratingScript,
		MaxRetries: 3,
		UpdatedAt:  time.Now().UTC(),
	}
	repo.setForTest(fresh)

	processor := NewProcessor(svc)
	processor.reclaimStale(context.Background())

	reclaimed, err := repo.GetByID(context.Background(), "podcast-stale")
	if err != nil {
		t.Fatalf("get stale: %v", err)
	}
	if reclaimed.Status != StatusFailed || reclaimed.RetryCount != 1 {
		t.Fatalf("reclaimed = %q/%d, want failed/1", reclaimed.Status, reclaimed.RetryCount)
	}

	// A second pass must not touch it again: it is failed now.
	processor.reclaimStale(context.Background())
	again, _ := repo.GetByID(context.Background(), "podcast-stale")
	if again.RetryCount != 1 {
		t.Errorf("retry count after second pass = %d, want still 1", again.RetryCount)
	}

	untouched, _ := repo.GetByID(context.Background(), "podcast-fresh")
	if untouched.Status != StatusGeneratingScript {
		t.Errorf("fresh in-progress job reclaimed: %q", untouched.Status)
	}
}

func TestReclaimStaleSkipsInflight(t *testing.T) {
	svc, repo, reportRepo, _, _, _ := setupPodcastService(t)
	seedCompletedReport(t, reportRepo, nil)

	working := Podcast{
		ID:         "podcast-working",
		ReportID:   "report-1",
		Status:     StatusMixing,
		MaxRetries: 3,
		UpdatedAt:  time.Now().UTC().Add(-45 * time.Minute),
	}
	repo.setForTest(working)

	processor := NewProcessor(svc)
	if !processor.inflight.TryAdd("podcast-working") {
		t.Fatal("track in-flight")
	}
	processor.reclaimStale(context.Background())

	got, _ := repo.GetByID(context.Background(), "podcast-working")
	if got.Status != StatusMixing {
		t.Fatalf("in-flight job reclaimed: %q", got.Status)
	}
}

func TestRequeueHonorsCooldownAndCeiling(t *testing.T) {
	svc, repo, reportRepo, _, _, _ := setupPodcastService(t)
	seedCompletedReport(t, reportRepo, nil)

	cooled := Podcast{
		ID: "podcast-cooled", ReportID: "report-1", Status: StatusFailed,
		RetryCount: 1, MaxRetries: 3,
		UpdatedAt: time.Now().UTC().Add(-5 * time.Minute),
	}
	hot := Podcast{
		ID: "podcast-hot", ReportID: "report-1", Status: StatusFailed,
		RetryCount: 1, MaxRetries: 3,
		UpdatedAt: time.Now().UTC(),
	}
	exhausted := Podcast{
		ID: "podcast-exhausted", ReportID: "report-1", Status: StatusFailed,
		RetryCount: 3, MaxRetries: 3,
		UpdatedAt: time.Now().UTC().Add(-5 * time.Minute),
	}
	repo.setForTest(cooled)
	repo.setForTest(hot)
	repo.setForTest(exhausted)

	processor := NewProcessor(svc)
	processor.requeueFailed(context.Background())

	for id, want := range map[string]string{
		"podcast-cooled":    StatusPending,
		"podcast-hot":       StatusFailed,
		"podcast-exhausted": StatusFailed,
	} {
		got, _ := repo.GetByID(context.Background(), id)
		if got.Status != want {
			t.Errorf("%s status = %q, want %q", id, got.Status, want)
		}
	}
}

func TestTickClaimsAtMostOne(t *testing.T) {
	svc, repo, reportRepo, _, _, _ := setupPodcastService(t)
	report := seedCompletedReport(t, reportRepo, nil)

	for i := 0; i < 2; i++ {
		if _, err := svc.enqueue(context.Background(), report, RequestInput{DurationClass: DurationShort}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	processor := NewProcessor(svc)
	processor.Tick(context.Background())

	if !processor.inflight.AwaitEmpty(2*time.Second, 10*time.Millisecond) {
		t.Fatal("pipeline did not finish")
	}

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Completed != 1 || stats.Pending != 1 {
		t.Fatalf("stats = %+v, want exactly one completed and one still pending", stats)
	}
}

func TestDeleteAgedRemovesAudioAndRow(t *testing.T) {
	svc, repo, reportRepo, _, _, _ := setupPodcastService(t)
	report := seedCompletedReport(t, reportRepo, nil)

	if _, err := svc.Request(context.Background(), "user-1", report.ID, RequestInput{}); err != nil {
		t.Fatalf("request: %v", err)
	}
	podcast := claim(t, repo)
	if err := svc.Process(context.Background(), podcast); err != nil {
		t.Fatalf("process: %v", err)
	}

	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	done, _ := repo.GetByID(context.Background(), podcast.ID)
	done.CompletedAt = &old
	repo.setForTest(done)

	removed, err := svc.DeleteAged(context.Background(), time.Now().UTC().Add(-defaultRetention))
	if err != nil {
		t.Fatalf("delete aged: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := repo.GetByID(context.Background(), podcast.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("row still present after cleanup: %v", err)
	}
	if _, _, _, err := svc.OpenAudio(context.Background(), podcast.ID); err == nil {
		t.Error("audio still served after cleanup")
	}
}
