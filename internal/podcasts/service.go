package podcasts

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
	"github.com/kingsmanrocky-max/account-intelligence/internal/deliveries"
	"github.com/kingsmanrocky-max/account-intelligence/internal/llm"
	"github.com/kingsmanrocky-max/account-intelligence/internal/reports"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/metrics"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/storage/object"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

var (
	ErrReportNotReady = errors.New("report is not completed")
	ErrAudioNotReady  = errors.New("podcast audio is not available")
)

const defaultMaxRetries = 3

// ReportSource reads the report a podcast is generated from.
type ReportSource interface {
	GetByID(ctx context.Context, reportID string) (reports.Report, error)
}

// Completer generates the podcast script text.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Synthesizer turns one script segment into audio.
type Synthesizer interface {
	Speech(ctx context.Context, text, voice string, speed float64) ([]byte, error)
}

// DeliveryScheduler is the delivery-processor surface the podcast pipeline
// uses: create the pending delivery at request time, trigger it on
// completion.
type DeliveryScheduler interface {
	ScheduleForPodcast(ctx context.Context, podcastID, destination, destinationType string) (deliveries.Delivery, error)
	DispatchPendingForPodcast(ctx context.Context, podcastID string) error
}

// Service owns podcast generation jobs and runs the synthesis pipeline.
type Service struct {
	Repo       Repo
	Reports    ReportSource
	Completer  Completer
	Speech     Synthesizer
	Store      object.ObjectStore
	Deliveries DeliveryScheduler
	Activity   *activity.Service
}

// RequestInput configures an on-demand podcast request.
type RequestInput struct {
	Style           string
	DurationClass   string
	Destination     string
	DestinationType string
}

// RequestForReport implements the report-completion trigger: it queues a
// podcast for the report using the options captured at report creation.
func (s *Service) RequestForReport(ctx context.Context, report reports.Report) error {
	opts := report.Podcast
	if opts == nil || !opts.Enabled {
		return nil
	}
	_, err := s.enqueue(ctx, report, RequestInput{
		Style:           opts.Style,
		DurationClass:   opts.DurationClass,
		Destination:     opts.Destination,
		DestinationType: opts.DestinationType,
	})
	return err
}

// Request queues a podcast for a completed report on demand, owner-scoped.
func (s *Service) Request(ctx context.Context, userID, reportID string, input RequestInput) (Podcast, error) {
	report, err := s.Reports.GetByID(ctx, reportID)
	if err != nil {
		return Podcast{}, err
	}
	if report.UserID != userID {
		return Podcast{}, reports.ErrNotFound
	}
	if report.Status != reports.StatusCompleted {
		return Podcast{}, ErrReportNotReady
	}

	// An existing unfinished or finished job is returned as is; only a
	// failed one is replaced by a fresh request.
	existing, err := s.Repo.GetByReport(ctx, reportID)
	if err == nil && existing.Status != StatusFailed {
		return existing, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Podcast{}, err
	}

	return s.enqueue(ctx, report, input)
}

func (s *Service) enqueue(ctx context.Context, report reports.Report, input RequestInput) (Podcast, error) {
	podcast := Podcast{
		ID:            uuid.NewString(),
		ReportID:      report.ID,
		Status:        StatusPending,
		Style:         NormalizeStyle(input.Style),
		DurationClass: NormalizeDuration(input.DurationClass),
		MaxRetries:    defaultMaxRetries,
	}
	if err := s.Repo.Create(ctx, podcast); err != nil {
		return Podcast{}, err
	}
	s.Activity.Record(ctx, report.UserID, "podcast.requested", "podcast", podcast.ID, map[string]any{
		"report_id": report.ID,
		"style":     podcast.Style,
	})

	if s.Deliveries != nil && strings.TrimSpace(input.Destination) != "" {
		if _, err := s.Deliveries.ScheduleForPodcast(ctx, podcast.ID, input.Destination, input.DestinationType); err != nil {
			telemetry.Warn("podcast.delivery_schedule_failed", map[string]any{
				"podcast_id": podcast.ID,
				"error":      err.Error(),
			})
		}
	}
	return s.Repo.GetByID(ctx, podcast.ID)
}

// Process runs the synthesis pipeline for a job already claimed into
// generating_script. Any stage error fails the job with an incremented
// retry count; the processor requeues it later if eligible.
func (s *Service) Process(ctx context.Context, podcast Podcast) error {
	startedAt := time.Now()

	report, err := s.Reports.GetByID(ctx, podcast.ReportID)
	if err != nil {
		return s.fail(ctx, podcast.ID, fmt.Errorf("load report: %w", err))
	}

	script, err := s.generateScript(ctx, report, podcast)
	if err != nil {
		return s.fail(ctx, podcast.ID, err)
	}
	segments := parseScript(script, podcast.Style)
	if len(segments) == 0 {
		return s.fail(ctx, podcast.ID, errors.New("script produced no speakable segments"))
	}

	if ok, err := s.Repo.AdvanceStage(ctx, podcast.ID, StatusGeneratingScript, StatusGeneratingAudio); err != nil || !ok {
		return s.abandoned(podcast.ID, err)
	}

	audio := make([][]byte, 0, len(segments))
	for i, segment := range segments {
		clip, err := s.Speech.Speech(ctx, segment.Text, segment.Voice, 1.0)
		if err != nil {
			return s.fail(ctx, podcast.ID, fmt.Errorf("synthesize segment %d: %w", i+1, err))
		}
		audio = append(audio, clip)
	}

	if ok, err := s.Repo.AdvanceStage(ctx, podcast.ID, StatusGeneratingAudio, StatusMixing); err != nil || !ok {
		return s.abandoned(podcast.ID, err)
	}

	// MP3 frames are self-contained, so mixing is plain concatenation.
	mixed := bytes.Join(audio, nil)
	key := audioKey(podcast.ID)
	if _, err := s.Store.Save(ctx, key, "audio/mpeg", bytes.NewReader(mixed)); err != nil {
		return s.fail(ctx, podcast.ID, fmt.Errorf("store audio: %w", err))
	}

	duration := estimateDurationSeconds(segments)
	matched, err := s.Repo.MarkCompleted(ctx, podcast.ID, key, duration, time.Now().UTC())
	if err != nil || !matched {
		return s.abandoned(podcast.ID, err)
	}

	metrics.IncPodcastCompleted()
	metrics.ObservePodcastDurationMs(float64(time.Since(startedAt).Milliseconds()))
	telemetry.Info("podcast.completed", map[string]any{
		"podcast_id":       podcast.ID,
		"report_id":        podcast.ReportID,
		"segments":         len(segments),
		"duration_seconds": duration,
	})

	if s.Deliveries != nil {
		if err := s.Deliveries.DispatchPendingForPodcast(ctx, podcast.ID); err != nil {
			telemetry.Error("podcast.delivery_dispatch_failed", map[string]any{
				"podcast_id": podcast.ID,
				"error":      err.Error(),
			})
		}
	}
	return nil
}

func (s *Service) generateScript(ctx context.Context, report reports.Report, podcast Podcast) (string, error) {
	targetWords := TargetWords(podcast.DurationClass)
	resp, err := s.Completer.Complete(ctx, llm.Request{
		System:      scriptSystemPrompt,
		Prompt:      scriptPrompt(report, podcast.Style, targetWords),
		MaxTokens:   targetWords * 2,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("generate script: %w", err)
	}
	return resp.Text, nil
}

func (s *Service) fail(ctx context.Context, podcastID string, cause error) error {
	metrics.IncPodcastFailed()
	if _, err := s.Repo.MarkFailed(context.Background(), podcastID, sanitizeError(cause)); err != nil {
		telemetry.Error("podcast.fail_update_failed", map[string]any{
			"podcast_id": podcastID,
			"error":      err.Error(),
		})
	}
	telemetry.Error("podcast.failed", map[string]any{
		"podcast_id": podcastID,
		"error":      sanitizeError(cause),
	})
	return cause
}

// abandoned covers a stage transition that did not match: the job was
// reclaimed or failed from outside while this run was working.
func (s *Service) abandoned(podcastID string, err error) error {
	if err != nil {
		return err
	}
	telemetry.Warn("podcast.stage_lost", map[string]any{"podcast_id": podcastID})
	return nil
}

// Status returns a podcast scoped to its report's owner.
func (s *Service) Status(ctx context.Context, userID, podcastID string) (Podcast, error) {
	podcast, err := s.Repo.GetByID(ctx, podcastID)
	if err != nil {
		return Podcast{}, err
	}
	report, err := s.Reports.GetByID(ctx, podcast.ReportID)
	if err != nil {
		return Podcast{}, err
	}
	if report.UserID != userID {
		return Podcast{}, ErrNotFound
	}
	return podcast, nil
}

// StatusForReport returns the latest podcast for a report, owner-scoped.
func (s *Service) StatusForReport(ctx context.Context, userID, reportID string) (Podcast, error) {
	report, err := s.Reports.GetByID(ctx, reportID)
	if err != nil {
		return Podcast{}, err
	}
	if report.UserID != userID {
		return Podcast{}, reports.ErrNotFound
	}
	return s.Repo.GetByReport(ctx, reportID)
}

// Stats returns the queue depth snapshot.
func (s *Service) Stats(ctx context.Context) (QueueStats, error) {
	return s.Repo.Stats(ctx)
}

// OpenAudio serves a completed podcast's audio to the delivery processor.
func (s *Service) OpenAudio(ctx context.Context, podcastID string) (string, int64, io.ReadCloser, error) {
	podcast, err := s.Repo.GetByID(ctx, podcastID)
	if err != nil {
		return "", 0, nil, err
	}
	if podcast.Status != StatusCompleted || podcast.AudioPath == "" {
		return "", 0, nil, ErrAudioNotReady
	}
	size, err := s.Store.Stat(ctx, podcast.AudioPath)
	if err != nil {
		return "", 0, nil, err
	}
	body, err := s.Store.Open(ctx, podcast.AudioPath)
	if err != nil {
		return "", 0, nil, err
	}
	return fmt.Sprintf("podcast-%s.mp3", podcast.ID), size, body, nil
}

// DeleteAged removes completed podcasts older than the retention cutoff,
// audio first.
func (s *Service) DeleteAged(ctx context.Context, cutoff time.Time) (int, error) {
	aged, err := s.Repo.ListCompletedBefore(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, podcast := range aged {
		if podcast.AudioPath != "" {
			if err := s.Store.Delete(ctx, podcast.AudioPath); err != nil && !errors.Is(err, object.ErrNotFound) {
				telemetry.Warn("podcast.purge_audio_failed", map[string]any{
					"podcast_id": podcast.ID,
					"error":      err.Error(),
				})
				continue
			}
		}
		if err := s.Repo.Delete(ctx, podcast.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func audioKey(podcastID string) string {
	return fmt.Sprintf("podcasts/%s.mp3", podcastID)
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
