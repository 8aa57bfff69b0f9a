package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	reportsStartedTotal   atomic.Uint64
	reportsCompletedTotal atomic.Uint64
	reportsFailedTotal    atomic.Uint64

	exportsCompletedTotal atomic.Uint64
	exportsFailedTotal    atomic.Uint64

	deliveriesSentTotal   atomic.Uint64
	deliveriesFailedTotal atomic.Uint64

	podcastsCompletedTotal atomic.Uint64
	podcastsFailedTotal    atomic.Uint64
	podcastsReclaimedTotal atomic.Uint64

	llmFallbacksTotal atomic.Uint64

	reportDuration  = newHistogram([]float64{1000, 5000, 10000, 30000, 60000, 120000, 300000, 600000})
	exportDuration  = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000})
	podcastDuration = newHistogram([]float64{5000, 15000, 30000, 60000, 180000, 600000, 1800000})
)

// IncReportStarted increments the started counter.
func IncReportStarted() { reportsStartedTotal.Add(1) }

// IncReportCompleted increments the completed counter.
func IncReportCompleted() { reportsCompletedTotal.Add(1) }

// IncReportFailed increments the failed counter.
func IncReportFailed() { reportsFailedTotal.Add(1) }

// IncExportCompleted increments the export completed counter.
func IncExportCompleted() { exportsCompletedTotal.Add(1) }

// IncExportFailed increments the export failed counter.
func IncExportFailed() { exportsFailedTotal.Add(1) }

// IncDeliverySent increments the delivery sent counter.
func IncDeliverySent() { deliveriesSentTotal.Add(1) }

// IncDeliveryFailed increments the delivery failed counter.
func IncDeliveryFailed() { deliveriesFailedTotal.Add(1) }

// IncPodcastCompleted increments the podcast completed counter.
func IncPodcastCompleted() { podcastsCompletedTotal.Add(1) }

// IncPodcastFailed increments the podcast failed counter.
func IncPodcastFailed() { podcastsFailedTotal.Add(1) }

// IncPodcastReclaimed counts stale podcast jobs converted to failed.
func IncPodcastReclaimed() { podcastsReclaimedTotal.Add(1) }

// IncLLMFallback counts completions served by the fallback provider.
func IncLLMFallback() { llmFallbacksTotal.Add(1) }

// ObserveReportDurationMs records a report generation duration in milliseconds.
func ObserveReportDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	reportDuration.Observe(value)
}

// ObserveExportDurationMs records an export render duration in milliseconds.
func ObserveExportDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	exportDuration.Observe(value)
}

// ObservePodcastDurationMs records a podcast synthesis duration in milliseconds.
func ObservePodcastDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	podcastDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "reports_started_total", "Total reports started", reportsStartedTotal.Load())
	writeCounter(&buf, "reports_completed_total", "Total reports completed", reportsCompletedTotal.Load())
	writeCounter(&buf, "reports_failed_total", "Total reports failed", reportsFailedTotal.Load())
	writeCounter(&buf, "exports_completed_total", "Total document exports completed", exportsCompletedTotal.Load())
	writeCounter(&buf, "exports_failed_total", "Total document exports failed", exportsFailedTotal.Load())
	writeCounter(&buf, "deliveries_sent_total", "Total deliveries sent", deliveriesSentTotal.Load())
	writeCounter(&buf, "deliveries_failed_total", "Total deliveries failed", deliveriesFailedTotal.Load())
	writeCounter(&buf, "podcasts_completed_total", "Total podcasts completed", podcastsCompletedTotal.Load())
	writeCounter(&buf, "podcasts_failed_total", "Total podcasts failed", podcastsFailedTotal.Load())
	writeCounter(&buf, "podcasts_reclaimed_total", "Total stale podcast jobs reclaimed", podcastsReclaimedTotal.Load())
	writeCounter(&buf, "llm_fallbacks_total", "Total completions served by fallback provider", llmFallbacksTotal.Load())
	writeHistogram(&buf, "report_duration_ms", "Report generation duration in milliseconds", reportDuration.Snapshot())
	writeHistogram(&buf, "export_duration_ms", "Export render duration in milliseconds", exportDuration.Snapshot())
	writeHistogram(&buf, "podcast_duration_ms", "Podcast synthesis duration in milliseconds", podcastDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
