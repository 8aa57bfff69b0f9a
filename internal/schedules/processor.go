package schedules

import (
	"context"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/jobs"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

const (
	defaultPollInterval  = 60 * time.Second
	defaultMaxConcurrent = 2
)

// Processor polls for due schedules and executes them with bounded
// concurrency.
type Processor struct {
	Svc           *Service
	Interval      time.Duration
	MaxConcurrent int

	inflight *jobs.InflightSet
	done     chan struct{}
}

func NewProcessor(svc *Service) *Processor {
	return &Processor{
		Svc:           svc,
		Interval:      defaultPollInterval,
		MaxConcurrent: defaultMaxConcurrent,
		inflight:      jobs.NewInflightSet(),
		done:          make(chan struct{}),
	}
}

// Start runs the poll loop until the context is cancelled.
func (p *Processor) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Tick(ctx)
			}
		}
	}()
}

// Stop waits for the poll loop to exit and in-flight runs to finish.
func (p *Processor) Stop(timeout time.Duration) bool {
	select {
	case <-p.done:
	case <-time.After(timeout):
		return false
	}
	return p.inflight.AwaitEmpty(timeout, 50*time.Millisecond)
}

// Tick executes one poll round: compute free slots, fetch due schedules,
// and launch executions asynchronously up to the slot limit. Schedules
// already in flight are skipped rather than double-run.
func (p *Processor) Tick(ctx context.Context) {
	slots := p.MaxConcurrent - p.inflight.Len()
	if slots <= 0 {
		return
	}

	due, err := p.Svc.ListDue(ctx, p.MaxConcurrent*4)
	if err != nil {
		telemetry.Error("schedule.poll_failed", map[string]any{"error": err.Error()})
		return
	}

	for _, schedule := range due {
		if slots <= 0 {
			return
		}
		if !p.inflight.TryAdd(schedule.ID) {
			continue
		}
		slots--
		go func(schedule Schedule) {
			defer p.inflight.Remove(schedule.ID)
			p.Svc.Execute(context.Background(), schedule)
		}(schedule)
	}
}
