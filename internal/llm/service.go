package llm

import (
	"context"
	"errors"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/jobs"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/metrics"
	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

const (
	defaultMaxAttempts    = 3
	defaultBackoffBase    = time.Second
	defaultBackoffMax     = 10 * time.Second
	defaultRateLimitDelay = 5 * time.Second
)

// Service is the completion layer: it drives one provider through a bounded
// attempt loop and, when the primary is exhausted on a retryable failure,
// repeats the loop once against a distinct fallback provider.
type Service struct {
	Primary     Provider
	Fallback    Provider
	MaxAttempts int

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService builds a completion service. fallback may be nil.
func NewService(primary, fallback Provider, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Service{
		Primary:     primary,
		Fallback:    fallback,
		MaxAttempts: maxAttempts,
		sleep:       jobs.Sleep,
	}
}

// Complete executes the request with retry and provider fallback. When both
// providers fail, the primary's error is surfaced so the root cause stays
// visible.
func (s *Service) Complete(ctx context.Context, req Request) (Response, error) {
	if s.Primary == nil {
		return Response{}, errors.New("no completion provider configured")
	}

	resp, primaryErr := s.completeWithRetry(ctx, s.Primary, req)
	if primaryErr == nil {
		return resp, nil
	}
	if !IsRetryable(primaryErr) || s.Fallback == nil {
		return Response{}, primaryErr
	}

	telemetry.Warn("llm.fallback", map[string]any{
		"primary":  s.Primary.Name(),
		"fallback": s.Fallback.Name(),
		"error":    primaryErr.Error(),
	})

	resp, fallbackErr := s.completeWithRetry(ctx, s.Fallback, req)
	if fallbackErr == nil {
		metrics.IncLLMFallback()
		return resp, nil
	}
	telemetry.Error("llm.fallback_failed", map[string]any{
		"fallback": s.Fallback.Name(),
		"error":    fallbackErr.Error(),
	})
	return Response{}, primaryErr
}

func (s *Service) completeWithRetry(ctx context.Context, p Provider, req Request) (Response, error) {
	var lastErr error
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !IsRetryable(err) || attempt == s.MaxAttempts {
			break
		}

		var delay time.Duration
		if IsRateLimited(err) {
			// Rate limits wait out the provider hint instead of
			// consuming the exponential schedule.
			delay = RetryAfterHint(err)
			if delay <= 0 {
				delay = defaultRateLimitDelay
			}
		} else {
			delay = jobs.Backoff(attempt, defaultBackoffBase, defaultBackoffMax)
		}

		telemetry.Info("llm.retry", map[string]any{
			"provider": p.Name(),
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		if err := s.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}
