package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type scriptedProvider struct {
	name    string
	results []error
	calls   int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(_ context.Context, req Request) (Response, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.results) && p.results[idx] != nil {
		return Response{}, p.results[idx]
	}
	return Response{Text: "ok", Model: req.Model, Provider: p.name}, nil
}

func newTestService(primary, fallback Provider) (*Service, *[]time.Duration) {
	slept := []time.Duration{}
	svc := NewService(primary, fallback, 3)
	svc.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return svc, &slept
}

func TestCompleteFirstAttemptSucceeds(t *testing.T) {
	primary := &scriptedProvider{name: "primary"}
	svc, slept := newTestService(primary, nil)

	resp, err := svc.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "primary" {
		t.Errorf("provider = %q, want primary", resp.Provider)
	}
	if primary.calls != 1 {
		t.Errorf("calls = %d, want 1", primary.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no waits", *slept)
	}
}

func TestCompleteRetriesWithExponentialBackoff(t *testing.T) {
	transient := &Error{Provider: "primary", Code: CodeServerError, Retryable: true}
	primary := &scriptedProvider{name: "primary", results: []error{transient, transient, nil}}
	svc, slept := newTestService(primary, nil)

	if _, err := svc.Complete(context.Background(), Request{Prompt: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != 3 {
		t.Errorf("calls = %d, want 3", primary.calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) {
		t.Fatalf("waits = %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Errorf("wait[%d] = %v, want %v", i, (*slept)[i], want[i])
		}
	}
}

func TestCompleteRateLimitWaitsProviderHint(t *testing.T) {
	limited := &Error{Provider: "primary", Code: CodeRateLimited, Retryable: true, RetryAfter: 7 * time.Second}
	primary := &scriptedProvider{name: "primary", results: []error{limited, nil}}
	svc, slept := newTestService(primary, nil)

	if _, err := svc.Complete(context.Background(), Request{Prompt: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 7*time.Second {
		t.Errorf("waits = %v, want [7s]", *slept)
	}
}

func TestCompleteRateLimitWithoutHintUsesDefault(t *testing.T) {
	limited := &Error{Provider: "primary", Code: CodeRateLimited, Retryable: true}
	primary := &scriptedProvider{name: "primary", results: []error{limited, nil}}
	svc, slept := newTestService(primary, nil)

	if _, err := svc.Complete(context.Background(), Request{Prompt: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != defaultRateLimitDelay {
		t.Errorf("waits = %v, want [%v]", *slept, defaultRateLimitDelay)
	}
}

func TestCompleteNonRetryableAbortsWithoutFallback(t *testing.T) {
	authErr := &Error{Provider: "primary", Code: CodeAuth, Retryable: false}
	primary := &scriptedProvider{name: "primary", results: []error{authErr}}
	fallback := &scriptedProvider{name: "fallback"}
	svc, slept := newTestService(primary, fallback)

	_, err := svc.Complete(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, authErr) {
		t.Fatalf("error = %v, want auth error", err)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback calls = %d, want 0", fallback.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v, want no waits", *slept)
	}
}

func TestCompleteFallbackEngagedAfterPrimaryExhausted(t *testing.T) {
	transient := &Error{Provider: "primary", Code: CodeNetwork, Retryable: true}
	primary := &scriptedProvider{name: "primary", results: []error{transient, transient, transient}}
	fallback := &scriptedProvider{name: "fallback"}
	svc, _ := newTestService(primary, fallback)

	resp, err := svc.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "fallback" {
		t.Errorf("provider = %q, want fallback", resp.Provider)
	}
	if primary.calls != 3 {
		t.Errorf("primary calls = %d, want 3", primary.calls)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}
}

func TestCompleteSurfacesPrimaryErrorWhenBothFail(t *testing.T) {
	primaryErr := &Error{Provider: "primary", Code: CodeServerError, Message: "primary down", Retryable: true}
	fallbackErr := &Error{Provider: "fallback", Code: CodeServerError, Message: "fallback down", Retryable: true}
	primary := &scriptedProvider{name: "primary", results: []error{primaryErr, primaryErr, primaryErr}}
	fallback := &scriptedProvider{name: "fallback", results: []error{fallbackErr, fallbackErr, fallbackErr}}
	svc, _ := newTestService(primary, fallback)

	_, err := svc.Complete(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, primaryErr) {
		t.Fatalf("error = %v, want primary error surfaced", err)
	}
}

func TestCompleteAbortsWhenContextCancelledDuringWait(t *testing.T) {
	transient := &Error{Provider: "primary", Code: CodeServerError, Retryable: true}
	primary := &scriptedProvider{name: "primary", results: []error{transient, transient, transient}}
	svc := NewService(primary, nil, 3)
	svc.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err := svc.Complete(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if primary.calls != 1 {
		t.Errorf("primary calls = %d, want 1", primary.calls)
	}
}

func TestIsRetryableUnclassifiedErrors(t *testing.T) {
	if !IsRetryable(errors.New("socket closed")) {
		t.Error("unclassified error should be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil error should not be retryable")
	}
}
