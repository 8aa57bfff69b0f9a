package jobs

import (
	"context"
	"testing"
	"time"
)

type fakeJob struct {
	retries int
	max     int
}

func (f fakeJob) JobRetryCount() int { return f.retries }
func (f fakeJob) JobMaxRetries() int { return f.max }

func TestCanRetry(t *testing.T) {
	cases := []struct {
		name string
		job  fakeJob
		want bool
	}{
		{"under ceiling", fakeJob{retries: 1, max: 3}, true},
		{"at ceiling", fakeJob{retries: 3, max: 3}, false},
		{"over ceiling", fakeJob{retries: 5, max: 3}, false},
		{"zero max", fakeJob{retries: 0, max: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanRetry(tc.job); got != tc.want {
				t.Fatalf("CanRetry(%+v) = %v, want %v", tc.job, got, tc.want)
			}
		})
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	base := time.Second
	max := 10 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{10, 10 * time.Second},
		{0, time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(tc.attempt, base, max); got != tc.want {
			t.Fatalf("Backoff(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestLinearWaitGrowsByStep(t *testing.T) {
	step := 2 * time.Second
	for attempt := 1; attempt <= 5; attempt++ {
		want := time.Duration(attempt) * step
		if got := LinearWait(attempt, step); got != want {
			t.Fatalf("LinearWait(%d) = %s, want %s", attempt, got, want)
		}
	}
	if got := LinearWait(0, step); got != step {
		t.Fatalf("LinearWait(0) = %s, want %s", got, step)
	}
}

func TestSleepRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Minute); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestInflightSetRejectsDuplicates(t *testing.T) {
	set := NewInflightSet()

	if !set.TryAdd("job-1") {
		t.Fatalf("first add should succeed")
	}
	if set.TryAdd("job-1") {
		t.Fatalf("duplicate add should fail")
	}
	if !set.Has("job-1") {
		t.Fatalf("expected job-1 in-flight")
	}
	if set.Len() != 1 {
		t.Fatalf("expected 1 in-flight, got %d", set.Len())
	}

	set.Remove("job-1")
	if set.Has("job-1") {
		t.Fatalf("expected job-1 removed")
	}
	if !set.TryAdd("job-1") {
		t.Fatalf("re-add after remove should succeed")
	}
}

func TestAwaitEmptyDrains(t *testing.T) {
	set := NewInflightSet()
	set.TryAdd("job-1")

	go func() {
		time.Sleep(50 * time.Millisecond)
		set.Remove("job-1")
	}()

	if !set.AwaitEmpty(2*time.Second, 10*time.Millisecond) {
		t.Fatalf("expected set to drain")
	}
}

func TestAwaitEmptyTimesOut(t *testing.T) {
	set := NewInflightSet()
	set.TryAdd("stuck")

	if set.AwaitEmpty(50*time.Millisecond, 10*time.Millisecond) {
		t.Fatalf("expected timeout with job still in-flight")
	}
}
