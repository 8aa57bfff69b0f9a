package jobs

import (
	"context"
	"sync"
	"time"
)

// Retryable is the recurring shape shared by every persisted job kind.
// Each job table carries a status, a retry counter, and a ceiling; the
// helpers here operate on that trait without knowing the payload.
type Retryable interface {
	JobRetryCount() int
	JobMaxRetries() int
}

// CanRetry reports whether a failed job is still under its retry ceiling.
func CanRetry(r Retryable) bool {
	return r.JobRetryCount() < r.JobMaxRetries()
}

// Backoff returns the exponential delay for the given 1-based attempt:
// base*2^(attempt-1), capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// LinearWait returns step*attempt for the given 1-based attempt. Used where
// the waited-on work takes roughly constant time, so exponential growth
// would only add latency.
func LinearWait(attempt int, step time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * step
}

// Sleep waits for d or until the context is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// InflightSet tracks job ids currently being processed by one processor.
// A job present in the set is never picked up again by the same tick.
type InflightSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewInflightSet returns an empty in-flight set.
func NewInflightSet() *InflightSet {
	return &InflightSet{ids: make(map[string]struct{})}
}

// TryAdd marks a job id as in-flight. It returns false if the id was
// already present.
func (s *InflightSet) TryAdd(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove clears a job id from the set.
func (s *InflightSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Has reports whether a job id is currently in-flight.
func (s *InflightSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Snapshot returns the in-flight job ids at this instant.
func (s *InflightSet) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of in-flight jobs.
func (s *InflightSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// AwaitEmpty polls until the set drains or the timeout elapses. It returns
// true if the set drained in time.
func (s *InflightSet) AwaitEmpty(timeout, poll time.Duration) bool {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		if s.Len() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(poll)
	}
}
