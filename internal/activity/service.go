package activity

import (
	"context"
	"time"

	"github.com/kingsmanrocky-max/account-intelligence/internal/shared/telemetry"
)

type store interface {
	Insert(ctx context.Context, entry Entry) error
	RecentForUser(ctx context.Context, userID string, limit int) ([]Entry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service records audit entries. Recording is best-effort: a failed insert
// is logged and swallowed so it never fails the operation being audited.
type Service struct {
	store store
}

// NewService constructs a Service with an in-memory store.
func NewService() *Service {
	return &Service{store: newMemoryStore()}
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore store) *Service {
	return &Service{store: pgStore}
}

// Record writes one audit entry.
func (s *Service) Record(ctx context.Context, userID, action, entityKind, entityID string, metadata map[string]any) {
	if s == nil || s.store == nil {
		return
	}
	err := s.store.Insert(ctx, Entry{
		UserID:     userID,
		Action:     action,
		EntityKind: entityKind,
		EntityID:   entityID,
		Metadata:   metadata,
	})
	if err != nil {
		telemetry.Warn("activity.record_failed", map[string]any{
			"action": action,
			"error":  err.Error(),
		})
	}
}

// RecentForUser returns the newest entries for a user.
func (s *Service) RecentForUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.RecentForUser(ctx, userID, limit)
}

// PruneOlderThan removes entries older than cutoff and returns the count.
func (s *Service) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.DeleteOlderThan(ctx, cutoff)
}
