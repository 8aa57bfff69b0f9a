package deliveries

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu         sync.RWMutex
	deliveries map[string]Delivery
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{deliveries: make(map[string]Delivery)}
}

func memKey(kind, deliveryID string) string { return kind + ":" + deliveryID }

func (r *MemoryRepo) Create(_ context.Context, delivery Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	delivery.CreatedAt = now
	delivery.UpdatedAt = now
	r.deliveries[memKey(delivery.TargetKind, delivery.ID)] = delivery
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, kind, deliveryID string) (Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	delivery, ok := r.deliveries[memKey(kind, deliveryID)]
	if !ok {
		return Delivery{}, ErrNotFound
	}
	return delivery, nil
}

func (r *MemoryRepo) ListByTarget(_ context.Context, kind, targetID string) ([]Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	deliveries := make([]Delivery, 0, 4)
	for _, delivery := range r.deliveries {
		if delivery.TargetKind == kind && delivery.TargetID == targetID {
			deliveries = append(deliveries, delivery)
		}
	}
	sort.Slice(deliveries, func(i, j int) bool {
		return deliveries[i].CreatedAt.Before(deliveries[j].CreatedAt)
	})
	return deliveries, nil
}

func (r *MemoryRepo) ListPendingByTarget(ctx context.Context, kind, targetID string) ([]Delivery, error) {
	all, err := r.ListByTarget(ctx, kind, targetID)
	if err != nil {
		return nil, err
	}
	pending := all[:0]
	for _, delivery := range all {
		if delivery.Status == StatusPending {
			pending = append(pending, delivery)
		}
	}
	return pending, nil
}

func (r *MemoryRepo) MarkSent(_ context.Context, kind, deliveryID string) (bool, error) {
	return r.transition(kind, deliveryID, StatusPending, func(d *Delivery) {
		now := time.Now().UTC()
		d.Status = StatusSent
		d.SentAt = &now
		d.LastError = ""
	})
}

func (r *MemoryRepo) MarkFailedOrRequeue(_ context.Context, kind, deliveryID, lastError string, retryable bool) (Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(kind, deliveryID)
	delivery, ok := r.deliveries[key]
	if !ok || delivery.Status != StatusPending {
		return Delivery{}, ErrNotFound
	}
	delivery.RetryCount++
	if retryable && delivery.RetryCount < delivery.MaxRetries {
		delivery.Status = StatusPending
	} else {
		delivery.Status = StatusFailed
	}
	delivery.LastError = lastError
	delivery.UpdatedAt = time.Now().UTC()
	r.deliveries[key] = delivery
	return delivery, nil
}

func (r *MemoryRepo) ResetToPending(_ context.Context, kind, deliveryID string) (bool, error) {
	return r.transition(kind, deliveryID, StatusFailed, func(d *Delivery) {
		d.Status = StatusPending
		d.RetryCount = 0
		d.LastError = ""
	})
}

func (r *MemoryRepo) transition(kind, deliveryID, expected string, apply func(*Delivery)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(kind, deliveryID)
	delivery, ok := r.deliveries[key]
	if !ok {
		return false, nil
	}
	if delivery.Status != expected {
		return false, nil
	}
	apply(&delivery)
	delivery.UpdatedAt = time.Now().UTC()
	r.deliveries[key] = delivery
	return true, nil
}
