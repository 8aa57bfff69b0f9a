package deliveries

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("delivery not found")

// Repo defines persistence for deliveries across both job tables.
type Repo interface {
	Create(ctx context.Context, delivery Delivery) error
	GetByID(ctx context.Context, kind, deliveryID string) (Delivery, error)
	ListByTarget(ctx context.Context, kind, targetID string) ([]Delivery, error)
	ListPendingByTarget(ctx context.Context, kind, targetID string) ([]Delivery, error)
	MarkSent(ctx context.Context, kind, deliveryID string) (bool, error)
	MarkFailedOrRequeue(ctx context.Context, kind, deliveryID, lastError string, retryable bool) (Delivery, error)
	ResetToPending(ctx context.Context, kind, deliveryID string) (bool, error)
}
