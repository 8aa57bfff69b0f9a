package users

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no user row exists for an id.
var ErrNotFound = errors.New("user not found")

// Repo persists the caller identities observed by the API.
type Repo interface {
	Upsert(ctx context.Context, user User) error
	GetByID(ctx context.Context, userID string) (User, error)
}
