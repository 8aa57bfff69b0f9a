package object

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound indicates the object does not exist in the store.
var ErrNotFound = errors.New("object not found")

// ObjectStore defines the contract for saving and retrieving binary artifacts.
type ObjectStore interface {
	Save(ctx context.Context, key string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (sizeBytes int64, err error)
	Delete(ctx context.Context, key string) error
}
