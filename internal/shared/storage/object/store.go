package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore defines the contract for saving, retrieving and sharing binary
// objects. Keys are caller-chosen storage paths.
type ObjectStore interface {
	Save(ctx context.Context, key string, contentType string, r io.Reader) (sizeBytes int64, err error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// PresignGet issues a time-limited URL granting read access to the object
	// without further authentication.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)
}
