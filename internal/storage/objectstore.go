package storage

import (
	"context"
	"errors"
	"io"

	"intake/internal/models"
)

// MaxDeleteBatch mirrors the per-request key limit of S3-compatible stores.
const MaxDeleteBatch = 1000

var (
	ErrInvalidKey    = errors.New("invalid object key")
	ErrBatchTooLarge = errors.New("delete batch too large")
	ErrTooLarge      = errors.New("object too large")
)

// ObjectStore is the subset of a bucket API the service relies on.
// Keys use "/" separators; a prefix ends with "/".
type ObjectStore interface {
	// ListPrefixes returns the direct child prefixes of root, e.g. "uploads/<id>/".
	ListPrefixes(ctx context.Context, root string) ([]string, error)
	ListObjects(ctx context.Context, prefix string) ([]models.ObjectInfo, error)
	// DeleteBatch removes up to MaxDeleteBatch keys. Missing keys are not an error.
	DeleteBatch(ctx context.Context, keys []string) error
	// Put stores r under key. With maxBytes > 0 a longer body fails with
	// ErrTooLarge and leaves any existing object at key untouched.
	Put(ctx context.Context, key string, r io.Reader, maxBytes int64) (models.ObjectInfo, error)
}
