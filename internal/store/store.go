package store

import (
	"context"
	"errors"
	"time"
)

// ErrVersionConflict is returned by CompareAndSwap when the stored version no
// longer matches the version the caller read.
var ErrVersionConflict = errors.New("version conflict")

// Blob is a single versioned value. Version starts at 1 on the first write
// and increases by one on every write.
type Blob struct {
	Key       string    `db:"name"`
	Value     string    `db:"value"`
	Version   int64     `db:"version"`
	UpdatedAt time.Time `db:"updated_at"`
}

// KeyValue is a scoped string store with optimistic version tags.
type KeyValue interface {
	// Get returns the blob stored under key, or nil if the key is absent.
	Get(ctx context.Context, key string) (*Blob, error)

	// Set writes value unconditionally and returns the new version.
	Set(ctx context.Context, key, value string) (int64, error)

	// CompareAndSwap writes value only if the stored version equals version.
	// A version of 0 means the key must not exist yet. On mismatch it
	// returns ErrVersionConflict.
	CompareAndSwap(ctx context.Context, key, value string, version int64) (int64, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists the stored keys that start with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
