// Package metadata is a small key/value table for client bookkeeping, most
// importantly the sync cursor.
package metadata

import (
	"context"
)

// CursorKey holds the last remote change sequence applied locally.
const CursorKey = "sync_cursor"

type Repository interface {
	// Get returns (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
}
