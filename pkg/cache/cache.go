package cache

import (
	"context"
	"time"
)

// BytesCache is the minimal cache surface the screener needs for its
// per-run history caches. Implementations must be safe for concurrent use.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
