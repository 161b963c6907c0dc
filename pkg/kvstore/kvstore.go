package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the shared counter/config store used for budget enforcement
// and dynamic per-retailer configuration.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// RateLimit consumes one token from a windowed counter and reports
	// whether the key is over its limit for the window.
	RateLimit(ctx context.Context, key string, window time.Duration, limit int) (limited bool, err error)
	Close() error
}
