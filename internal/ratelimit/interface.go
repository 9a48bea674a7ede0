package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps every failure of the backing store
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Counter counts hits per key inside a decay window.
// Implementations must increment atomically across processes.
type Counter interface {
	// Hit increments key and returns the new count
	Hit(ctx context.Context, key string, decay time.Duration) (int64, error)

	// Attempts returns the current count, 0 when absent or expired
	Attempts(ctx context.Context, key string) (int64, error)

	TooManyAttempts(ctx context.Context, key string, maxAttempts int) (bool, error)

	// AvailableIn returns the time until key expires, 0 when absent
	AvailableIn(ctx context.Context, key string) (time.Duration, error)

	Clear(ctx context.Context, key string) error
}
