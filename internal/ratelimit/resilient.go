package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/circuitbreaker"
)

// ResilientCounter bounds every store call by a timeout and skips the store
// entirely while the breaker is open. All failures surface as ErrStoreUnavailable.
type ResilientCounter struct {
	inner   Counter
	breaker *circuitbreaker.Breaker
	timeout time.Duration
}

func NewResilientCounter(inner Counter, breaker *circuitbreaker.Breaker, timeout time.Duration) *ResilientCounter {
	return &ResilientCounter{inner: inner, breaker: breaker, timeout: timeout}
}

func (r *ResilientCounter) call(ctx context.Context, fn func(ctx context.Context) error) error {
	err := r.breaker.Call(func() error {
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

func (r *ResilientCounter) Hit(ctx context.Context, key string, decay time.Duration) (int64, error) {
	var count int64
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.inner.Hit(ctx, key, decay)
		return err
	})
	return count, err
}

func (r *ResilientCounter) Attempts(ctx context.Context, key string) (int64, error) {
	var count int64
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		count, err = r.inner.Attempts(ctx, key)
		return err
	})
	return count, err
}

func (r *ResilientCounter) TooManyAttempts(ctx context.Context, key string, maxAttempts int) (bool, error) {
	var tooMany bool
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		tooMany, err = r.inner.TooManyAttempts(ctx, key, maxAttempts)
		return err
	})
	return tooMany, err
}

func (r *ResilientCounter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	var ttl time.Duration
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		ttl, err = r.inner.AvailableIn(ctx, key)
		return err
	})
	return ttl, err
}

func (r *ResilientCounter) Clear(ctx context.Context, key string) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.inner.Clear(ctx, key)
	})
}
