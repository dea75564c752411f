package blobstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/household-energy-dashboard/internal/household"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff matches what the object store SDKs tolerate well.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

var (
	errCircuitOpen   = errors.New("circuit breaker open")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// BreakerConfig tunes the circuit breaker shared by every call to a store.
type BreakerConfig struct {
	// HalfOpenRequests is how many calls a half-open breaker lets through.
	// Keep it above the number of concurrent downloads plus the listing.
	HalfOpenRequests uint32
	// FailureThreshold is the run of consecutive failures that opens it.
	FailureThreshold uint32
	// OpenTimeout is how long it stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultBreaker suits the default fetch concurrency of 8.
var DefaultBreaker = BreakerConfig{
	HalfOpenRequests: 9,
	FailureThreshold: 5,
	OpenTimeout:      2 * time.Minute,
}

// Resilient wraps an ObjectStore with retries, exponential backoff and a
// circuit breaker shared by all calls to that store.
type Resilient struct {
	next    household.ObjectStore
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

// WithResilience decorates store. Cancelled or timed out calls are not
// counted against the breaker.
func WithResilience(store household.ObjectStore, backoff BackoffConfig, breaker BreakerConfig) *Resilient {
	if breaker.HalfOpenRequests == 0 {
		breaker.HalfOpenRequests = DefaultBreaker.HalfOpenRequests
	}
	if breaker.FailureThreshold == 0 {
		breaker.FailureThreshold = DefaultBreaker.FailureThreshold
	}
	if breaker.OpenTimeout <= 0 {
		breaker.OpenTimeout = DefaultBreaker.OpenTimeout
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        store.Name(),
		MaxRequests: breaker.HalfOpenRequests,
		Interval:    1 * time.Minute,
		Timeout:     breaker.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breaker.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isContextError(err)
		},
	})

	return &Resilient{
		next:    store,
		backoff: backoff,
		circuit: cb,
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Resilient) Name() string {
	return r.next.Name()
}

func (r *Resilient) List(ctx context.Context) ([]string, error) {
	return withResilience(ctx, r.backoff, r.circuit, r.next.List)
}

func (r *Resilient) Download(ctx context.Context, objectID string) ([]byte, error) {
	return withResilience(ctx, r.backoff, r.circuit, func(ctx context.Context) ([]byte, error) {
		return r.next.Download(ctx, objectID)
	})
}

// withResilience executes op with retries, exponential backoff, and a
// circuit breaker.
func withResilience[T any](
	ctx context.Context,
	cfg BackoffConfig,
	cb *gobreaker.CircuitBreaker,
	op func(context.Context) (T, error),
) (T, error) {
	var zero T
	if cfg.MaxRetries < 0 || cfg.InitialInterval <= 0 {
		return zero, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return op(ctx)
		})

		if err == nil {
			v, ok := result.(T)
			if !ok {
				return zero, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return v, nil
		}

		// If circuit is open, propagate immediately. A half-open breaker that
		// is already at capacity is worth waiting for.
		if errors.Is(err, gobreaker.ErrOpenState) {
			return zero, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if isContextError(err) {
			return zero, err
		}
		if errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= cfg.MaxRetries {
			return zero, lastErr
		}

		delay := cfg.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.MaxInterval && cfg.MaxInterval > 0 {
			delay = cfg.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

var _ household.ObjectStore = (*Resilient)(nil)
