// Package ratelimit enforces fixed-window request quotas per API key.
//
// A window opens on the first request for a key and lasts Window. Requests
// are admitted while the window's count is below the key's limit; once the
// limit is reached further requests are rejected with the window's reset
// instant until the window expires, at which point the next request opens a
// fresh window with a count of one.
//
// Counters live in a Store. MemoryStore keeps them in process memory, which
// is sufficient for a single instance; RedisStore shares them across
// instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultLimit is applied when a key carries no positive limit.
const DefaultLimit = 1000

// ErrLimitExceeded is matched by *ExceededError.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// ExceededError is returned when a key has used its quota for the window.
type ExceededError struct {
	Limit   int
	ResetAt time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit of %d requests exceeded; resets at %s", e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}

// Unwrap returns ErrLimitExceeded.
func (e *ExceededError) Unwrap() error { return ErrLimitExceeded }

// Decision describes the quota state after a request was counted.
type Decision struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store counts requests per key in fixed windows.
type Store interface {
	// Take counts one request for key. It returns the count after the
	// request, the instant the current window resets, and whether the
	// request fits within limit.
	Take(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (count int, resetAt time.Time, allowed bool, err error)
}

// Limiter applies per-key fixed-window quotas backed by a Store.
//
// This type is safe for concurrent use when its Store is.
type Limiter struct {
	store        Store
	window       time.Duration
	defaultLimit int

	now func() time.Time
}

// New returns a Limiter. A non-positive window defaults to one hour and a
// non-positive defaultLimit to DefaultLimit.
func New(store Store, window time.Duration, defaultLimit int) *Limiter {
	if window <= 0 {
		window = time.Hour
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Limiter{store: store, window: window, defaultLimit: defaultLimit, now: time.Now}
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow counts one request for key against limit. A limit <= 0 uses the
// limiter's default. On rejection it returns the Decision together with an
// *ExceededError.
func (l *Limiter) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		limit = l.defaultLimit
	}
	count, resetAt, allowed, err := l.store.Take(ctx, key, limit, l.window, l.now())
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Limit: limit, Remaining: limit - count, ResetAt: resetAt}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !allowed {
		rejectionsTotal.Inc()
		return d, &ExceededError{Limit: limit, ResetAt: resetAt}
	}
	return d, nil
}
