// Package kv is the client side of the shared runtime key-value store that
// the replay loop, the move producer and the robot controller communicate
// through. Keys hold either a string or a list, as in Redis.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by Get for a missing or expired key.
	ErrNotFound = errors.New("key not found")

	// ErrUnavailable wraps every failure to reach or use the backing store.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the subset of Redis semantics the system relies on.
type Store interface {
	// Get returns the string value of key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Del removes key whatever its type. Missing keys are ignored.
	Del(ctx context.Context, key string) error
	// RPush appends values to the list at key.
	RPush(ctx context.Context, key string, values ...string) error
	// LRange returns list elements between start and stop inclusive.
	// Negative indexes count from the end, so 0, -1 is the whole list.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// CompareAndDelete deletes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	// CompareAndExpire resets the ttl of key only while it still holds value.
	CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Close releases the connection.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	RedisURL   string
	SQLitePath string
}

// Open connects to the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendRedis, "":
		return NewRedis(ctx, opts.RedisURL)
	case BackendSQLite:
		return NewSQLite(opts.SQLitePath)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}

// unavailable marks err as a store failure. Context errors pass through
// unchanged so callers can tell cancellation from an outage.
func unavailable(op, key string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, key, err)
}

// rangeBounds converts Redis style inclusive indexes into slice bounds for a
// list of length n. ok is false when the range selects nothing.
func rangeBounds(n, start, stop int64) (lo, hi int64, ok bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop + 1, true
}
