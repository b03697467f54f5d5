package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ayusman/instructor/internal/kv"
)

var (
	// ErrLeaseHeld is returned by RunCycle when another runner owns the lease.
	ErrLeaseHeld = errors.New("lease held by another runner")

	// ErrLeaseLost is returned when the lease expired or was taken mid-cycle.
	ErrLeaseLost = errors.New("lease lost")
)

// releaseTimeout bounds lease release after the cycle context is gone.
const releaseTimeout = time.Second

// lease guards a cycle against a second runner. The zero lease is disabled.
type lease struct {
	store kv.Store
	key   string
	token string
	ttl   time.Duration
}

func (a *App) acquireLease(ctx context.Context, token string) (*lease, error) {
	key := a.config.Keys.Lease
	if key == "" {
		return &lease{}, nil
	}

	ok, err := a.store.SetNX(ctx, key, token, a.config.LeaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &lease{store: a.store, key: key, token: token, ttl: a.config.LeaseTTL}, nil
}

func (l *lease) renew(ctx context.Context) error {
	if l.key == "" {
		return nil
	}
	ok, err := l.store.CompareAndExpire(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLeaseLost, l.key)
	}
	return nil
}

func (l *lease) release(logger *slog.Logger) {
	if l.key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	ok, err := l.store.CompareAndDelete(ctx, l.key, l.token)
	if err != nil {
		logger.Warn("failed to release lease", "key", l.key, "error", err)
		return
	}
	if !ok {
		logger.Warn("lease was no longer ours at release", "key", l.key)
	}
}
