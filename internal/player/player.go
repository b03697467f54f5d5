// Package player streams a series of robot targets into the shared store at
// a fixed rate.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/instructor/internal/geom"
	"github.com/ayusman/instructor/internal/kv"
	"github.com/ayusman/instructor/internal/log"
)

// DefaultRateHz matches the robot controller's loop.
const DefaultRateHz = 1000.0

// Config holds Player settings.
type Config struct {
	Store  kv.Store
	Key    string
	RateHz float64
	Logger *slog.Logger
}

// Stats describes one playback.
type Stats struct {
	Samples int
	Elapsed time.Duration
}

// Player publishes targets one per tick.
type Player struct {
	store    kv.Store
	key      string
	rate     float64
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	last time.Time // when the previous target went out
}

// IntervalFor returns the tick period for rateHz. Rates too high to give a
// positive period are rejected.
func IntervalFor(rateHz float64) (time.Duration, error) {
	if !(rateHz > 0) {
		return 0, fmt.Errorf("invalid rate %v", rateHz)
	}
	interval := time.Duration(float64(time.Second) / rateHz)
	if interval <= 0 {
		return 0, fmt.Errorf("rate %v Hz is too high for a positive tick", rateHz)
	}
	return interval, nil
}

// New creates a Player.
func New(config Config) (*Player, error) {
	if config.Store == nil {
		return nil, errors.New("player needs a store")
	}
	if config.Key == "" {
		return nil, errors.New("player needs a target key")
	}
	rate := config.RateHz
	if rate == 0 {
		rate = DefaultRateHz
	}
	interval, err := IntervalFor(rate)
	if err != nil {
		return nil, err
	}

	return &Player{
		store:    config.Store,
		key:      config.Key,
		rate:     rate,
		interval: interval,
		logger:   log.Or(config.Logger),
	}, nil
}

// Interval returns the time between two published targets.
func (p *Player) Interval() time.Duration {
	return p.interval
}

// Play publishes every target in order, one per tick.
func (p *Player) Play(ctx context.Context, targets []geom.Vec3) error {
	_, err := p.PlayWithStats(ctx, targets)
	return err
}

// PlayWithStats is Play that also reports how many targets went out and how
// long it took. An empty series returns at once without publishing. The wait
// between targets stops as soon as ctx is done.
//
// Consecutive calls keep one interval between the last target of a call and
// the first target of the next, so a move followed by its bridge is paced
// like a single series.
func (p *Player) PlayWithStats(ctx context.Context, targets []geom.Vec3) (Stats, error) {
	var stats Stats
	if len(targets) == 0 {
		return stats, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	started := time.Now()
	if err := p.waitSincePrevious(ctx); err != nil {
		return stats, err
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for i, target := range targets {
		if i > 0 {
			select {
			case <-ctx.Done():
				stats.Elapsed = time.Since(started)
				return stats, ctx.Err()
			case <-ticker.C:
			}
		}

		if err := p.Publish(ctx, target); err != nil {
			stats.Elapsed = time.Since(started)
			return stats, err
		}
		p.last = time.Now()
		stats.Samples++
	}

	stats.Elapsed = time.Since(started)
	p.logger.Debug("playback finished", "samples", stats.Samples, "elapsed", stats.Elapsed)
	return stats, nil
}

// waitSincePrevious sleeps out the rest of the interval that started with the
// previous call's last target.
func (p *Player) waitSincePrevious(ctx context.Context) error {
	if p.last.IsZero() {
		return nil
	}
	remaining := p.interval - time.Since(p.last)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Publish writes a single target.
func (p *Player) Publish(ctx context.Context, target geom.Vec3) error {
	if err := p.store.Set(ctx, p.key, geom.FormatVec(target), 0); err != nil {
		return fmt.Errorf("publish target: %w", err)
	}
	return nil
}
