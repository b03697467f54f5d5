// Package app runs the replay loop: it waits for the execute flag in the
// shared store, plays the queued moves with bridges between them, and
// records which moves were executed.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ayusman/instructor/internal/config"
	"github.com/ayusman/instructor/internal/interp"
	"github.com/ayusman/instructor/internal/kv"
	"github.com/ayusman/instructor/internal/log"
	"github.com/ayusman/instructor/internal/mapper"
	"github.com/ayusman/instructor/internal/player"
	"github.com/ayusman/instructor/internal/recording"
	"github.com/ayusman/instructor/internal/telemetry"
)

// Flag values written to the execute flag key.
const (
	FlagTriggered = "1"
	FlagIdle      = "0"
)

// DefaultPollInterval is well under the 33ms frame period of a 30 Hz recording.
const DefaultPollInterval = 10 * time.Millisecond

// State is the orchestrator's coarse state.
type State int

const (
	StateIdle State = iota
	StatePlaying
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a snapshot of what the orchestrator is doing.
type Status struct {
	State   State
	CycleID string
	Move    string
	Index   int
	Total   int
}

// Config holds configuration options for the application.
type Config struct {
	Store kv.Store
	Moves *recording.Store
	Keys  config.Keys

	// LeaseTTL bounds how long a crashed runner can hold Keys.Lease.
	LeaseTTL time.Duration

	RateHz         float64
	Prefix         string
	Hand           string
	Workspace      mapper.Workspace
	BridgeDuration time.Duration
	PollInterval   time.Duration

	Logger *slog.Logger
	Tracer trace.Tracer
}

// FromConfig fills an app Config from loaded settings and open stores.
func FromConfig(cfg config.Config, store kv.Store, moves *recording.Store, logger *slog.Logger) (Config, error) {
	ws, err := cfg.Workspace()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Store:          store,
		Moves:          moves,
		Keys:           cfg.Keys,
		LeaseTTL:       cfg.LeaseTTL,
		RateHz:         cfg.RateHz,
		Prefix:         cfg.Prefix,
		Hand:           cfg.Hand,
		Workspace:      ws,
		BridgeDuration: cfg.BridgeDuration,
		PollInterval:   cfg.PollInterval,
		Logger:         logger,
	}, nil
}

// App is the replay orchestrator.
type App struct {
	config    Config
	store     kv.Store
	moves     *recording.Store
	mapper    *mapper.Mapper
	player    *player.Player
	interp    *interp.Interpolator
	logger    *slog.Logger
	tracer    trace.Tracer
	mu        sync.RWMutex
	status    Status
	callbacks []func(Progress)
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	if config.Store == nil || config.Moves == nil {
		return nil, errors.New("app needs a shared store and a move store")
	}
	if config.Hand == "" {
		config.Hand = "right_hand"
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.Workspace == (mapper.Workspace{}) {
		config.Workspace = mapper.DefaultWorkspace()
	}
	if err := config.Workspace.Validate(); err != nil {
		return nil, err
	}
	if config.Keys.Lease != "" && config.LeaseTTL <= 0 {
		return nil, fmt.Errorf("lease %q needs a positive ttl", config.Keys.Lease)
	}

	logger := log.Or(config.Logger)

	p, err := player.New(player.Config{
		Store:  config.Store,
		Key:    config.Keys.DesiredPos,
		RateHz: config.RateHz,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	tracer := config.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}

	return &App{
		config: config,
		store:  config.Store,
		moves:  config.Moves,
		mapper: mapper.New(config.Workspace),
		player: p,
		interp: interp.New(interp.Config{
			Store:    config.Moves,
			Duration: config.BridgeDuration,
			RateHz:   config.RateHz,
			Logger:   logger,
		}),
		logger: logger,
		tracer: tracer,
	}, nil
}

// OnProgress registers a callback run for every progress event. Callbacks
// run on the control goroutine and must not block.
func (a *App) OnProgress(fn func(Progress)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

// Status returns the current state.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// State returns the current coarse state.
func (a *App) State() State {
	return a.Status().State
}

func (a *App) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

func (a *App) emit(p Progress) {
	a.mu.RLock()
	callbacks := a.callbacks
	a.mu.RUnlock()
	for _, fn := range callbacks {
		fn(p)
	}
}

// Run polls the execute flag and runs a cycle each time it reads "1".
// It returns ctx.Err() once ctx is done, or the first store failure.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("replay loop started",
		"flag", a.config.Keys.ExecuteFlag,
		"poll", a.config.PollInterval,
		"rate_hz", a.config.RateHz)

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		triggered, err := a.Triggered(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if triggered {
			err := a.RunCycle(ctx)
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, ErrLeaseHeld):
				a.logger.Debug("another runner holds the lease")
			case errors.Is(err, ErrLeaseLost):
				a.logger.Warn("lease lost during cycle", "error", err)
			case err != nil:
				return err
			}
		}

		select {
		case <-ctx.Done():
			a.logger.Info("replay loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Triggered reports whether the execute flag is set. A missing flag is idle.
func (a *App) Triggered(ctx context.Context) (bool, error) {
	v, err := a.store.Get(ctx, a.config.Keys.ExecuteFlag)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read execute flag: %w", err)
	}
	return v == FlagTriggered, nil
}

// RunCycle plays one snapshot of the move list and resets the execute flag.
// It does nothing when the flag no longer reads "1" once the lease is held.
//
// Missing moves count as executed no-ops. Moves that cannot be read or
// mapped are skipped and not logged as executed. A store failure or
// cancellation aborts the cycle and leaves the flag set.
func (a *App) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	logger := a.logger.With("cycle_id", cycleID)

	ctx, span := a.tracer.Start(ctx, "replay.cycle",
		trace.WithAttributes(attribute.String("cycle_id", cycleID)))
	defer span.End()

	lease, err := a.acquireLease(ctx, cycleID)
	if err != nil {
		recordError(span, err)
		return err
	}
	defer lease.release(logger)

	// Another runner may have finished the triggered cycle between our flag
	// read and taking the lease.
	triggered, err := a.Triggered(ctx)
	if err != nil {
		recordError(span, err)
		return err
	}
	if !triggered {
		logger.Debug("execute flag cleared before cycle start")
		span.AddEvent("flag already cleared")
		return nil
	}

	moves, err := a.store.LRange(ctx, a.config.Keys.MoveList, 0, -1)
	if err != nil {
		err = fmt.Errorf("snapshot move list: %w", err)
		recordError(span, err)
		return err
	}
	span.SetAttributes(attribute.Int("moves", len(moves)))

	logger.Info("cycle started", "moves", len(moves))
	a.setStatus(Status{State: StatePlaying, CycleID: cycleID, Index: -1, Total: len(moves)})
	defer a.setStatus(Status{State: StateIdle})
	a.emit(Progress{Kind: EventCycleStarted, CycleID: cycleID, Index: -1, Total: len(moves)})

	started := time.Now()
	executed := 0
	for i, id := range moves {
		a.setStatus(Status{State: StatePlaying, CycleID: cycleID, Move: id, Index: i, Total: len(moves)})

		done, err := a.runMove(ctx, logger, cycleID, i, moves)
		if err != nil {
			recordError(span, err)
			return err
		}
		if done {
			executed++
		}

		if err := lease.renew(ctx); err != nil {
			recordError(span, err)
			return err
		}
	}

	if err := a.store.Set(ctx, a.config.Keys.ExecuteFlag, FlagIdle, 0); err != nil {
		err = fmt.Errorf("reset execute flag: %w", err)
		recordError(span, err)
		return err
	}

	elapsed := time.Since(started)
	logger.Info("cycle finished", "moves", len(moves), "executed", executed, "elapsed", elapsed)
	a.emit(Progress{Kind: EventCycleFinished, CycleID: cycleID, Index: len(moves), Total: len(moves), Elapsed: elapsed})
	return nil
}
