package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ayusman/instructor/internal/geom"
	"github.com/ayusman/instructor/internal/kv"
	"github.com/ayusman/instructor/internal/recording"
)

// Torso landmarks the detector writes alongside the hands.
const (
	shouldersField = "center_shoulders"
	hipsField      = "center_hips"
)

// EventKind classifies a progress event.
type EventKind int

const (
	EventCycleStarted EventKind = iota
	EventMoveStarted
	EventMoveFinished
	EventMoveSkipped
	EventBridgePlayed
	EventCycleFinished
)

// String returns a human-readable event name.
func (k EventKind) String() string {
	switch k {
	case EventCycleStarted:
		return "cycle_started"
	case EventMoveStarted:
		return "move_started"
	case EventMoveFinished:
		return "move_finished"
	case EventMoveSkipped:
		return "move_skipped"
	case EventBridgePlayed:
		return "bridge_played"
	case EventCycleFinished:
		return "cycle_finished"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Progress reports one step of a cycle.
type Progress struct {
	Kind    EventKind
	CycleID string
	Move    string
	Index   int
	Total   int
	Samples int
	Elapsed time.Duration
	Err     error
}

// fatal reports whether err must abort the cycle.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, kv.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// runMove plays moves[i], logs it as executed when appropriate, then plays
// the bridge to moves[i+1]. It returns whether the move counted as executed.
func (a *App) runMove(ctx context.Context, logger *slog.Logger, cycleID string, i int, moves []string) (bool, error) {
	id := moves[i]
	logger = logger.With("move", id, "index", i)

	executed, err := a.playMove(ctx, logger, cycleID, i, moves)
	if err != nil {
		return false, err
	}

	if i+1 < len(moves) {
		if err := a.playBridge(ctx, logger, cycleID, i, id, moves[i+1]); err != nil {
			return executed, err
		}
	}
	return executed, nil
}

func (a *App) playMove(ctx context.Context, logger *slog.Logger, cycleID string, i int, moves []string) (bool, error) {
	id := moves[i]
	ctx, span := a.tracer.Start(ctx, "replay.move", trace.WithAttributes(
		attribute.String("move", id),
		attribute.Int("index", i),
	))
	defer span.End()

	a.emit(Progress{Kind: EventMoveStarted, CycleID: cycleID, Move: id, Index: i, Total: len(moves)})

	var samples int
	started := time.Now()
	rec, err := a.moves.Load(id, recording.KindRecorded)
	if err == nil {
		samples, err = a.play(ctx, rec)
	}
	elapsed := time.Since(started)

	switch {
	case err == nil:
		logger.Info("move played", "samples", samples, "elapsed", elapsed)
	case errors.Is(err, recording.ErrNotFound):
		logger.Warn("move not found, treating as empty", "error", err)
		span.AddEvent("move not found")
	case fatal(ctx, err):
		recordError(span, err)
		return false, err
	default:
		logger.Warn("move skipped", "error", err)
		recordError(span, err)
		a.emit(Progress{Kind: EventMoveSkipped, CycleID: cycleID, Move: id, Index: i, Total: len(moves), Err: err})
		return false, nil
	}

	if err := a.store.RPush(ctx, a.config.Keys.MoveExecuted, id); err != nil {
		err = fmt.Errorf("log executed move %s: %w", id, err)
		recordError(span, err)
		return false, err
	}

	span.SetAttributes(attribute.Int("samples", samples))
	a.emit(Progress{Kind: EventMoveFinished, CycleID: cycleID, Move: id, Index: i, Total: len(moves), Samples: samples, Elapsed: elapsed})
	return true, nil
}

func (a *App) playBridge(ctx context.Context, logger *slog.Logger, cycleID string, i int, from, to string) error {
	id := recording.BridgeID(from, to)
	ctx, span := a.tracer.Start(ctx, "replay.bridge", trace.WithAttributes(
		attribute.String("bridge", id),
	))
	defer span.End()

	bridge, err := a.interp.Bridge(ctx, from, to)
	if err != nil {
		recordError(span, err)
		if fatal(ctx, err) {
			return err
		}
		logger.Warn("bridge not generated", "bridge", id, "error", err)
		return nil
	}
	if bridge.Empty() {
		return nil
	}

	started := time.Now()
	samples, err := a.play(ctx, bridge)
	if err != nil {
		recordError(span, err)
		if fatal(ctx, err) {
			return err
		}
		logger.Warn("bridge skipped", "bridge", id, "error", err)
		return nil
	}

	a.emit(Progress{Kind: EventBridgePlayed, CycleID: cycleID, Move: id, Index: i, Samples: samples, Elapsed: time.Since(started)})
	return nil
}

// PlayRecording loads one recording and streams it outside of any cycle.
// Nothing is logged to the execution list and the flag is untouched.
func (a *App) PlayRecording(ctx context.Context, id string, kind recording.Kind) (int, error) {
	rec, err := a.moves.Load(id, kind)
	if err != nil {
		return 0, err
	}
	return a.play(ctx, rec)
}

// play maps a recording to robot targets and streams them.
func (a *App) play(ctx context.Context, rec *recording.Recording) (int, error) {
	targets, err := a.Targets(rec)
	if err != nil {
		return 0, err
	}
	stats, err := a.player.PlayWithStats(ctx, targets)
	return stats.Samples, err
}

// Targets maps the configured hand column of rec into the robot workspace.
// With torso columns present the hand is taken relative to the hips and
// scaled by torso length; without them it is only rotated and clamped.
func (a *App) Targets(rec *recording.Recording) ([]geom.Vec3, error) {
	if rec.Empty() {
		return nil, nil
	}

	prefix := a.config.Prefix
	hands, ok, err := rec.FieldVectors(prefix, a.config.Hand)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s has no %s column", recording.ErrMalformed, rec.ID, a.config.Hand)
	}

	shoulders, hasShoulders, err := rec.FieldVectors(prefix, shouldersField)
	if err != nil {
		return nil, err
	}
	hips, hasHips, err := rec.FieldVectors(prefix, hipsField)
	if err != nil {
		return nil, err
	}

	if hasShoulders && hasHips {
		return a.mapper.Map(hands, shoulders, hips)
	}
	return a.mapper.MapHands(hands), nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
