// Package interp generates bridge recordings that carry the robot smoothly
// from the last pose of one move to the first pose of the next.
package interp

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ayusman/instructor/internal/log"
	"github.com/ayusman/instructor/internal/recording"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultDuration = 500 * time.Millisecond
	DefaultRateHz   = 1000.0
)

// MinSamples is the shortest bridge: one sample at each end.
const MinSamples = 2

// Config holds Interpolator settings.
type Config struct {
	Store    *recording.Store
	Duration time.Duration
	RateHz   float64
	Logger   *slog.Logger
}

// Interpolator builds and saves bridges between recorded moves.
type Interpolator struct {
	store    *recording.Store
	duration time.Duration
	rate     float64
	logger   *slog.Logger
}

// New creates an Interpolator.
func New(config Config) *Interpolator {
	duration := config.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	rate := config.RateHz
	if !(rate > 0) {
		rate = DefaultRateHz
	}
	return &Interpolator{
		store:    config.Store,
		duration: duration,
		rate:     rate,
		logger:   log.Or(config.Logger),
	}
}

// Samples returns the number of samples a bridge will contain.
func (in *Interpolator) Samples() int {
	n := int(math.Round(in.duration.Seconds() * in.rate))
	if n < MinSamples {
		return MinSamples
	}
	return n
}

// MinimumJerk maps normalised time t in [0, 1] to normalised progress with
// zero velocity and acceleration at both ends.
func MinimumJerk(t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	t3 := t * t * t
	return t3 * (10 - 15*t + 6*t*t)
}

// Bridge builds the transition from move a to move b and saves it under
// recording.BridgeID(a, b), replacing any earlier bridge.
//
// When either move is missing, empty or unreadable, or the two share no
// column, any stale bridge is removed and an empty recording is returned
// with a nil error. Only a failure to write the bridge is an error.
func (in *Interpolator) Bridge(ctx context.Context, a, b string) (*recording.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := recording.BridgeID(a, b)
	logger := in.logger.With("bridge", id)

	from, err := in.store.Load(a, recording.KindRecorded)
	if err != nil {
		return in.skip(logger, id, "source unreadable", err)
	}
	to, err := in.store.Load(b, recording.KindRecorded)
	if err != nil {
		return in.skip(logger, id, "target unreadable", err)
	}
	if from.Empty() || to.Empty() {
		return in.skip(logger, id, "source or target empty", nil)
	}

	bridge, err := in.Between(id, from, to)
	if err != nil {
		return in.skip(logger, id, "no common columns", err)
	}

	if err := in.store.Save(bridge); err != nil {
		return nil, fmt.Errorf("save bridge %s: %w", id, err)
	}

	logger.Debug("bridge written", "samples", bridge.Len(), "columns", len(bridge.Columns))
	return bridge, nil
}

// Between interpolates from the last sample of from to the first sample of
// to over every column both carry with the same width. The first bridge
// sample equals from's end and the last equals to's start; timestamps
// continue from from's last sample at 1/rate spacing.
func (in *Interpolator) Between(id string, from, to *recording.Recording) (*recording.Recording, error) {
	if from.Empty() || to.Empty() {
		return nil, fmt.Errorf("bridge %s: empty endpoint", id)
	}

	start := from.Samples[from.Len()-1]
	end := to.Samples[0]

	type pair struct{ a, b []float64 }
	var columns []recording.Column
	var pairs []pair
	for i, c := range from.Columns {
		j, ok := to.Find(c.Entity, c.Field)
		if !ok || len(start.Values[i]) != len(end.Values[j]) {
			continue
		}
		columns = append(columns, c)
		pairs = append(pairs, pair{a: start.Values[i], b: end.Values[j]})
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("bridge %s: no column shared by both moves", id)
	}

	n := in.Samples()
	bridge := recording.New(id, recording.KindBridge, columns)
	bridge.Samples = make([]recording.Sample, n)

	for i := 0; i < n; i++ {
		s := MinimumJerk(float64(i) / float64(n-1))
		values := make([][]float64, len(pairs))
		for k, p := range pairs {
			values[k] = blend(p.a, p.b, s)
		}
		// a+(b-a)*1 can miss b by an ulp
		if i == n-1 {
			for k, p := range pairs {
				values[k] = append([]float64(nil), p.b...)
			}
		}
		bridge.Samples[i] = recording.Sample{
			Timestamp: start.Timestamp + float64(i)/in.rate,
			Values:    values,
		}
	}

	return bridge, nil
}

func blend(a, b []float64, s float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + (b[i]-a[i])*s
	}
	return out
}

func (in *Interpolator) skip(logger *slog.Logger, id, reason string, cause error) (*recording.Recording, error) {
	if cause != nil {
		logger.Warn("bridge skipped", "reason", reason, "error", cause)
	} else {
		logger.Warn("bridge skipped", "reason", reason)
	}
	if err := in.store.Remove(id, recording.KindBridge); err != nil {
		logger.Warn("failed to remove stale bridge", "error", err)
	}
	return recording.New(id, recording.KindBridge, nil), nil
}
