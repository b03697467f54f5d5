package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ayusman/instructor/internal/app"
)

type ReplayCommand struct {
	Lease string        `long:"lease" description:"Shared store key used to keep a single runner"`
	Poll  time.Duration `long:"poll" description:"Execute flag poll interval"`
}

func (c *ReplayCommand) Execute(args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Lease != "" {
		cfg.Keys.Lease = c.Lease
	}
	if c.Poll > 0 {
		cfg.PollInterval = c.Poll
	}

	s, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	a, err := s.newApp()
	if err != nil {
		return err
	}
	a.OnProgress(logProgress(s.logger))

	err = a.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// logProgress reports move boundaries at info level and bridges at debug.
func logProgress(logger *slog.Logger) func(app.Progress) {
	return func(p app.Progress) {
		switch p.Kind {
		case app.EventMoveStarted:
			logger.Info("move started", "cycle_id", p.CycleID, "move", p.Move, "index", p.Index, "total", p.Total)
		case app.EventBridgePlayed:
			logger.Debug("bridge played", "cycle_id", p.CycleID, "bridge", p.Move, "samples", p.Samples, "elapsed", p.Elapsed)
		}
	}
}
