package main

import (
	"fmt"

	"github.com/ayusman/instructor/internal/interp"
	"github.com/ayusman/instructor/internal/kv"
	"github.com/ayusman/instructor/internal/recording"
)

type BridgeCommand struct {
	Args struct {
		From string `positional-arg-name:"from" required:"yes"`
		To   string `positional-arg-name:"to" required:"yes"`
	} `positional-args:"yes"`
}

func (c *BridgeCommand) Execute(args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Bridges only touch the move directories
	cfg.Store = kv.BackendMemory

	s, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	in := interp.New(interp.Config{
		Store:    s.moves,
		Duration: cfg.BridgeDuration,
		RateHz:   cfg.RateHz,
		Logger:   s.logger,
	})

	bridge, err := in.Bridge(ctx, c.Args.From, c.Args.To)
	if err != nil {
		return err
	}
	if bridge.Empty() {
		return fmt.Errorf("no bridge from %s to %s: a move is missing or unreadable", c.Args.From, c.Args.To)
	}

	path, _ := s.moves.Layout().Path(bridge.ID, recording.KindBridge)
	fmt.Printf("Wrote %s: %d samples over %d columns\n", path, bridge.Len(), len(bridge.Columns))
	return nil
}
