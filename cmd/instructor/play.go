package main

import (
	"fmt"

	"github.com/ayusman/instructor/internal/recording"
)

type PlayCommand struct {
	Bridge bool `long:"bridge" description:"Play the bridge between two moves instead of a move"`

	Args struct {
		Moves []string `positional-arg-name:"move" required:"1"`
	} `positional-args:"yes"`
}

func (c *PlayCommand) Execute(args []string) error {
	ctx, stop := signalContext()
	defer stop()

	id, kind := c.Args.Moves[0], recording.KindRecorded
	if c.Bridge {
		if len(c.Args.Moves) != 2 {
			return fmt.Errorf("--bridge needs exactly two moves, got %d", len(c.Args.Moves))
		}
		id, kind = recording.BridgeID(c.Args.Moves[0], c.Args.Moves[1]), recording.KindBridge
	} else if len(c.Args.Moves) != 1 {
		return fmt.Errorf("play takes one move, got %d", len(c.Args.Moves))
	}

	s, err := setup(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	a, err := s.newApp()
	if err != nil {
		return err
	}

	samples, err := a.PlayRecording(ctx, id, kind)
	if err != nil {
		return fmt.Errorf("play %s %s: %w", kind, id, err)
	}

	fmt.Printf("Played %s %s: %d targets to %s\n", kind, id, samples, s.cfg.Keys.DesiredPos)
	return nil
}
