package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayusman/instructor/internal/app"
	"github.com/ayusman/instructor/internal/kv"
)

type TriggerCommand struct {
	Append  bool          `long:"append" description:"Append to the move list instead of replacing it"`
	Wait    bool          `long:"wait" description:"Block until the replay loop resets the flag"`
	Timeout time.Duration `long:"timeout" default:"5m" description:"Maximum time to wait with --wait"`

	Args struct {
		Moves []string `positional-arg-name:"move"`
	} `positional-args:"yes"`
}

func (c *TriggerCommand) Execute(args []string) error {
	ctx, stop := signalContext()
	defer stop()

	s, err := setup(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	keys := s.cfg.Keys
	if !c.Append {
		if err := s.store.Del(ctx, keys.MoveList); err != nil {
			return err
		}
	}
	if err := s.store.RPush(ctx, keys.MoveList, c.Args.Moves...); err != nil {
		return err
	}
	before, err := s.store.LRange(ctx, keys.MoveExecuted, 0, -1)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, keys.ExecuteFlag, app.FlagTriggered, 0); err != nil {
		return err
	}

	queued, err := s.store.LRange(ctx, keys.MoveList, 0, -1)
	if err != nil {
		return err
	}
	fmt.Printf("Triggered %d moves: %s\n", len(queued), strings.Join(queued, ", "))

	if !c.Wait {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	if err := waitForIdle(ctx, s.store, keys.ExecuteFlag, s.cfg.PollInterval); err != nil {
		return err
	}

	after, err := s.store.LRange(ctx, keys.MoveExecuted, int64(len(before)), -1)
	if err != nil {
		return err
	}
	fmt.Printf("Executed %d moves: %s\n", len(after), strings.Join(after, ", "))
	return nil
}

// waitForIdle polls key until it reads the idle flag value.
func waitForIdle(ctx context.Context, store kv.Store, key string, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		v, err := store.Get(ctx, key)
		if err != nil && !errors.Is(err, kv.ErrNotFound) {
			return err
		}
		if v == app.FlagIdle {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}
