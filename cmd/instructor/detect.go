package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/instructor/internal/detector"
	"github.com/ayusman/instructor/internal/kv"
	"github.com/ayusman/instructor/internal/recording"
)

type DetectCommand struct {
	Image         string  `long:"image" required:"yes" description:"Image file to analyse"`
	Move          string  `long:"move" description:"Append the landmarks as a sample of this recorded move"`
	Prefix        string  `long:"prefix" default:"mediapipe" description:"Producer name used in move columns"`
	MinConfidence float64 `long:"min-confidence" default:"0.5" description:"Minimum pose score"`
	Script        string  `long:"script" description:"Path to pose_service.py"`
}

func (c *DetectCommand) Execute(args []string) error {
	ctx, stop := signalContext()
	defer stop()

	img := gocv.IMRead(c.Image, gocv.IMReadColor)
	if img.Empty() {
		return fmt.Errorf("cannot read image %s", c.Image)
	}
	defer img.Close()

	config := detector.DefaultConfig()
	config.MinConfidence = c.MinConfidence
	config.ScriptPath = c.Script

	det, err := detector.NewMediaPipeDetector(config)
	if err != nil {
		return err
	}
	defer det.Close()

	poses, err := det.Detect(&img)
	if err != nil {
		return err
	}
	if len(poses) == 0 {
		return fmt.Errorf("no pose found in %s", c.Image)
	}

	set := detector.ExtractPose(&poses[0])

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(set); err != nil {
		return err
	}

	if c.Move == "" {
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Store = kv.BackendMemory
	s, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.moves.Load(c.Move, recording.KindRecorded)
	if errors.Is(err, recording.ErrNotFound) {
		rec = recording.New(c.Move, recording.KindRecorded, nil)
	} else if err != nil {
		return err
	}

	ts := float64(time.Now().UnixNano()) / float64(time.Second)
	if err := rec.AppendFrame(ts, c.Prefix, set); err != nil {
		return fmt.Errorf("append to %s: %w", c.Move, err)
	}
	if err := s.moves.Save(rec); err != nil {
		return err
	}

	s.logger.Info("sample appended", "move", c.Move, "samples", rec.Len())
	return nil
}
