package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

// GlobalOptions override the INSTRUCTOR_ environment for every command.
type GlobalOptions struct {
	Store      string  `long:"store" choice:"redis" choice:"sqlite" choice:"memory" description:"Shared store backend"`
	RedisURL   string  `long:"redis-url" description:"Redis URL, e.g. redis://localhost:6379/0"`
	SQLitePath string  `long:"sqlite-path" description:"SQLite database file for the sqlite backend"`
	MovesDir   string  `long:"moves-dir" description:"Directory holding recorded moves"`
	BridgesDir string  `long:"bridges-dir" description:"Directory for generated bridges"`
	Rate       float64 `long:"rate" description:"Playback rate in Hz"`
	LogLevel   string  `long:"log-level" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	LogFormat  string  `long:"log-format" choice:"text" choice:"json" description:"Log format"`
}

type Options struct {
	Global GlobalOptions `group:"Global Options"`

	Replay  ReplayCommand  `command:"replay" alias:"run" description:"Wait for the execute flag and replay queued moves"`
	Play    PlayCommand    `command:"play" description:"Map and play a single recorded move or bridge"`
	Bridge  BridgeCommand  `command:"bridge" description:"Regenerate the bridge between two moves"`
	Trigger TriggerCommand `command:"trigger" description:"Queue moves and set the execute flag"`
	Detect  DetectCommand  `command:"detect" description:"Extract landmarks from an image"`
	Monitor MonitorCommand `command:"monitor" description:"Chart the published target in the terminal"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "instructor - replay recorded human moves on a teleoperated robot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
