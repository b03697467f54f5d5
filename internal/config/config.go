// Package config loads instructor's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ayusman/instructor/internal/geom"
	"github.com/ayusman/instructor/internal/kv"
	"github.com/ayusman/instructor/internal/mapper"
	"github.com/ayusman/instructor/internal/player"
	"github.com/ayusman/instructor/internal/recording"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "INSTRUCTOR_"

// Keys names the shared store entries.
type Keys struct {
	// DefineMove is reserved for the recorder and never touched here.
	DefineMove   string `env:"DEFINE_MOVE" envDefault:"define_move"`
	MoveList     string `env:"MOVE_LIST" envDefault:"move_list"`
	ExecuteFlag  string `env:"EXECUTE_FLAG" envDefault:"execute_flag"`
	MoveExecuted string `env:"MOVE_EXECUTED" envDefault:"move_executed"`
	DesiredPos   string `env:"DESIRED_POS" envDefault:"teleop::desired_pos"`
	// Lease enables single-runner locking when set.
	Lease string `env:"LEASE"`
}

// Config holds every tunable of the replay pipeline.
type Config struct {
	Store      string `env:"STORE" envDefault:"redis"`
	RedisURL   string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"instructor.db"`

	Keys     Keys          `envPrefix:"KEY_"`
	LeaseTTL time.Duration `env:"LEASE_TTL" envDefault:"5m"`

	RateHz float64 `env:"RATE_HZ" envDefault:"1000"`
	Prefix string  `env:"PREFIX"`
	Hand   string  `env:"HAND" envDefault:"right_hand"`

	MovesDir       string        `env:"MOVES_DIR" envDefault:"recordings"`
	BridgesDir     string        `env:"BRIDGES_DIR" envDefault:"recordings/bridges"`
	BridgeDuration time.Duration `env:"BRIDGE_DURATION" envDefault:"500ms"`
	PollInterval   time.Duration `env:"POLL_INTERVAL" envDefault:"10ms"`

	WorkspaceMin []float64 `env:"WORKSPACE_MIN" envDefault:"0.49,-0.5,0"`
	WorkspaceMax []float64 `env:"WORKSPACE_MAX" envDefault:"0.51,0.5,0.8"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// ParseEnv loads configuration from INSTRUCTOR_ environment variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error

	if _, err := player.IntervalFor(c.RateHz); err != nil {
		errs = append(errs, err)
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %v", c.PollInterval))
	}
	if c.BridgeDuration < 0 {
		errs = append(errs, fmt.Errorf("bridge duration must not be negative, got %v", c.BridgeDuration))
	}
	if c.Keys.Lease != "" && c.LeaseTTL <= 0 {
		errs = append(errs, fmt.Errorf("lease ttl must be positive, got %v", c.LeaseTTL))
	}
	if c.Hand == "" {
		errs = append(errs, errors.New("hand landmark must be set"))
	}

	for name, key := range map[string]string{
		"move list":     c.Keys.MoveList,
		"execute flag":  c.Keys.ExecuteFlag,
		"move executed": c.Keys.MoveExecuted,
		"desired pos":   c.Keys.DesiredPos,
	} {
		if key == "" {
			errs = append(errs, fmt.Errorf("%s key must be set", name))
		}
	}

	switch c.Store {
	case kv.BackendRedis, kv.BackendSQLite, kv.BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	if _, err := c.Workspace(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Workspace returns the configured clamp box.
func (c Config) Workspace() (mapper.Workspace, error) {
	lo, ok := geom.FromSlice(c.WorkspaceMin)
	if !ok {
		return mapper.Workspace{}, fmt.Errorf("workspace min needs 3 values, got %d", len(c.WorkspaceMin))
	}
	hi, ok := geom.FromSlice(c.WorkspaceMax)
	if !ok {
		return mapper.Workspace{}, fmt.Errorf("workspace max needs 3 values, got %d", len(c.WorkspaceMax))
	}
	ws := mapper.Workspace{Min: lo, Max: hi}
	if err := ws.Validate(); err != nil {
		return mapper.Workspace{}, err
	}
	return ws, nil
}

// Layout returns the on-disk layout for moves and bridges.
func (c Config) Layout() recording.Layout {
	layout := recording.DefaultLayout()
	layout.MovesDir = c.MovesDir
	layout.BridgesDir = c.BridgesDir
	return layout
}

// StoreOptions returns the shared store connection settings.
func (c Config) StoreOptions() kv.Options {
	return kv.Options{
		Backend:    c.Store,
		RedisURL:   c.RedisURL,
		SQLitePath: c.SQLitePath,
	}
}
