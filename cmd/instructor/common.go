package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ayusman/instructor/internal/app"
	"github.com/ayusman/instructor/internal/config"
	"github.com/ayusman/instructor/internal/kv"
	"github.com/ayusman/instructor/internal/log"
	"github.com/ayusman/instructor/internal/recording"
	"github.com/ayusman/instructor/internal/telemetry"
)

const serviceName = "instructor"

// session bundles what every command needs.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	store    kv.Store
	moves    *recording.Store
	shutdown func(context.Context) error
}

// loadConfig reads the environment and applies global flag overrides.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if err := config.ParseEnv(&cfg); err != nil {
		return cfg, err
	}

	g := opts.Global
	if g.Store != "" {
		cfg.Store = g.Store
	}
	if g.RedisURL != "" {
		cfg.RedisURL = g.RedisURL
	}
	if g.SQLitePath != "" {
		cfg.SQLitePath = g.SQLitePath
	}
	if g.MovesDir != "" {
		cfg.MovesDir = g.MovesDir
	}
	if g.BridgesDir != "" {
		cfg.BridgesDir = g.BridgesDir
	}
	if g.Rate != 0 {
		cfg.RateHz = g.Rate
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.LogFormat = g.LogFormat
	}

	return cfg, nil
}

// open validates cfg, then connects the store and tracing.
func open(ctx context.Context, cfg config.Config) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.Init(cfg.LogLevel, cfg.LogFormat)

	shutdown, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	store, err := kv.Open(ctx, cfg.StoreOptions())
	if err != nil {
		shutdown(ctx)
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	return &session{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		moves:    recording.NewStore(cfg.Layout()),
		shutdown: shutdown,
	}, nil
}

// setup loads configuration and opens a session in one step.
func setup(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return open(ctx, cfg)
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("failed to close store", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.shutdown(ctx); err != nil {
		s.logger.Warn("failed to flush traces", "error", err)
	}
}

// newApp builds the orchestrator for this session.
func (s *session) newApp() (*app.App, error) {
	cfg, err := app.FromConfig(s.cfg, s.store, s.moves, s.logger)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
