package config

import (
	"strings"
	"testing"
	"time"

	"github.com/ayusman/instructor/internal/geom"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RateHz != 1000 {
		t.Errorf("RateHz = %v, want 1000", cfg.RateHz)
	}
	if cfg.PollInterval != 10*time.Millisecond {
		t.Errorf("PollInterval = %v, want 10ms", cfg.PollInterval)
	}
	if cfg.Keys.DesiredPos != "teleop::desired_pos" || cfg.Keys.MoveList != "move_list" {
		t.Errorf("unexpected keys %+v", cfg.Keys)
	}
	if cfg.Keys.Lease != "" {
		t.Errorf("lease should be disabled by default, got %q", cfg.Keys.Lease)
	}
	if cfg.Hand != "right_hand" || cfg.Prefix != "" {
		t.Errorf("Hand/Prefix = %q/%q", cfg.Hand, cfg.Prefix)
	}

	ws, err := cfg.Workspace()
	if err != nil {
		t.Fatalf("Workspace() error = %v", err)
	}
	if ws.Min != geom.V(0.49, -0.5, 0) || ws.Max != geom.V(0.51, 0.5, 0.8) {
		t.Errorf("Workspace() = %+v", ws)
	}

	layout := cfg.Layout()
	if layout.MovesDir != "recordings" || layout.RecordedSuffix != "_interpolated.txt" {
		t.Errorf("Layout() = %+v", layout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("INSTRUCTOR_RATE_HZ", "250")
	t.Setenv("INSTRUCTOR_KEY_MOVE_LIST", "queue")
	t.Setenv("INSTRUCTOR_KEY_LEASE", "instructor::lease")
	t.Setenv("INSTRUCTOR_STORE", "sqlite")
	t.Setenv("INSTRUCTOR_WORKSPACE_MIN", "0.4,-0.3,0.1")
	t.Setenv("INSTRUCTOR_BRIDGE_DURATION", "1s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RateHz != 250 {
		t.Errorf("RateHz = %v", cfg.RateHz)
	}
	if cfg.Keys.MoveList != "queue" || cfg.Keys.Lease != "instructor::lease" {
		t.Errorf("Keys = %+v", cfg.Keys)
	}
	if cfg.StoreOptions().Backend != "sqlite" {
		t.Errorf("StoreOptions() = %+v", cfg.StoreOptions())
	}
	if cfg.BridgeDuration != time.Second {
		t.Errorf("BridgeDuration = %v", cfg.BridgeDuration)
	}
	ws, _ := cfg.Workspace()
	if ws.Min != geom.V(0.4, -0.3, 0.1) {
		t.Errorf("Workspace().Min = %v", ws.Min)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("INSTRUCTOR_RATE_HZ", "fast")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"zero rate", func(c *Config) { c.RateHz = 0 }},
		{"rate with zero tick", func(c *Config) { c.RateHz = 2e9 }},
		{"negative poll", func(c *Config) { c.PollInterval = -time.Millisecond }},
		{"empty flag key", func(c *Config) { c.Keys.ExecuteFlag = "" }},
		{"lease without ttl", func(c *Config) { c.Keys.Lease = "l"; c.LeaseTTL = 0 }},
		{"unknown store", func(c *Config) { c.Store = "etcd" }},
		{"short workspace", func(c *Config) { c.WorkspaceMax = []float64{1, 2} }},
		{"inverted workspace", func(c *Config) { c.WorkspaceMin = []float64{1, 1, 1} }},
		{"no hand", func(c *Config) { c.Hand = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			c.WorkspaceMin = append([]float64(nil), base.WorkspaceMin...)
			c.WorkspaceMax = append([]float64(nil), base.WorkspaceMax...)
			tt.modify(&c)
			if err := c.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
