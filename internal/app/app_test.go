package app

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/instructor/internal/config"
	"github.com/ayusman/instructor/internal/geom"
	"github.com/ayusman/instructor/internal/kv"
	"github.com/ayusman/instructor/internal/log"
	"github.com/ayusman/instructor/internal/mapper"
	"github.com/ayusman/instructor/internal/recording"
	"github.com/ayusman/instructor/testdata"
)

const epsilon = 1e-9

var testKeys = config.Keys{
	DefineMove:   "define_move",
	MoveList:     "move_list",
	ExecuteFlag:  "execute_flag",
	MoveExecuted: "move_executed",
	DesiredPos:   "teleop::desired_pos",
}

type harness struct {
	app   *App
	cfg   Config
	store *kv.Memory
	moves *recording.Store

	mu     sync.Mutex
	events []Progress
}

func newHarness(t *testing.T, modify func(c *Config)) *harness {
	t.Helper()
	dir := t.TempDir()
	layout := recording.Layout{
		MovesDir:       filepath.Join(dir, "moves"),
		RecordedSuffix: testdata.RecordedSuffix,
		BridgesDir:     filepath.Join(dir, "bridges"),
	}
	if err := testdata.WriteMoves(layout.MovesDir); err != nil {
		t.Fatal(err)
	}

	h := &harness{
		store: kv.NewMemory(),
		moves: recording.NewStore(layout),
	}
	cfg := Config{
		Store:          h.store,
		Moves:          h.moves,
		Keys:           testKeys,
		LeaseTTL:       time.Minute,
		RateHz:         5000,
		Hand:           "right_hand",
		Workspace:      mapper.DefaultWorkspace(),
		BridgeDuration: 2 * time.Millisecond,
		PollInterval:   time.Millisecond,
		Logger:         log.Discard(),
	}
	if modify != nil {
		modify(&cfg)
	}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.cfg = cfg
	a.OnProgress(func(p Progress) {
		h.mu.Lock()
		h.events = append(h.events, p)
		h.mu.Unlock()
	})
	h.app = a
	return h
}

func (h *harness) trigger(t *testing.T, moves ...string) {
	t.Helper()
	ctx := context.Background()
	if len(moves) > 0 {
		if err := h.store.RPush(ctx, testKeys.MoveList, moves...); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.store.Set(ctx, testKeys.ExecuteFlag, FlagTriggered, 0); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) executed(t *testing.T) []string {
	t.Helper()
	got, err := h.store.LRange(context.Background(), testKeys.MoveExecuted, 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func (h *harness) flag(t *testing.T) string {
	t.Helper()
	v, err := h.store.Get(context.Background(), testKeys.ExecuteFlag)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func (h *harness) count(kind EventKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestRunCycle_PlaysEveryMove(t *testing.T) {
	h := newHarness(t, nil)
	h.trigger(t, testdata.Wave, testdata.Reach, testdata.Point)

	if err := h.app.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if got := strings.Join(h.executed(t), ","); got != "wave,reach,point" {
		t.Errorf("executed = %q, want wave,reach,point", got)
	}
	if h.flag(t) != FlagIdle {
		t.Errorf("flag = %q, want %q", h.flag(t), FlagIdle)
	}
	if h.app.State() != StateIdle {
		t.Errorf("State() = %v after cycle", h.app.State())
	}

	// 5 + 10 + 5 + 10 + 3: moves plus two 2ms bridges at 5kHz
	history := h.store.History(testKeys.DesiredPos)
	if len(history) != 33 {
		t.Errorf("published %d targets, want 33", len(history))
	}
	ws := mapper.DefaultWorkspace()
	for i, v := range history {
		p, err := geom.ParseVec(v)
		if err != nil {
			t.Fatalf("target %d %q: %v", i, v, err)
		}
		if !ws.Contains(p) {
			t.Errorf("target %d %v outside workspace", i, p)
		}
	}

	for _, id := range []string{"wave_to_reach", "reach_to_point"} {
		if _, err := h.moves.Load(id, recording.KindBridge); err != nil {
			t.Errorf("bridge %s not written: %v", id, err)
		}
	}

	if h.count(EventMoveFinished) != 3 || h.count(EventBridgePlayed) != 2 || h.count(EventCycleFinished) != 1 {
		t.Errorf("unexpected events: %+v", h.events)
	}
}

func TestRunCycle_MissingMoveIsNoOp(t *testing.T) {
	h := newHarness(t, nil)
	h.trigger(t, testdata.Wave, "ghost", testdata.Reach)

	if err := h.app.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if got := strings.Join(h.executed(t), ","); got != "wave,ghost,reach" {
		t.Errorf("executed = %q, want wave,ghost,reach", got)
	}
	if h.flag(t) != FlagIdle {
		t.Errorf("flag = %q, want %q", h.flag(t), FlagIdle)
	}
	// Only the two real moves publish; both bridges touch the ghost
	if n := len(h.store.History(testKeys.DesiredPos)); n != 10 {
		t.Errorf("published %d targets, want 10", n)
	}
}

func TestRunCycle_MalformedMoveSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.trigger(t, testdata.Wave, testdata.Broken, testdata.Reach)

	if err := h.app.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}

	if got := strings.Join(h.executed(t), ","); got != "wave,reach" {
		t.Errorf("executed = %q, want wave,reach", got)
	}
	if h.count(EventMoveSkipped) != 1 {
		t.Errorf("skipped events = %d, want 1", h.count(EventMoveSkipped))
	}
	if h.flag(t) != FlagIdle {
		t.Errorf("flag = %q, want %q", h.flag(t), FlagIdle)
	}
}

func TestRunCycle_DegenerateTorsoSkipped(t *testing.T) {
	h := newHarness(t, nil)

	flat := recording.New("flat", recording.KindRecorded, []recording.Column{
		{Entity: "mediapipe", Field: "right_hand"},
		{Entity: "mediapipe", Field: shouldersField},
		{Entity: "mediapipe", Field: hipsField},
	})
	flat.Samples = []recording.Sample{
		{Timestamp: 0, Values: [][]float64{{0.3, 0.3, -0.4}, {0.5, 0.5, 0}, {0.5, 0.5, 0}}},
	}
	if err := h.moves.Save(flat); err != nil {
		t.Fatal(err)
	}

	h.trigger(t, "flat", testdata.Wave)
	if err := h.app.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if got := strings.Join(h.executed(t), ","); got != "wave" {
		t.Errorf("executed = %q, want wave", got)
	}
}

func TestRunCycle_StoreFailureKeepsFlag(t *testing.T) {
	h := newHarness(t, nil)
	h.trigger(t, testdata.Wave, testdata.Reach)
	h.store.FailKey(testKeys.MoveExecuted, errors.New("connection reset"))

	err := h.app.RunCycle(context.Background())
	if !errors.Is(err, kv.ErrUnavailable) {
		t.Fatalf("RunCycle() error = %v, want ErrUnavailable", err)
	}
	if h.flag(t) != FlagTriggered {
		t.Errorf("flag = %q, want it left at %q", h.flag(t), FlagTriggered)
	}
}

func TestRunCycle_EmptyList(t *testing.T) {
	h := newHarness(t, nil)
	h.trigger(t)

	if err := h.app.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if h.flag(t) != FlagIdle {
		t.Errorf("flag = %q, want %q", h.flag(t), FlagIdle)
	}
	if len(h.store.History(testKeys.DesiredPos)) != 0 {
		t.Error("empty cycle published targets")
	}
}

func TestRunCycle_Cancel(t *testing.T) {
	// 10 Hz makes one fixture move last 400ms
	h := newHarness(t, func(c *Config) { c.RateHz = 10 })
	h.trigger(t, testdata.Wave, testdata.Reach)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := h.app.RunCycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunCycle() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 300*time.Millisecond {
		t.Errorf("cancellation took %v", time.Since(start))
	}
	if len(h.executed(t)) != 0 {
		t.Errorf("executed = %v, want none", h.executed(t))
	}
	if h.flag(t) != FlagTriggered {
		t.Errorf("flag = %q, want %q", h.flag(t), FlagTriggered)
	}
}

func TestRunCycle_Lease(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Keys.Lease = "instructor::lease" })
	ctx := context.Background()
	h.trigger(t, testdata.Wave)

	t.Run("held by another runner", func(t *testing.T) {
		if ok, _ := h.store.SetNX(ctx, "instructor::lease", "other", time.Minute); !ok {
			t.Fatal("could not plant lease")
		}
		err := h.app.RunCycle(ctx)
		if !errors.Is(err, ErrLeaseHeld) {
			t.Fatalf("RunCycle() error = %v, want ErrLeaseHeld", err)
		}
		if h.flag(t) != FlagTriggered || len(h.executed(t)) != 0 {
			t.Error("cycle ran without the lease")
		}
		h.store.Del(ctx, "instructor::lease")
	})

	t.Run("acquired and released", func(t *testing.T) {
		if err := h.app.RunCycle(ctx); err != nil {
			t.Fatalf("RunCycle() error = %v", err)
		}
		if h.flag(t) != FlagIdle {
			t.Errorf("flag = %q, want %q", h.flag(t), FlagIdle)
		}
		if _, err := h.store.Get(ctx, "instructor::lease"); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("lease not released: %v", err)
		}
	})
}

func TestRunCycle_LeaseSecondRunnerAfterFinish(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Keys.Lease = "instructor::lease" })
	ctx := context.Background()

	second, err := New(h.cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	h.trigger(t, testdata.Wave, testdata.Reach)

	// The second runner sees the trigger while the first is still playing
	triggered, err := second.Triggered(ctx)
	if err != nil || !triggered {
		t.Fatalf("Triggered() = %v, %v; want true", triggered, err)
	}

	if err := h.app.RunCycle(ctx); err != nil {
		t.Fatalf("first RunCycle() error = %v", err)
	}
	played := len(h.store.History(testKeys.DesiredPos))

	// The lease is free again, but the trigger was already served
	if err := second.RunCycle(ctx); err != nil {
		t.Fatalf("second RunCycle() error = %v", err)
	}

	if got := strings.Join(h.executed(t), ","); got != "wave,reach" {
		t.Errorf("executed = %q, want wave,reach once", got)
	}
	if n := len(h.store.History(testKeys.DesiredPos)); n != played {
		t.Errorf("second runner published %d more targets", n-played)
	}
	if _, err := h.store.Get(ctx, "instructor::lease"); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("lease not released by second runner: %v", err)
	}
}

func TestRunCycle_FlagClearedBeforeStart(t *testing.T) {
	h := newHarness(t, nil)
	h.trigger(t, testdata.Wave)
	if err := h.store.Set(context.Background(), testKeys.ExecuteFlag, FlagIdle, 0); err != nil {
		t.Fatal(err)
	}

	if err := h.app.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if len(h.executed(t)) != 0 || h.count(EventCycleStarted) != 0 {
		t.Errorf("cycle ran with the flag cleared: executed %v", h.executed(t))
	}
}

func TestRun_PollsFlag(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.app.Run(ctx) }()

	// Nothing happens while the flag is missing
	time.Sleep(20 * time.Millisecond)
	if len(h.store.History(testKeys.DesiredPos)) != 0 {
		t.Fatal("played without a trigger")
	}

	h.trigger(t, testdata.Wave, testdata.Reach)

	deadline := time.Now().Add(2 * time.Second)
	for h.flag(t) != FlagIdle {
		if time.Now().After(deadline) {
			t.Fatal("cycle did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if got := strings.Join(h.executed(t), ","); got != "wave,reach" {
		t.Errorf("executed = %q", got)
	}
}

func TestRun_StoreUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	h.store.FailKey(testKeys.ExecuteFlag, errors.New("connection refused"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := h.app.Run(ctx); !errors.Is(err, kv.ErrUnavailable) {
		t.Errorf("Run() error = %v, want ErrUnavailable", err)
	}
}

func TestTargets(t *testing.T) {
	h := newHarness(t, nil)

	t.Run("hand only recording is rotated and clamped", func(t *testing.T) {
		rec, err := h.moves.Load(testdata.Point, recording.KindRecorded)
		if err != nil {
			t.Fatal(err)
		}
		targets, err := h.app.Targets(rec)
		if err != nil {
			t.Fatal(err)
		}
		// (0.2, 0.4, -0.3) rotates to (-0.3, 0.2, 0.4); x clamps to 0.49
		if want := geom.V(0.49, 0.2, 0.4); targets[0].Dist(want) > epsilon {
			t.Errorf("targets[0] = %v, want %v", targets[0], want)
		}
	})

	t.Run("wrong producer prefix", func(t *testing.T) {
		other := newHarness(t, func(c *Config) { c.Prefix = "openpose" })
		rec, _ := other.moves.Load(testdata.Wave, recording.KindRecorded)
		if _, err := other.app.Targets(rec); !errors.Is(err, recording.ErrMalformed) {
			t.Errorf("Targets() error = %v, want ErrMalformed", err)
		}
	})
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without stores")
	}

	store := kv.NewMemory()
	moves := recording.NewStore(recording.DefaultLayout())

	_, err := New(Config{Store: store, Moves: moves, Keys: config.Keys{Lease: "l", DesiredPos: "p"}})
	if err == nil {
		t.Error("expected error for lease without ttl")
	}
}
