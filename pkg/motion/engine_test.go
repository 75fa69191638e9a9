package motion

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/teslashibe/go-embody/pkg/daemon"
	"github.com/teslashibe/go-embody/pkg/pose"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockDispatcher records targets and can fail on demand.
type mockDispatcher struct {
	mu      sync.Mutex
	targets []daemon.Target
	fail    bool
}

func (m *mockDispatcher) SetTarget(_ context.Context, t daemon.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("daemon unreachable")
	}
	m.targets = append(m.targets, t)
	return nil
}

func (m *mockDispatcher) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

func (m *mockDispatcher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.targets)
}

func (m *mockDispatcher) last() daemon.Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targets[len(m.targets)-1]
}

// stubSource returns a settable fixed pose.
type stubSource struct {
	kind Kind
	mu   sync.Mutex
	p    pose.Pose
}

func (s *stubSource) Kind() Kind { return s.kind }

func (s *stubSource) Sample(time.Time) pose.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p
}

func (s *stubSource) set(p pose.Pose) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}

// passthroughConfig disables smoothing lag, rate limiting and dead
// zones so tests observe combination and clamping directly.
func passthroughConfig() Config {
	cfg := DefaultConfig()
	cfg.SmoothingFactor = 1
	cfg.MaxStepRad = 1000
	cfg.HeadDeadZone = 0
	cfg.LiftDeadZone = 0
	cfg.AntennaDeadZone = 0
	cfg.BodyDeadZone = 0
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, d daemon.Dispatcher) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, d, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// runTicks drives the engine synchronously, bypassing the wall-clock
// ticker.
func runTicks(e *Engine, n int) {
	now := time.Now()
	for i := 0; i < n; i++ {
		e.tick(context.Background(), now)
		now = now.Add(time.Second / time.Duration(e.cfg.TickRate))
	}
}

func TestDispatchCadence(t *testing.T) {
	cfg := passthroughConfig()
	cfg.TickRate = 100
	cfg.CommandRate = 20

	d := &mockDispatcher{}
	e := newTestEngine(t, cfg, d)
	src := &stubSource{kind: KindCommand}
	src.set(pose.HeadOffset(0, 0, 0.3))
	e.AddSource(src)

	runTicks(e, 25)

	if got := d.count(); got != 5 {
		t.Errorf("dispatches = %d over 25 ticks at 100/20Hz, want exactly 5", got)
	}
	if stats := e.Stats(); stats.Ticks != 25 || stats.Dispatches != 5 {
		t.Errorf("stats = %+v, want 25 ticks, 5 dispatches", stats)
	}
}

func TestClampBoundaryProperty(t *testing.T) {
	cfg := passthroughConfig()
	cfg.TickRate = 20
	cfg.CommandRate = 20 // dispatch every tick

	d := &mockDispatcher{}
	e := newTestEngine(t, cfg, d)
	src := &stubSource{kind: KindCommand}
	e.AddSource(src)

	rng := rand.New(rand.NewSource(7))
	limits := cfg.Limits
	for i := 0; i < 200; i++ {
		yaw := (rng.Float64()*2 - 1) * 3 * pose.MaxHeadYaw
		pitch := (rng.Float64()*2 - 1) * 3 * pose.MaxHeadPitch
		roll := (rng.Float64()*2 - 1) * 3 * pose.MaxHeadRoll
		src.set(pose.HeadOffset(roll, pitch, yaw))

		runTicks(e, 1)
		got := d.last()
		if got.Head == nil {
			t.Fatal("dispatched target missing head group")
		}

		checkAxis := func(name string, in, out float64, r pose.Range) {
			t.Helper()
			if in > r.Max && out != r.Max {
				t.Errorf("iteration %d: %s = %v for input %v, want boundary %v", i, name, out, in, r.Max)
			}
			if in < r.Min && out != r.Min {
				t.Errorf("iteration %d: %s = %v for input %v, want boundary %v", i, name, out, in, r.Min)
			}
			if !r.Contains(out) {
				t.Errorf("iteration %d: %s = %v outside [%v, %v]", i, name, out, r.Min, r.Max)
			}
		}
		checkAxis("yaw", yaw, got.Head.Yaw, limits.Range(pose.HeadYaw))
		checkAxis("pitch", pitch, got.Head.Pitch, limits.Range(pose.HeadPitch))
		checkAxis("roll", roll, got.Head.Roll, limits.Range(pose.HeadRoll))
	}
}

func TestOverrideBeatsAdditive(t *testing.T) {
	cfg := passthroughConfig()
	cfg.TickRate = 20
	cfg.CommandRate = 20

	d := &mockDispatcher{}
	e := newTestEngine(t, cfg, d)

	ambient := &stubSource{kind: KindBreathing}
	ambient.set(pose.HeadOffset(0, 0.1, 0.2))
	command := &stubSource{kind: KindCommand}
	command.set(pose.Pose{}.With(pose.HeadYaw, -0.1))
	e.AddSource(ambient)
	e.AddSource(command)

	runTicks(e, 1)
	got := d.last()
	if got.Head == nil {
		t.Fatal("dispatched target missing head group")
	}
	if !floatEquals(got.Head.Yaw, -0.1) {
		t.Errorf("yaw = %v, want command override -0.1", got.Head.Yaw)
	}
	if !floatEquals(got.Head.Pitch, 0.1) {
		t.Errorf("pitch = %v, want additive 0.1 on unclaimed axis", got.Head.Pitch)
	}
}

func TestLaterCommandSourceWins(t *testing.T) {
	cfg := passthroughConfig()
	cfg.TickRate = 20
	cfg.CommandRate = 20

	d := &mockDispatcher{}
	e := newTestEngine(t, cfg, d)

	first := &stubSource{kind: KindCommand}
	first.set(pose.Antennas(0.5, -0.5))
	second := &stubSource{kind: KindCommand}
	second.set(pose.Antennas(1.0, -1.0))
	e.AddSource(first)
	e.AddSource(second)

	runTicks(e, 1)
	got := d.last()
	if got.Antennas == nil {
		t.Fatal("dispatched target missing antennas group")
	}
	if !floatEquals(got.Antennas[0], 1.0) || !floatEquals(got.Antennas[1], -1.0) {
		t.Errorf("antennas = %v, want later command source values", *got.Antennas)
	}
}

func TestAdditiveSourcesSum(t *testing.T) {
	cfg := passthroughConfig()
	cfg.TickRate = 20
	cfg.CommandRate = 20

	d := &mockDispatcher{}
	e := newTestEngine(t, cfg, d)

	a := &stubSource{kind: KindIdleLook}
	a.set(pose.Pose{}.With(pose.HeadYaw, 0.1))
	b := &stubSource{kind: KindBreathing}
	b.set(pose.Pose{}.With(pose.HeadYaw, 0.05))
	e.AddSource(a)
	e.AddSource(b)

	runTicks(e, 1)
	got := d.last()
	if got.Head == nil {
		t.Fatal("dispatched target missing head group")
	}
	if !floatEquals(got.Head.Yaw, 0.15) {
		t.Errorf("yaw = %v, want summed 0.15", got.Head.Yaw)
	}
}

func TestRateLimitCapsStep(t *testing.T) {
	cfg := passthroughConfig()
	cfg.TickRate = 20
	cfg.CommandRate = 20
	cfg.MaxStepRad = 0.05

	d := &mockDispatcher{}
	e := newTestEngine(t, cfg, d)
	src := &stubSource{kind: KindCommand}
	src.set(pose.Pose{}.With(pose.HeadYaw, 0.5))
	e.AddSource(src)

	runTicks(e, 4)

	d.mu.Lock()
	defer d.mu.Unlock()
	prev := 0.0
	for i, tgt := range d.targets {
		if tgt.Head == nil {
			t.Fatalf("dispatch %d missing head group", i)
		}
		step := math.Abs(tgt.Head.Yaw - prev)
		if step > cfg.MaxStepRad+1e-9 {
			t.Errorf("dispatch %d stepped %v, max %v", i, step, cfg.MaxStepRad)
		}
		prev = tgt.Head.Yaw
	}
	if !floatEquals(prev, 0.2) {
		t.Errorf("yaw after 4 capped steps = %v, want 0.2", prev)
	}
}

func TestDeadZoneSkipsUnchangedPose(t *testing.T) {
	// Default dead zones stay on; only smoothing lag and rate
	// limiting are disabled.
	cfg := DefaultConfig()
	cfg.SmoothingFactor = 1
	cfg.MaxStepRad = 1000
	cfg.TickRate = 20
	cfg.CommandRate = 20

	d := &mockDispatcher{}
	e := newTestEngine(t, cfg, d)
	src := &stubSource{kind: KindCommand}
	src.set(pose.Pose{}.With(pose.HeadYaw, 0.3))
	e.AddSource(src)

	runTicks(e, 5)

	if got := d.count(); got != 1 {
		t.Errorf("dispatches = %d for a static pose, want 1", got)
	}
	if stats := e.Stats(); stats.Skipped != 4 {
		t.Errorf("skipped = %d, want 4", stats.Skipped)
	}
}

func TestPausesAfterConsecutiveFailures(t *testing.T) {
	cfg := passthroughConfig()
	cfg.TickRate = 20
	cfg.CommandRate = 20
	cfg.PauseThreshold = 3

	d := &mockDispatcher{}
	d.setFail(true)
	e := newTestEngine(t, cfg, d)
	src := &stubSource{kind: KindCommand}
	src.set(pose.Pose{}.With(pose.HeadYaw, 0.3))
	e.AddSource(src)

	var pauseEvents []bool
	var pauseMu sync.Mutex
	e.OnPauseChange(func(paused bool) {
		pauseMu.Lock()
		pauseEvents = append(pauseEvents, paused)
		pauseMu.Unlock()
	})

	runTicks(e, 3)
	if !e.Paused() {
		t.Fatal("engine not paused after threshold failures")
	}

	// Paused ticks never reach the dispatcher but keep blending.
	runTicks(e, 5)
	stats := e.Stats()
	if stats.Dispatches != 3 {
		t.Errorf("dispatch attempts = %d, want 3 before pause", stats.Dispatches)
	}
	if stats.Ticks != 8 {
		t.Errorf("ticks = %d, want loop to keep running while paused", stats.Ticks)
	}

	d.setFail(false)
	runTicks(e, 2)
	if got := d.count(); got != 0 {
		t.Errorf("dispatcher reached %d times while paused, want 0", got)
	}

	e.NotifyDaemonHealthy()
	if e.Paused() {
		t.Fatal("engine still paused after health signal")
	}
	runTicks(e, 1)
	if got := d.count(); got != 1 {
		t.Errorf("dispatches after resume = %d, want 1", got)
	}

	pauseMu.Lock()
	defer pauseMu.Unlock()
	wantEvents := []bool{true, false}
	if len(pauseEvents) != 2 || pauseEvents[0] != wantEvents[0] || pauseEvents[1] != wantEvents[1] {
		t.Errorf("pause events = %v, want %v", pauseEvents, wantEvents)
	}
}

func TestRunStopsWithinTick(t *testing.T) {
	cfg := DefaultConfig()
	d := &mockDispatcher{}
	e := newTestEngine(t, cfg, d)
	e.AddSource(NewBreathing(cfg.Breathing))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second / time.Duration(cfg.TickRate)):
		t.Fatal("Run did not stop within a tick period")
	}
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick rate", func(c *Config) { c.TickRate = 0 }},
		{"command above tick", func(c *Config) { c.CommandRate = c.TickRate * 2 }},
		{"non-dividing command rate", func(c *Config) { c.TickRate = 100; c.CommandRate = 30 }},
		{"smoothing above one", func(c *Config) { c.SmoothingFactor = 1.5 }},
		{"zero pause threshold", func(c *Config) { c.PauseThreshold = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := NewEngine(cfg, &mockDispatcher{}, nil); err == nil {
				t.Error("NewEngine accepted invalid config")
			}
		})
	}
}

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
