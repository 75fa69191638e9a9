package embody

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-embody/pkg/attention"
	"github.com/teslashibe/go-embody/pkg/audiodev"
	"github.com/teslashibe/go-embody/pkg/daemon"
	"github.com/teslashibe/go-embody/pkg/pose"
	"github.com/teslashibe/go-embody/pkg/vad"
)

// fakeDaemon records dispatched pose targets and reports running.
type fakeDaemon struct {
	mu      sync.Mutex
	targets []daemon.Target
	srv     *httptest.Server
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	fd := &fakeDaemon{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/move/set_target", func(w http.ResponseWriter, r *http.Request) {
		var tgt daemon.Target
		if err := json.NewDecoder(r.Body).Decode(&tgt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fd.mu.Lock()
		fd.targets = append(fd.targets, tgt)
		fd.mu.Unlock()
	})
	mux.HandleFunc("/api/daemon/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"state": daemon.StateRunning})
	})
	fd.srv = httptest.NewServer(mux)
	t.Cleanup(fd.srv.Close)
	return fd
}

func (f *fakeDaemon) lastBodyYaw() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.targets) - 1; i >= 0; i-- {
		if f.targets[i].BodyYaw != nil {
			return *f.targets[i].BodyYaw, true
		}
	}
	return 0, false
}

// testConfig disables everything that would touch real hardware or the
// network beyond the fake daemon: mock audio, no wake models (bypass),
// no camera, no status server.
func testConfig(t *testing.T, daemonURL string) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DaemonURL = daemonURL
	cfg.Audio.Backend = audiodev.BackendMock
	cfg.Audio.InputWarmupFrames = 0
	cfg.Wake.ModelDir = t.TempDir()
	cfg.Status.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, cfg Config, opts ...Option) *App {
	t.Helper()
	app, err := New(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return app
}

// runApp starts Run in the background and fails the test if it does
// not come back clean on cancel.
func runApp(t *testing.T, app *App) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v after cancel", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not stop within 5s of cancel")
		}
	})
}

func startApp(t *testing.T, cfg Config, opts ...Option) *App {
	t.Helper()
	app := newTestApp(t, cfg, opts...)
	runApp(t, app)
	return app
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// loudSamples builds DC-free samples well above the energy threshold.
func loudSamples(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = 12000
		} else {
			out[i] = -12000
		}
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty daemon url", func(c *Config) { c.DaemonURL = "" }, true},
		{"bad probe interval", func(c *Config) { c.DaemonProbeInterval = 0 }, true},
		{"bad audio", func(c *Config) { c.Audio.SampleRate = 0 }, true},
		{"bad motion", func(c *Config) { c.Motion.TickRate = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DaemonURL = ""
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("New accepted a config without a daemon URL")
	}
}

func TestTriggerListenEngages(t *testing.T) {
	fd := newFakeDaemon(t)
	cfg := testConfig(t, fd.srv.URL)
	app := startApp(t, cfg)

	rec := &changeRecorder{}
	Callbacks{OnStateChange: rec.record}.Apply(app)

	if got := app.State(); got != attention.Passive {
		t.Fatalf("initial state = %v, want passive", got)
	}

	if got := app.TriggerListen(); got != attention.Engaged {
		t.Fatalf("TriggerListen = %v, want engaged", got)
	}

	changes := rec.all()
	if len(changes) == 0 {
		t.Fatal("no state change callback after TriggerListen")
	}
	last := changes[len(changes)-1]
	if last.To != attention.Engaged {
		t.Fatalf("last change To = %v, want engaged", last.To)
	}
}

func TestSnapshotReportsSubsystems(t *testing.T) {
	fd := newFakeDaemon(t)
	cfg := testConfig(t, fd.srv.URL)
	app := startApp(t, cfg)

	// Recording flips on when Run gates the segmenter for bypass mode.
	waitUntil(t, 2*time.Second, func() bool {
		snap := app.Snapshot()
		return snap.AudioHealthy && snap.Recording
	}, "audio pipeline never came up on the mock backend")

	snap := app.Snapshot()
	if snap.AttentionState != "passive" {
		t.Errorf("attention_state = %q, want passive", snap.AttentionState)
	}
	if snap.WakeMode != "bypass" {
		t.Errorf("wake_mode = %q, want bypass without models", snap.WakeMode)
	}
	if !snap.VADEnabled {
		t.Error("vad_enabled = false, want true with the energy classifier")
	}
	if snap.DispatchPaused {
		t.Error("dispatch_paused = true against a healthy daemon")
	}
	if snap.CameraDegraded {
		t.Error("camera_degraded = true with perception disabled")
	}
	if snap.UptimeSeconds <= 0 {
		t.Error("uptime_seconds not populated")
	}

	app.TriggerListen()
	if got := app.Snapshot().AttentionState; got != "engaged" {
		t.Errorf("attention_state after TriggerListen = %q, want engaged", got)
	}
}

func TestSpeechEngagesAndSegmentsInBypass(t *testing.T) {
	fd := newFakeDaemon(t)
	cfg := testConfig(t, fd.srv.URL)
	cfg.VAD.MinSpeechDuration = 40 * time.Millisecond
	cfg.VAD.SilenceDuration = 60 * time.Millisecond

	// Half a second of speech, then the generator falls back to
	// silence. The shrunk interval runs it far faster than real time.
	src := audiodev.NewMockSource(cfg.Audio, nil,
		audiodev.WithScript(loudSamples(cfg.Audio.SampleRate/2)),
		audiodev.WithInterval(time.Millisecond),
	)
	sink := audiodev.NewMockSink(cfg.Audio, nil)
	opener := audiodev.WithOpener(func(audiodev.Config) (audiodev.Source, audiodev.Sink, error) {
		return src, sink, nil
	})

	app := newTestApp(t, cfg, WithAudioOptions(opener))

	var segMu sync.Mutex
	var segments []vad.Segment
	app.OnSpeechSegment(func(seg vad.Segment) {
		segMu.Lock()
		segments = append(segments, seg)
		segMu.Unlock()
	})

	// Registered before Run so the scripted speech cannot outrun the
	// hook.
	runApp(t, app)

	waitUntil(t, 3*time.Second, func() bool {
		return app.State() == attention.Engaged
	}, "speech never engaged attention in bypass mode")

	waitUntil(t, 3*time.Second, func() bool {
		segMu.Lock()
		defer segMu.Unlock()
		return len(segments) > 0
	}, "no speech segment finalized")

	segMu.Lock()
	seg := segments[0]
	segMu.Unlock()
	if seg.Duration < cfg.VAD.MinSpeechDuration {
		t.Errorf("segment duration = %v, want at least %v", seg.Duration, cfg.VAD.MinSpeechDuration)
	}
	if len(seg.Frames) == 0 {
		t.Error("segment carries no frames")
	}
	if got := app.Snapshot().ActivePersona; got != "" {
		t.Errorf("active_persona = %q, want empty for bypass engagement", got)
	}
}

func TestSubmitPoseReachesDaemon(t *testing.T) {
	fd := newFakeDaemon(t)
	cfg := testConfig(t, fd.srv.URL)
	app := startApp(t, cfg)

	app.SubmitPose(pose.Body(0.4), 5*time.Second)

	// Smoothing and the per-dispatch step cap walk the yaw out
	// gradually; any meaningful dispatch proves the path.
	waitUntil(t, 3*time.Second, func() bool {
		yaw, ok := fd.lastBodyYaw()
		return ok && yaw > 0.05
	}, "commanded body yaw never reached the daemon")

	app.ClearPose()
}

// changeRecorder collects state changes under a mutex.
type changeRecorder struct {
	mu      sync.Mutex
	changes []attention.Change
}

func (r *changeRecorder) record(c attention.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *changeRecorder) all() []attention.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]attention.Change, len(r.changes))
	copy(out, r.changes)
	return out
}
