// Package embody assembles the embodiment core: audio capture feeding
// wake-word detection and speech segmentation, a camera watcher for
// motion and faces, the attention state machine they all signal, and
// the motion blend engine that renders the result on the robot.
//
// The App owns subsystem lifecycles. Sensing failures degrade the
// relevant path instead of stopping the process: a dead microphone
// leaves an ambient-motion-only robot, a missing wake model falls back
// to always-listening, a missing camera drops perception. Run exits
// only on context cancellation.
package embody

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-embody/pkg/attention"
	"github.com/teslashibe/go-embody/pkg/audiodev"
	"github.com/teslashibe/go-embody/pkg/daemon"
	"github.com/teslashibe/go-embody/pkg/motion"
	"github.com/teslashibe/go-embody/pkg/perception"
	"github.com/teslashibe/go-embody/pkg/pose"
	"github.com/teslashibe/go-embody/pkg/privacy"
	"github.com/teslashibe/go-embody/pkg/status"
	"github.com/teslashibe/go-embody/pkg/vad"
	"github.com/teslashibe/go-embody/pkg/wakeword"
)

// beepTimeout bounds the wake acknowledgement tone so a wedged output
// path cannot back up the audio pipeline.
const beepTimeout = 3 * time.Second

// probeTimeout bounds one daemon recovery probe.
const probeTimeout = 2 * time.Second

// options collects construction knobs that are not part of Config.
type options struct {
	audio []audiodev.ManagerOption
}

// Option customizes App construction.
type Option func(*options)

// WithAudioOptions forwards options to the audio device manager. Tests
// use this to inject fake devices.
func WithAudioOptions(opts ...audiodev.ManagerOption) Option {
	return func(o *options) {
		o.audio = append(o.audio, opts...)
	}
}

// App wires the subsystems together and supervises them.
type App struct {
	cfg    Config
	logger *slog.Logger

	robot   *daemon.Client
	audio   *audiodev.Manager
	wake    *wakeword.Detector
	seg     *vad.Segmenter
	machine *attention.Machine
	engine  *motion.Engine

	idle      *motion.IdleLook
	breathing *motion.Breathing
	wobble    *motion.Wobble
	command   *motion.Command
	indicator *privacy.Indicator

	watcher *perception.Watcher
	statusd *status.Server

	started time.Time

	cbMu      sync.Mutex
	onState   []func(attention.Change)
	onWake    []func(wakeword.Detection)
	onSegment []func(vad.Segment)
	onCue     []func(cue string)
}

// New builds the full subsystem graph. Construction fails only on an
// invalid configuration; device and model availability is resolved at
// Run time so a half-equipped robot still comes up.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		robot:   daemon.NewClient(cfg.DaemonURL),
		started: time.Now(),
	}
	comp := func(name string) *slog.Logger { return logger.With("component", name) }

	a.audio = audiodev.NewManager(cfg.Audio, comp("audiodev"), o.audio...)

	var err error
	if a.wake, err = wakeword.New(cfg.Wake, comp("wakeword")); err != nil {
		return nil, err
	}
	if a.seg, err = vad.New(cfg.VAD, comp("vad")); err != nil {
		return nil, err
	}
	if a.machine, err = attention.NewMachine(cfg.Attention, comp("attention")); err != nil {
		return nil, err
	}
	if a.engine, err = motion.NewEngine(cfg.Motion, a.robot, comp("motion")); err != nil {
		return nil, err
	}
	if a.indicator, err = privacy.New(cfg.Privacy); err != nil {
		return nil, err
	}

	a.idle = motion.NewIdleLook(cfg.Motion.IdleLook, comp("motion"))
	a.breathing = motion.NewBreathing(cfg.Motion.Breathing)
	a.wobble = motion.NewWobble(cfg.Motion.Wobble)
	a.command = motion.NewCommand()

	// Command registers after the indicator so explicit poses win the
	// antenna axes while they hold.
	a.engine.AddSource(a.idle)
	a.engine.AddSource(a.breathing)
	a.engine.AddSource(a.wobble)
	a.engine.AddSource(a.indicator)
	a.engine.AddSource(a.command)

	if cfg.Perception.SnapshotURL != "" {
		source := perception.NewSnapshotSource(cfg.Perception.SnapshotURL)
		if a.watcher, err = perception.New(cfg.Perception, source, comp("perception")); err != nil {
			return nil, err
		}
	}
	if cfg.Status.Enabled {
		a.statusd = status.NewServer(cfg.Status, a, comp("status"))
	}

	a.wire()
	return a, nil
}

// wire connects the subsystem callbacks. Attention change handlers run
// on the machine's actor goroutine and must not call back into it; the
// sensing handlers run on the audio and perception goroutines and may.
func (a *App) wire() {
	a.machine.OnChange(func(c attention.Change) {
		a.indicator.SetState(c.To)
		a.seg.SetActive(c.To == attention.Engaged || a.wake.Mode() == wakeword.ModeBypass)
		a.publish(status.EventStateChange, c)
		a.emitState(c)
	})

	a.wake.OnDetection(func(d wakeword.Detection) {
		a.machine.WakeDetected(d.Persona)
		a.idle.NoteInteraction()
		go a.acknowledgeWake(d.Persona)
		a.publish(status.EventWake, d)
		a.emitWake(d)
	})

	a.seg.OnSpeechStart(func(at time.Time) {
		if a.wake.Mode() == wakeword.ModeBypass {
			a.machine.WakeDetected("")
		} else {
			a.machine.UserSpeaking()
		}
		a.indicator.SetRecording(true)
		a.idle.NoteInteraction()
	})

	a.seg.OnSegment(func(seg vad.Segment) {
		a.indicator.SetRecording(false)
		a.publish(status.EventSpeechSegment, seg)
		a.emitSegment(seg)
	})

	a.idle.OnCue(func(cue string) {
		a.publish(status.EventCue, map[string]any{"cue": cue})
		a.emitCue(cue)
	})

	a.engine.OnPauseChange(func(paused bool) {
		a.publish(status.EventDispatchPause, map[string]any{"paused": paused})
	})

	a.audio.OnHealthChange(func(h audiodev.Health) {
		a.publish(status.EventAudioHealth, h)
	})

	if a.watcher != nil {
		a.watcher.OnMotion(func(ratio float64) {
			a.machine.MotionDetected()
			a.publish(status.EventMotion, map[string]any{"ratio": ratio})
		})
		a.watcher.OnFace(func(f perception.Face) {
			a.machine.FaceDetected()
			a.publish(status.EventFace, f)
		})
	}
}

// Run opens the audio devices and supervises every subsystem loop
// until the context is cancelled. It returns nil on a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.audio.Open(ctx); err != nil {
		a.logger.Error("audio unavailable, running without capture", "error", err)
	}

	// In bypass mode the segmenter listens permanently; the first
	// speech activity engages instead of a wake word.
	a.seg.SetActive(a.wake.Mode() == wakeword.ModeBypass)

	a.logger.Info("embodiment core starting",
		"daemon", a.cfg.DaemonURL,
		"wake_mode", a.wake.Mode().String(),
		"personas", a.wake.Personas(),
		"vad_enabled", a.seg.Enabled(),
		"perception", a.watcher != nil,
		"status_server", a.statusd != nil,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.machine.Run(ctx) })
	g.Go(func() error { return a.engine.Run(ctx) })
	g.Go(func() error { return a.runAudio(ctx) })
	g.Go(func() error { return a.probeDaemon(ctx) })
	if a.watcher != nil {
		g.Go(func() error {
			defer a.watcher.Close()
			return a.watcher.Run(ctx)
		})
	}
	if a.statusd != nil {
		g.Go(func() error { return a.statusd.Run(ctx) })
	}

	err := g.Wait()
	if cerr := a.audio.Close(); cerr != nil {
		a.logger.Warn("audio close failed", "error", cerr)
	}
	a.logger.Info("embodiment core stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runAudio pumps capture frames through wake detection and speech
// segmentation. A missing device is a degraded mode, not an error.
func (a *App) runAudio(ctx context.Context) error {
	if a.audio.Health().State == audiodev.Failed {
		return nil
	}

	lease, err := a.audio.AcquireInput(ctx)
	if err != nil {
		a.logger.Error("audio capture unavailable", "error", err)
		return nil
	}
	defer lease.Release()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-lease.Frames():
			if !ok {
				a.logger.Warn("capture stream ended")
				return nil
			}
			a.wake.Feed(f)
			a.seg.Feed(f)
		}
	}
}

// probeDaemon polls the daemon while dispatch is paused and signals
// the engine to resume once it reports running again.
func (a *App) probeDaemon(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.DaemonProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !a.engine.Paused() {
				continue
			}
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			state, err := a.robot.Status(probeCtx)
			cancel()
			if err == nil && state == daemon.StateRunning {
				a.engine.NotifyDaemonHealthy()
			}
		}
	}
}

// acknowledgeWake plays the confirmation tone. Output failures are
// logged and swallowed; a mute robot still listens.
func (a *App) acknowledgeWake(persona string) {
	ctx, cancel := context.WithTimeout(context.Background(), beepTimeout)
	defer cancel()
	if err := a.audio.Beep(ctx); err != nil {
		a.logger.Warn("wake acknowledgement tone failed", "persona", persona, "error", err)
	}
}

// TriggerListen engages attention without a wake word, for a button or
// an API call. It returns the resulting state.
func (a *App) TriggerListen() attention.State {
	a.idle.NoteInteraction()
	return a.machine.WakeDetected("")
}

// SubmitPose holds an explicit pose target for the given duration.
// The blend engine still applies smoothing, rate limiting and the
// safety envelope on the way out.
func (a *App) SubmitPose(p pose.Pose, hold time.Duration) {
	a.idle.NoteInteraction()
	a.command.Set(p, hold)
}

// ClearPose releases the explicit pose immediately.
func (a *App) ClearPose() {
	a.command.Clear()
}

// PlayAudio plays PCM16 samples on the robot speaker, resampling if
// needed, with the speech wobble tracking the output envelope.
func (a *App) PlayAudio(ctx context.Context, samples []int16, rate int) error {
	if rate != a.cfg.Audio.SampleRate {
		samples = audiodev.Resample(samples, rate, a.cfg.Audio.SampleRate)
	}
	a.wobble.SetSpeaking(true)
	defer a.wobble.SetSpeaking(false)
	a.wobble.Feed(samples, a.cfg.Audio.SampleRate)
	return a.audio.PlayPCM(ctx, samples)
}

// State returns the current attention state.
func (a *App) State() attention.State {
	return a.machine.State()
}

// StatusAddr returns the status server's bound address, or "" when the
// server is disabled or not yet listening.
func (a *App) StatusAddr() string {
	if a.statusd == nil {
		return ""
	}
	return a.statusd.Addr()
}

// Snapshot reports the live state of every subsystem.
func (a *App) Snapshot() status.Snapshot {
	snap := status.Snapshot{
		AttentionState: a.machine.State().String(),
		ActivePersona:  a.machine.ActivePersona(),
		Personas:       a.wake.Personas(),
		WakeMode:       a.wake.Mode().String(),
		VADEnabled:     a.seg.Enabled(),
		Recording:      a.seg.Active(),
		AudioHealthy:   a.audio.Health().State == audiodev.Healthy,
		DispatchPaused: a.engine.Paused(),
	}
	if a.watcher != nil {
		snap.CameraDegraded = a.watcher.Degraded()
	}
	snap.UptimeSeconds = time.Since(a.started).Seconds()
	return snap
}

func (a *App) publish(kind string, data any) {
	if a.statusd != nil {
		a.statusd.Publish(kind, data)
	}
}
