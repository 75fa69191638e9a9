package motion

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-embody/pkg/daemon"
	"github.com/teslashibe/go-embody/pkg/pose"
)

// layer is one registered source plus its private smoothing state.
type layer struct {
	source   Source
	smoother *pose.Smoother
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Ticks      uint64 `json:"ticks"`
	Dispatches uint64 `json:"dispatches"`
	Skipped    uint64 `json:"skipped"`
	Errors     uint64 `json:"errors"`
	Paused     bool   `json:"paused"`
}

// Engine drives the blend loop. One command is dispatched per dispatch
// tick at most; intermediate ticks only advance smoothing state. The
// loop itself never halts on dispatch failure: errors are counted, and
// a long enough run of consecutive failures pauses dispatching until
// NotifyDaemonHealthy.
type Engine struct {
	cfg           Config
	logger        *slog.Logger
	dispatcher    daemon.Dispatcher
	dispatchEvery uint64

	// layers is append-only and fixed before Run starts.
	layers []layer

	mu         sync.Mutex
	lastSent   pose.Pose
	ticks      uint64
	dispatches uint64
	skipped    uint64
	errors     uint64
	failures   int
	paused     bool

	cbMu    sync.Mutex
	onPause []func(paused bool)
}

// NewEngine creates a blend engine dispatching through d.
func NewEngine(cfg Config, d daemon.Dispatcher, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:           cfg,
		logger:        logger,
		dispatcher:    d,
		dispatchEvery: uint64(cfg.TickRate / cfg.CommandRate),
	}, nil
}

// AddSource registers a motion source. All sources must be registered
// before Run starts; command-priority sources override in registration
// order, so register the one that should win conflicts last.
func (e *Engine) AddSource(src Source) {
	e.layers = append(e.layers, layer{
		source:   src,
		smoother: pose.NewSmoother(e.cfg.SmoothingFactor),
	})
}

// OnPauseChange registers a callback fired when dispatch pauses or
// resumes.
func (e *Engine) OnPauseChange(fn func(paused bool)) {
	if fn == nil {
		return
	}
	e.cbMu.Lock()
	e.onPause = append(e.onPause, fn)
	e.cbMu.Unlock()
}

// Run drives the tick loop until the context ends. It stops within one
// tick period of cancellation.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.cfg.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("blend engine started",
		"tick_rate", e.cfg.TickRate,
		"command_rate", e.cfg.CommandRate,
		"sources", len(e.layers))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("blend engine stopped")
			return ctx.Err()
		case now := <-ticker.C:
			e.tick(ctx, now)
		}
	}
}

// tick runs one blend cycle.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	var additive, override pose.Pose
	for _, l := range e.layers {
		smoothed := l.smoother.Next(l.source.Sample(now))
		if l.source.Kind() == KindCommand {
			override = override.Override(smoothed)
		} else {
			additive = additive.Add(smoothed)
		}
	}
	combined := additive.Override(override)

	e.mu.Lock()
	e.ticks++
	if e.ticks%e.dispatchEvery != 0 {
		e.mu.Unlock()
		return
	}
	if e.paused {
		e.skipped++
		e.mu.Unlock()
		return
	}

	combined = e.rateLimitLocked(combined)
	combined = e.cfg.Limits.Clamp(combined)

	target := daemon.TargetFromPose(combined, e.cfg.DispatchDuration)
	if target.IsEmpty() || !e.needsSendLocked(combined) {
		e.skipped++
		e.mu.Unlock()
		return
	}
	e.dispatches++
	e.mu.Unlock()

	err := e.dispatcher.SetTarget(ctx, target)

	e.mu.Lock()
	var pausedNow bool
	if err != nil {
		e.errors++
		e.failures++
		if e.errors%20 == 1 {
			e.logger.Warn("pose dispatch failed",
				"error", err, "consecutive", e.failures)
		}
		if e.failures >= e.cfg.PauseThreshold && !e.paused {
			e.paused = true
			pausedNow = true
		}
	} else {
		e.failures = 0
		e.lastSent = combined
		if e.dispatches%200 == 0 {
			e.logger.Debug("blend engine heartbeat",
				"ticks", e.ticks,
				"dispatches", e.dispatches,
				"skipped", e.skipped,
				"pose", combined.String())
		}
	}
	e.mu.Unlock()

	if pausedNow {
		e.logger.Error("pose dispatch paused after consecutive failures",
			"failures", e.cfg.PauseThreshold)
		e.emitPause(true)
	}
}

// NotifyDaemonHealthy resumes dispatching after a pause. Safe to call
// at any time; a no-op unless paused.
func (e *Engine) NotifyDaemonHealthy() {
	e.mu.Lock()
	wasPaused := e.paused
	e.paused = false
	e.failures = 0
	e.mu.Unlock()

	if wasPaused {
		e.logger.Info("pose dispatch resumed after health signal")
		e.emitPause(false)
	}
}

// Paused reports whether dispatching is currently suspended.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Ticks:      e.ticks,
		Dispatches: e.dispatches,
		Skipped:    e.skipped,
		Errors:     e.errors,
		Paused:     e.paused,
	}
}

// rateLimitLocked caps per-axis travel relative to the last dispatched
// pose.
func (e *Engine) rateLimitLocked(p pose.Pose) pose.Pose {
	for _, a := range pose.Axes() {
		v, ok := p.Get(a)
		if !ok {
			continue
		}
		prev := e.lastSent.Value(a)
		delta := v - prev
		if delta > e.cfg.MaxStepRad {
			p.Set(a, prev+e.cfg.MaxStepRad)
		} else if delta < -e.cfg.MaxStepRad {
			p.Set(a, prev-e.cfg.MaxStepRad)
		}
	}
	return p
}

// needsSendLocked applies the dead zone against the last dispatched
// pose, per axis group.
func (e *Engine) needsSendLocked(p pose.Pose) bool {
	headDiff := math.Max(
		math.Abs(p.Value(pose.HeadRoll)-e.lastSent.Value(pose.HeadRoll)),
		math.Max(
			math.Abs(p.Value(pose.HeadPitch)-e.lastSent.Value(pose.HeadPitch)),
			math.Abs(p.Value(pose.HeadYaw)-e.lastSent.Value(pose.HeadYaw)),
		),
	)
	liftDiff := math.Abs(p.Value(pose.HeadZ) - e.lastSent.Value(pose.HeadZ))
	antennaDiff := math.Max(
		math.Abs(p.Value(pose.AntennaLeft)-e.lastSent.Value(pose.AntennaLeft)),
		math.Abs(p.Value(pose.AntennaRight)-e.lastSent.Value(pose.AntennaRight)),
	)
	bodyDiff := math.Abs(p.Value(pose.BodyYaw) - e.lastSent.Value(pose.BodyYaw))

	return headDiff >= e.cfg.HeadDeadZone ||
		liftDiff >= e.cfg.LiftDeadZone ||
		antennaDiff >= e.cfg.AntennaDeadZone ||
		bodyDiff >= e.cfg.BodyDeadZone
}

func (e *Engine) emitPause(paused bool) {
	e.cbMu.Lock()
	fns := make([]func(bool), len(e.onPause))
	copy(fns, e.onPause)
	e.cbMu.Unlock()
	for _, fn := range fns {
		fn(paused)
	}
}
