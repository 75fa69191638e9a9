package motion

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/teslashibe/go-embody/pkg/pose"
)

// CueCurious is the emotion cue attached to curious idle looks.
const CueCurious = "curious"

// Double looks land this soon after the first.
const (
	doubleLookMin = 400 * time.Millisecond
	doubleLookMax = 900 * time.Millisecond
)

// IdleLook wanders the gaze at randomized intervals while the robot is
// not interacting. Contributions are additive head offsets; the layer
// smoother turns each target switch into a glide.
type IdleLook struct {
	cfg    IdleLookConfig
	logger *slog.Logger

	mu              sync.Mutex
	rng             *rand.Rand
	target          pose.Pose
	nextLookAt      time.Time
	lastInteraction time.Time
	pendingDouble   bool

	cbMu  sync.Mutex
	onCue []func(cue string)
}

// NewIdleLook creates the wandering gaze source.
func NewIdleLook(cfg IdleLookConfig, logger *slog.Logger) *IdleLook {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdleLook{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Kind returns KindIdleLook.
func (l *IdleLook) Kind() Kind {
	return KindIdleLook
}

// OnCue registers a callback for emotion cues attached to looks. It
// fires on the engine tick goroutine and must not block.
func (l *IdleLook) OnCue(fn func(cue string)) {
	if fn == nil {
		return
	}
	l.cbMu.Lock()
	l.onCue = append(l.onCue, fn)
	l.cbMu.Unlock()
}

// NoteInteraction marks an interaction event, suspending wandering for
// the configured cooldown.
func (l *IdleLook) NoteInteraction() {
	l.mu.Lock()
	l.lastInteraction = time.Now()
	l.mu.Unlock()
}

// Sample returns the current look target, or nothing while suspended.
func (l *IdleLook) Sample(now time.Time) pose.Pose {
	l.mu.Lock()
	if l.cfg.PauseOnInteraction && now.Sub(l.lastInteraction) < l.cfg.InteractionCooldown {
		l.mu.Unlock()
		return pose.Pose{}
	}

	var cue string
	if !now.Before(l.nextLookAt) {
		cue = l.pickLocked(now)
	}
	target := l.target
	l.mu.Unlock()

	if cue != "" {
		l.emitCue(cue)
	}
	return target
}

// pickLocked chooses the next look target and schedules the one after.
// Returns a non-empty cue when the look carries one.
func (l *IdleLook) pickLocked(now time.Time) string {
	interval := l.cfg.MinLookInterval +
		time.Duration(l.rng.Float64()*float64(l.cfg.MaxLookInterval-l.cfg.MinLookInterval))
	l.nextLookAt = now.Add(interval)

	wasDouble := l.pendingDouble
	l.pendingDouble = false

	if !wasDouble && !l.target.IsZero() && l.rng.Float64() < l.cfg.ReturnToNeutralChance {
		l.target = pose.Pose{}
		l.logger.Debug("idle look returning to neutral")
		return ""
	}

	l.target = pose.HeadOffset(
		l.uniform(l.cfg.RollRange),
		l.uniform(l.cfg.PitchRange),
		l.uniform(l.cfg.YawRange),
	)

	if !wasDouble && l.rng.Float64() < l.cfg.DoubleLookChance {
		l.pendingDouble = true
		l.nextLookAt = now.Add(doubleLookMin +
			time.Duration(l.rng.Float64()*float64(doubleLookMax-doubleLookMin)))
	}

	if l.rng.Float64() < l.cfg.CuriosityChance {
		return CueCurious
	}
	return ""
}

// uniform draws from [-r, r].
func (l *IdleLook) uniform(r float64) float64 {
	return (l.rng.Float64()*2 - 1) * r
}

func (l *IdleLook) emitCue(cue string) {
	l.cbMu.Lock()
	fns := make([]func(string), len(l.onCue))
	copy(fns, l.onCue)
	l.cbMu.Unlock()
	for _, fn := range fns {
		fn(cue)
	}
}
