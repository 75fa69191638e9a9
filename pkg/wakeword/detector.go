package wakeword

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-embody/pkg/audiodev"
)

// Detector scores capture frames against every configured persona
// model. Frames are consumed in arrival order; each persona keeps its
// own streaming scorer and cooldown clock.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	mode     Mode
	personas []string // sorted, fixes scoring order
	scorers  map[string]Scorer

	mu      sync.Mutex
	lastHit map[string]time.Time

	cbMu        sync.Mutex
	onDetection []func(Detection)
}

// New resolves the persona manifest and model files and builds the
// detector. Model and manifest failures are logged and degrade the
// mode; they never fail construction. Only an invalid Config returns
// an error.
func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Manifest == "" {
		cfg.Manifest = DefaultManifest
	}

	d := &Detector{
		cfg:     cfg,
		logger:  logger,
		lastHit: make(map[string]time.Time),
	}

	manifest, err := LoadManifest(filepath.Join(cfg.ModelDir, cfg.Manifest))
	if err != nil {
		d.degrade(err)
		return d, nil
	}

	models, errs := resolveModels(cfg.ModelDir, manifest)
	for _, e := range errs {
		logger.Warn("wake model unavailable", "error", e)
	}
	if len(models) == 0 {
		cause := error(ErrModelLoad)
		if len(errs) > 0 {
			cause = errs[len(errs)-1]
		}
		d.degrade(cause)
		return d, nil
	}

	d.scorers = make(map[string]Scorer, len(models))
	for persona, model := range models {
		d.scorers[persona] = NewScorer(model)
		d.personas = append(d.personas, persona)
	}
	sort.Strings(d.personas)
	d.mode = ModeActive

	logger.Info("wake detection active",
		"personas", len(d.personas),
		"sensitivity", cfg.Sensitivity)
	return d, nil
}

// degrade switches the detector to bypass or disabled mode after model
// resolution failed entirely.
func (d *Detector) degrade(cause error) {
	if d.cfg.SkipOnFailure {
		d.mode = ModeBypass
		d.logger.Warn("wake detection bypassed, speech will engage directly", "error", cause)
		return
	}
	d.mode = ModeDisabled
	d.logger.Error("wake detection disabled", "error", cause)
}

// Mode returns the operating mode decided at construction.
func (d *Detector) Mode() Mode {
	return d.mode
}

// Personas returns the personas with a resolved model, sorted.
func (d *Detector) Personas() []string {
	out := make([]string, len(d.personas))
	copy(out, d.personas)
	return out
}

// OnDetection registers a callback invoked for every detection, on the
// goroutine that fed the triggering frame.
func (d *Detector) OnDetection(fn func(Detection)) {
	if fn == nil {
		return
	}
	d.cbMu.Lock()
	d.onDetection = append(d.onDetection, fn)
	d.cbMu.Unlock()
}

// Feed scores one frame across all personas and returns a detection if
// the best eligible persona crossed the sensitivity threshold. Every
// scorer consumes the frame regardless of the outcome so streaming
// state stays aligned. Feed is not safe for concurrent use; frames
// come from a single capture lease.
func (d *Detector) Feed(f audiodev.Frame) *Detection {
	if d.mode != ModeActive || len(f.Samples) == 0 {
		return nil
	}

	now := time.Now()
	best := 0.0
	bestPersona := ""
	for _, persona := range d.personas {
		score := d.scorers[persona].Score(f)
		if score < d.cfg.Sensitivity || score <= best {
			continue
		}
		if !d.cooledDown(persona, now) {
			continue
		}
		best, bestPersona = score, persona
	}
	if bestPersona == "" {
		return nil
	}

	d.mu.Lock()
	d.lastHit[bestPersona] = now
	d.mu.Unlock()

	// The utterance is consumed: clear every window so personas
	// sharing the fallback model cannot refire on the same audio.
	for _, s := range d.scorers {
		s.Reset()
	}

	det := Detection{Persona: bestPersona, Confidence: best, At: now}
	d.logger.Info("wake word detected",
		"persona", det.Persona,
		"confidence", det.Confidence)
	d.emit(det)
	return &det
}

// Run drains frames through Feed until the context ends or the channel
// closes. Detections surface through OnDetection callbacks.
func (d *Detector) Run(ctx context.Context, frames <-chan audiodev.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			d.Feed(f)
		}
	}
}

func (d *Detector) cooledDown(persona string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lastHit[persona]
	if !ok {
		return true
	}
	return now.Sub(last) >= d.cfg.Cooldown
}

func (d *Detector) emit(det Detection) {
	d.cbMu.Lock()
	fns := make([]func(Detection), len(d.onDetection))
	copy(fns, d.onDetection)
	d.cbMu.Unlock()
	for _, fn := range fns {
		fn(det)
	}
}
