package perception

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Stats is a snapshot of watcher counters.
type Stats struct {
	Polls        uint64 `json:"polls"`
	MotionEvents uint64 `json:"motion_events"`
	FaceEvents   uint64 `json:"face_events"`
	Errors       uint64 `json:"errors"`
	Degraded     bool   `json:"degraded"`
	FacesEnabled bool   `json:"faces_enabled"`
}

// Watcher polls a FrameSource on a fixed interval, scores every frame
// for motion and every Nth frame for faces, and reports hits through
// callbacks. Capture failures are tolerated up to cfg.MaxErrors in a
// row; past that the camera is logged as degraded until a capture
// succeeds again.
type Watcher struct {
	cfg    Config
	logger *slog.Logger
	source FrameSource
	motion MotionScorer
	faces  FaceDetector // nil runs motion-only

	mu           sync.Mutex
	polls        uint64
	motionEvents uint64
	faceEvents   uint64
	errCount     uint64
	consecutive  int
	degraded     bool
	rebaseline   bool

	cbMu     sync.Mutex
	onMotion []func(ratio float64)
	onFace   []func(Face)
}

// New builds a Watcher with the gocv-backed detectors. A face model
// that fails to load is logged and skipped; the watcher then runs
// motion-only rather than failing construction.
func New(cfg Config, source FrameSource, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var faces FaceDetector
	if cfg.ModelPath != "" {
		yn, err := NewYuNet(cfg)
		if err != nil {
			logger.Warn("face detection disabled", "error", err)
		} else {
			faces = yn
		}
	}

	return NewWatcher(cfg, source, NewFrameDiff(cfg.PixelDelta), faces, logger)
}

// NewWatcher wires a Watcher from explicit detector implementations.
// faces may be nil for motion-only operation.
func NewWatcher(cfg Config, source FrameSource, motion MotionScorer, faces FaceDetector, logger *slog.Logger) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:    cfg,
		logger: logger,
		source: source,
		motion: motion,
		faces:  faces,
	}, nil
}

// OnMotion registers a callback fired with the changed-pixel ratio
// whenever a frame crosses the motion threshold.
func (w *Watcher) OnMotion(fn func(ratio float64)) {
	if fn == nil {
		return
	}
	w.cbMu.Lock()
	w.onMotion = append(w.onMotion, fn)
	w.cbMu.Unlock()
}

// OnFace registers a callback fired with the most prominent face each
// time face detection finds one.
func (w *Watcher) OnFace(fn func(Face)) {
	if fn == nil {
		return
	}
	w.cbMu.Lock()
	w.onFace = append(w.onFace, fn)
	w.cbMu.Unlock()
}

// Degraded reports whether the camera is currently failing.
func (w *Watcher) Degraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.degraded
}

// Stats returns a snapshot of watcher counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Polls:        w.polls,
		MotionEvents: w.motionEvents,
		FaceEvents:   w.faceEvents,
		Errors:       w.errCount,
		Degraded:     w.degraded,
		FacesEnabled: w.faces != nil,
	}
}

// Run polls until the context ends.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("perception watcher started",
		"interval", w.cfg.Interval,
		"face_every_n", w.cfg.FaceEveryN,
		"faces_enabled", w.faces != nil)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("perception watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// Close releases the detectors. Call after Run has returned.
func (w *Watcher) Close() error {
	var err error
	if w.motion != nil {
		err = w.motion.Close()
	}
	if w.faces != nil {
		if ferr := w.faces.Close(); err == nil {
			err = ferr
		}
	}
	return err
}

// poll captures and scores one frame.
func (w *Watcher) poll(ctx context.Context) {
	frame, err := w.source.Capture(ctx)
	if err != nil {
		w.captureFailed(err)
		return
	}

	w.mu.Lock()
	w.polls++
	polls := w.polls
	w.consecutive = 0
	if w.degraded {
		w.degraded = false
		// The baseline frame predates the outage; the first frame back
		// would diff against it and read as motion.
		w.rebaseline = true
		w.logger.Info("camera recovered")
	}
	skipScore := w.rebaseline
	w.rebaseline = false
	w.mu.Unlock()

	ratio, err := w.motion.Ratio(frame)
	if err != nil {
		w.logger.Warn("motion scoring failed", "error", err)
		return
	}
	if !skipScore && ratio >= w.cfg.MotionThreshold {
		w.mu.Lock()
		w.motionEvents++
		w.mu.Unlock()
		w.emitMotion(ratio)
	}

	if w.faces == nil || polls%uint64(w.cfg.FaceEveryN) != 0 {
		return
	}
	dets, err := w.faces.Detect(frame)
	if err != nil {
		w.logger.Warn("face detection failed", "error", err)
		return
	}
	if best := SelectBest(dets); best != nil {
		w.mu.Lock()
		w.faceEvents++
		w.mu.Unlock()
		w.emitFace(*best)
	}
}

func (w *Watcher) captureFailed(err error) {
	w.mu.Lock()
	w.errCount++
	w.consecutive++
	count := w.errCount
	crossed := w.consecutive == w.cfg.MaxErrors && !w.degraded
	if crossed {
		w.degraded = true
	}
	w.mu.Unlock()

	if crossed {
		w.logger.Error("camera degraded",
			"consecutive_errors", w.cfg.MaxErrors, "error", err)
	} else if count%25 == 1 {
		w.logger.Warn("frame capture failed", "error", err)
	}
}

func (w *Watcher) emitMotion(ratio float64) {
	w.cbMu.Lock()
	cbs := make([]func(float64), len(w.onMotion))
	copy(cbs, w.onMotion)
	w.cbMu.Unlock()
	for _, fn := range cbs {
		fn(ratio)
	}
}

func (w *Watcher) emitFace(f Face) {
	w.cbMu.Lock()
	cbs := make([]func(Face), len(w.onFace))
	copy(cbs, w.onFace)
	w.cbMu.Unlock()
	for _, fn := range cbs {
		fn(f)
	}
}
