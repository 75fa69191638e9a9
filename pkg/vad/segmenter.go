package vad

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-embody/pkg/audiodev"
)

// Segmenter turns the capture stream into speech segments.
//
// Feed consumes frames from the single capture goroutine; SetActive is
// called from the attention callback path. Speech-start and segment
// callbacks fire on the feeding goroutine, outside the segmenter lock,
// so they may call back into SetActive.
type Segmenter struct {
	cfg        Config
	logger     *slog.Logger
	classifier Classifier
	enabled    bool

	mu     sync.Mutex
	active bool

	// Pending speech run while no segment is open.
	run    []audiodev.Frame
	runDur time.Duration

	// Open segment state.
	seg     *Segment
	segDur  time.Duration
	silence time.Duration

	cbMu      sync.Mutex
	onStart   []func(at time.Time)
	onSegment []func(Segment)
}

// New builds a segmenter. Classifier resolution failures disable
// segmentation but never fail construction; only an invalid Config
// returns an error.
func New(cfg Config, logger *slog.Logger) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Segmenter{cfg: cfg, logger: logger}
	classifier, err := newClassifier(cfg, logger)
	if err != nil {
		logger.Error("speech segmentation disabled, external trigger required", "error", err)
		return s, nil
	}
	s.classifier = classifier
	s.enabled = true
	logger.Info("speech segmentation ready", "classifier", classifier.Name())
	return s, nil
}

// Enabled reports whether a classifier was resolved. A disabled
// segmenter drops all frames.
func (s *Segmenter) Enabled() bool {
	return s.enabled
}

// Active reports whether segmentation is currently gated on.
func (s *Segmenter) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// OnSpeechStart registers a callback fired once per segment when the
// opening speech run commits.
func (s *Segmenter) OnSpeechStart(fn func(at time.Time)) {
	if fn == nil {
		return
	}
	s.cbMu.Lock()
	s.onStart = append(s.onStart, fn)
	s.cbMu.Unlock()
}

// OnSegment registers a callback fired once per finalized segment.
func (s *Segmenter) OnSegment(fn func(Segment)) {
	if fn == nil {
		return
	}
	s.cbMu.Lock()
	s.onSegment = append(s.onSegment, fn)
	s.cbMu.Unlock()
}

// SetActive gates segmentation on or off. Deactivating finalizes an
// open segment immediately; its closing silence window is whatever had
// accumulated.
func (s *Segmenter) SetActive(active bool) {
	if !s.enabled {
		return
	}

	s.mu.Lock()
	if s.active == active {
		s.mu.Unlock()
		return
	}
	s.active = active
	var final *Segment
	if !active {
		final = s.finalizeLocked(false)
	}
	s.resetRunLocked()
	s.mu.Unlock()

	if final != nil {
		s.emitSegment(*final)
	}
}

// Feed consumes one frame. It returns the finalized segment when this
// frame closed one, nil otherwise.
func (s *Segmenter) Feed(f audiodev.Frame) *Segment {
	if !s.enabled || len(f.Samples) == 0 {
		return nil
	}
	speech := s.classifier.Speech(f)

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}

	var startAt time.Time
	var final *Segment
	if s.seg == nil {
		startAt = s.feedIdleLocked(f, speech)
	} else {
		final = s.feedOpenLocked(f, speech)
	}
	s.mu.Unlock()

	if !startAt.IsZero() {
		s.emitStart(startAt)
	}
	if final != nil {
		s.emitSegment(*final)
	}
	return final
}

// Run drains frames through Feed until the context ends or the channel
// closes. Segments surface through OnSegment callbacks.
func (s *Segmenter) Run(ctx context.Context, frames <-chan audiodev.Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			s.Feed(f)
		}
	}
}

// feedIdleLocked tracks the pending speech run and opens a segment
// once it reaches the minimum duration. Returns the segment start time
// when a segment opened.
func (s *Segmenter) feedIdleLocked(f audiodev.Frame, speech bool) time.Time {
	if !speech {
		s.resetRunLocked()
		return time.Time{}
	}

	s.run = append(s.run, f)
	s.runDur += f.Duration()
	if s.runDur < s.cfg.MinSpeechDuration {
		return time.Time{}
	}

	seg := &Segment{
		ID:     uuid.New(),
		Start:  s.run[0].Captured,
		Frames: make([]audiodev.Frame, len(s.run)),
	}
	copy(seg.Frames, s.run)
	s.seg = seg
	s.segDur = s.runDur
	s.silence = 0
	s.resetRunLocked()

	s.logger.Debug("speech started", "segment", seg.ID)
	return seg.Start
}

// feedOpenLocked appends to the open segment and closes it on enough
// silence or at the maximum duration.
func (s *Segmenter) feedOpenLocked(f audiodev.Frame, speech bool) *Segment {
	s.seg.Frames = append(s.seg.Frames, f)
	s.segDur += f.Duration()

	if speech {
		s.silence = 0
	} else {
		s.silence += f.Duration()
		if s.silence >= s.cfg.SilenceDuration {
			return s.finalizeLocked(false)
		}
	}

	if s.segDur >= s.cfg.MaxSpeechDuration {
		return s.finalizeLocked(true)
	}
	return nil
}

// finalizeLocked closes the open segment, if any.
func (s *Segmenter) finalizeLocked(truncated bool) *Segment {
	if s.seg == nil {
		return nil
	}
	seg := s.seg
	seg.Duration = s.segDur
	seg.End = seg.Start.Add(s.segDur)
	seg.Truncated = truncated
	s.seg = nil
	s.segDur = 0
	s.silence = 0

	if truncated {
		s.logger.Warn("speech segment truncated at maximum duration",
			"segment", seg.ID, "duration", seg.Duration)
	} else {
		s.logger.Debug("speech ended", "segment", seg.ID, "duration", seg.Duration)
	}
	return seg
}

func (s *Segmenter) resetRunLocked() {
	s.run = s.run[:0]
	s.runDur = 0
}

func (s *Segmenter) emitStart(at time.Time) {
	s.cbMu.Lock()
	fns := make([]func(time.Time), len(s.onStart))
	copy(fns, s.onStart)
	s.cbMu.Unlock()
	for _, fn := range fns {
		fn(at)
	}
}

func (s *Segmenter) emitSegment(seg Segment) {
	s.cbMu.Lock()
	fns := make([]func(Segment), len(s.onSegment))
	copy(fns, s.onSegment)
	s.cbMu.Unlock()
	for _, fn := range fns {
		fn(seg)
	}
}
