// Package vad segments the capture stream into speech segments.
//
// The segmenter tracks contiguous runs of speech and silence frames
// with hysteresis: a speech segment opens after enough contiguous
// speech, closes after enough contiguous silence, and is force-closed
// at the maximum segment duration. Segmentation is gated on attention:
// it only runs while the robot is engaged, or always in wake-word
// bypass mode.
package vad

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-embody/pkg/audiodev"
)

// ErrModelUnavailable indicates the calibration profile backing the
// primary classifier is missing or corrupt.
var ErrModelUnavailable = errors.New("vad: calibration profile unavailable")

// Segment is one demarcated stretch of speech. The frame buffer runs
// from the first frame of the opening speech run through the last
// frame consumed before finalization, so it includes the closing
// silence window.
type Segment struct {
	ID    uuid.UUID `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Duration is the audio time covered by Frames, not wall time.
	Duration time.Duration `json:"duration"`

	// Truncated is set when the segment was force-finalized at the
	// maximum duration rather than closed by silence.
	Truncated bool `json:"truncated,omitempty"`

	Frames []audiodev.Frame `json:"-"`
}

// Samples returns the segment audio as one contiguous PCM16 buffer.
func (s *Segment) Samples() []int16 {
	n := 0
	for _, f := range s.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range s.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// Bytes returns the segment audio as PCM16 little-endian bytes, the
// shape speech backends consume.
func (s *Segment) Bytes() []byte {
	return audiodev.SamplesToBytes(s.Samples())
}

// SampleRate returns the sample rate of the segment audio, zero for an
// empty segment.
func (s *Segment) SampleRate() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return s.Frames[0].SampleRate
}
