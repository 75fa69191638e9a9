// Package motion blends concurrent motion sources into one pose stream
// for the control daemon.
//
// The engine runs a fixed-rate tick loop. Every tick it samples each
// registered source, smooths the sample through that source's own
// exponential filter, combines the layers, clamps the composite to the
// safety limits and, on dispatch ticks, sends the result downstream.
// Additive sources (idle look, breathing, wobble) sum on the axes they
// touch; command-priority sources override any axis they set.
package motion

import (
	"time"

	"github.com/teslashibe/go-embody/pkg/pose"
)

// Kind classifies a motion source for blending.
type Kind int

const (
	// KindIdleLook is the ambient wandering gaze layer.
	KindIdleLook Kind = iota
	// KindBreathing is the always-on breathing sway layer.
	KindBreathing
	// KindWobble is the speech-synchronized sway layer.
	KindWobble
	// KindCommand is an explicit target that overrides every axis it
	// sets instead of adding to it.
	KindCommand
)

func (k Kind) String() string {
	switch k {
	case KindIdleLook:
		return "idle_look"
	case KindBreathing:
		return "breathing"
	case KindWobble:
		return "wobble"
	case KindCommand:
		return "command"
	default:
		return "unknown"
	}
}

// Source produces a partial pose contribution each tick. Sample must
// be fast and non-blocking; it runs on the engine tick goroutine.
// Returning the zero Pose contributes nothing, and axes a source
// stops setting decay back to neutral through its smoothing layer.
type Source interface {
	Kind() Kind
	Sample(now time.Time) pose.Pose
}
