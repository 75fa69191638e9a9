package embody

import (
	"github.com/teslashibe/go-embody/pkg/attention"
	"github.com/teslashibe/go-embody/pkg/vad"
	"github.com/teslashibe/go-embody/pkg/wakeword"
)

// Callbacks bundles the application-level hooks in one place. Nil
// fields are skipped; every hook may also be registered individually
// on the App.
type Callbacks struct {
	// OnStateChange fires on every attention transition.
	OnStateChange func(attention.Change)

	// OnWakeDetection fires when a persona wake phrase is heard.
	OnWakeDetection func(wakeword.Detection)

	// OnSpeechSegment fires when a speech segment finalizes. The
	// segment carries its captured frames; downstream consumers (ASR,
	// conversation) take it from here.
	OnSpeechSegment func(vad.Segment)

	// OnEmotionCue fires when a motion layer suggests an expression,
	// e.g. the idle gaze picking a curious glance.
	OnEmotionCue func(cue string)
}

// Apply registers every non-nil hook on the app.
func (c Callbacks) Apply(a *App) {
	if c.OnStateChange != nil {
		a.OnStateChange(c.OnStateChange)
	}
	if c.OnWakeDetection != nil {
		a.OnWakeDetection(c.OnWakeDetection)
	}
	if c.OnSpeechSegment != nil {
		a.OnSpeechSegment(c.OnSpeechSegment)
	}
	if c.OnEmotionCue != nil {
		a.OnEmotionCue(c.OnEmotionCue)
	}
}

// OnStateChange registers a hook fired on every attention transition.
// Hooks run on internal goroutines and must not block.
func (a *App) OnStateChange(fn func(attention.Change)) {
	if fn == nil {
		return
	}
	a.cbMu.Lock()
	a.onState = append(a.onState, fn)
	a.cbMu.Unlock()
}

// OnWakeDetection registers a hook fired on every wake-word hit.
func (a *App) OnWakeDetection(fn func(wakeword.Detection)) {
	if fn == nil {
		return
	}
	a.cbMu.Lock()
	a.onWake = append(a.onWake, fn)
	a.cbMu.Unlock()
}

// OnSpeechSegment registers a hook fired on every finalized speech
// segment.
func (a *App) OnSpeechSegment(fn func(vad.Segment)) {
	if fn == nil {
		return
	}
	a.cbMu.Lock()
	a.onSegment = append(a.onSegment, fn)
	a.cbMu.Unlock()
}

// OnEmotionCue registers a hook fired on expression cues.
func (a *App) OnEmotionCue(fn func(cue string)) {
	if fn == nil {
		return
	}
	a.cbMu.Lock()
	a.onCue = append(a.onCue, fn)
	a.cbMu.Unlock()
}

func (a *App) emitState(c attention.Change) {
	a.cbMu.Lock()
	fns := make([]func(attention.Change), len(a.onState))
	copy(fns, a.onState)
	a.cbMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (a *App) emitWake(d wakeword.Detection) {
	a.cbMu.Lock()
	fns := make([]func(wakeword.Detection), len(a.onWake))
	copy(fns, a.onWake)
	a.cbMu.Unlock()
	for _, fn := range fns {
		fn(d)
	}
}

func (a *App) emitSegment(seg vad.Segment) {
	a.cbMu.Lock()
	fns := make([]func(vad.Segment), len(a.onSegment))
	copy(fns, a.onSegment)
	a.cbMu.Unlock()
	for _, fn := range fns {
		fn(seg)
	}
}

func (a *App) emitCue(cue string) {
	a.cbMu.Lock()
	fns := make([]func(string), len(a.onCue))
	copy(fns, a.onCue)
	a.cbMu.Unlock()
	for _, fn := range fns {
		fn(cue)
	}
}
