package motion

import (
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-embody/pkg/pose"
)

// Loudness mapping for the playback envelope.
const (
	wobbleHopMS   = 20
	wobbleDBLow   = -46.0
	wobbleDBHigh  = -18.0
	wobbleGamma   = 0.9
	envFollowGain = 0.65

	// Fixed oscillator phase offsets so the three axes never line up.
	wobblePhasePitch = 0.7
	wobblePhaseYaw   = 2.1
	wobblePhaseRoll  = 4.2

	// Envelope points older than this are pruned.
	envRetention = 3 * time.Second
)

// envPoint is one timestamped loudness level.
type envPoint struct {
	at    time.Time
	level float64
}

// Wobble sways the head in sync with speech playback. The playback
// path taps its outgoing PCM through Feed; each hop becomes a
// timestamped loudness level, and Sample reads the level from
// LatencyCompensation ago so sway tracks what is audible rather than
// what was just queued. With no envelope available while speaking,
// synthetic noise drives the sway instead.
type Wobble struct {
	cfg   WobbleConfig
	start time.Time

	mu       sync.Mutex
	speaking bool
	pending  []float64 // residual samples awaiting a full hop
	rate     int
	env      float64
	points   []envPoint
}

// NewWobble creates the speech sway source.
func NewWobble(cfg WobbleConfig) *Wobble {
	return &Wobble{cfg: cfg, start: time.Now()}
}

// Kind returns KindWobble.
func (w *Wobble) Kind() Kind {
	return KindWobble
}

// SetSpeaking gates the sway. Ending speech clears the envelope.
func (w *Wobble) SetSpeaking(speaking bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.speaking == speaking {
		return
	}
	w.speaking = speaking
	if !speaking {
		w.pending = w.pending[:0]
		w.points = w.points[:0]
		w.env = 0
	}
}

// Speaking reports whether the sway is active.
func (w *Wobble) Speaking() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.speaking
}

// Feed taps outgoing playback PCM. Samples are mono or interleaved
// PCM16 at the given rate; multi-channel audio should be downmixed by
// the caller.
func (w *Wobble) Feed(samples []int16, rate int) {
	if len(samples) == 0 || rate <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.rate != rate {
		w.rate = rate
		w.pending = w.pending[:0]
	}
	for _, s := range samples {
		w.pending = append(w.pending, float64(s)/32768.0)
	}

	hop := rate * wobbleHopMS / 1000
	if hop <= 0 {
		return
	}
	now := time.Now()
	hopDur := time.Duration(wobbleHopMS) * time.Millisecond
	i := 0
	for len(w.pending) >= hop {
		level := loudness(w.pending[:hop])
		w.pending = w.pending[hop:]

		// Envelope follower smooths hop-to-hop jumps.
		w.env += envFollowGain * (level - w.env)
		w.points = append(w.points, envPoint{at: now.Add(time.Duration(i) * hopDur), level: w.env})
		i++
	}
	w.pruneLocked(now)
}

// Sample returns the sway contribution at now.
func (w *Wobble) Sample(now time.Time) pose.Pose {
	w.mu.Lock()
	if !w.speaking {
		w.mu.Unlock()
		return pose.Pose{}
	}
	level, ok := w.levelAtLocked(now.Add(-w.cfg.LatencyCompensation))
	w.mu.Unlock()

	if !ok {
		level = w.cfg.NoiseScale * pseudoNoise(now.Sub(w.start).Seconds())
	}

	t := now.Sub(w.start).Seconds()
	var p pose.Pose
	p.Set(pose.HeadPitch, clampMag(
		level*w.cfg.PitchAmplitude*math.Sin(2*math.Pi*w.cfg.PitchFrequency*t+wobblePhasePitch),
		w.cfg.MaxPitch))
	p.Set(pose.HeadYaw, clampMag(
		level*w.cfg.YawAmplitude*math.Sin(2*math.Pi*w.cfg.YawFrequency*t+wobblePhaseYaw),
		w.cfg.MaxYaw))
	p.Set(pose.HeadRoll, clampMag(
		level*w.cfg.RollAmplitude*math.Sin(2*math.Pi*w.cfg.RollFrequency*t+wobblePhaseRoll),
		w.cfg.MaxRoll))
	return p
}

// levelAtLocked returns the most recent envelope level at or before t.
func (w *Wobble) levelAtLocked(t time.Time) (float64, bool) {
	for i := len(w.points) - 1; i >= 0; i-- {
		if !w.points[i].at.After(t) {
			return w.points[i].level, true
		}
	}
	return 0, false
}

func (w *Wobble) pruneLocked(now time.Time) {
	cutoff := now.Add(-envRetention)
	i := 0
	for i < len(w.points) && w.points[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.points = append(w.points[:0], w.points[i:]...)
	}
}

// loudness maps a hop of normalized samples to [0, 1] through dBFS.
func loudness(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	norm := (db - wobbleDBLow) / (wobbleDBHigh - wobbleDBLow)
	if norm < 0 {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}
	return math.Pow(norm, wobbleGamma)
}

// pseudoNoise is a smooth deterministic stand-in for a playback
// envelope, in [0, 1].
func pseudoNoise(t float64) float64 {
	v := 0.5 + 0.35*math.Sin(2*math.Pi*0.9*t+1.3) + 0.15*math.Sin(2*math.Pi*1.7*t)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampMag(v, max float64) float64 {
	if max <= 0 {
		return v
	}
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}
