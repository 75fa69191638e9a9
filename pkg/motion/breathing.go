package motion

import (
	"math"
	"time"

	"github.com/teslashibe/go-embody/pkg/pose"
)

// Breathing is the always-on resting sway: a slow pitch-led
// oscillation with subtler roll and lift at detuned multiples, plus
// mirrored antenna sway around the resting angle. Stateless; the
// phase derives from the sample time.
type Breathing struct {
	cfg   BreathingConfig
	start time.Time
}

// NewBreathing creates the breathing source.
func NewBreathing(cfg BreathingConfig) *Breathing {
	return &Breathing{cfg: cfg, start: time.Now()}
}

// Kind returns KindBreathing.
func (b *Breathing) Kind() Kind {
	return KindBreathing
}

// Sample returns the breathing contribution at now.
func (b *Breathing) Sample(now time.Time) pose.Pose {
	if !b.cfg.Enabled {
		return pose.Pose{}
	}

	phase := now.Sub(b.start).Seconds() * b.cfg.Frequency * 2 * math.Pi

	var p pose.Pose
	p.Set(pose.HeadPitch, b.cfg.PitchAmplitude*math.Sin(phase))
	p.Set(pose.HeadRoll, b.cfg.RollAmplitude*math.Sin(phase*0.7))
	p.Set(pose.HeadZ, b.cfg.ZAmplitude*math.Sin(phase))

	sway := b.cfg.AntennaAmplitude * math.Sin(phase*1.2)
	p.Set(pose.AntennaLeft, b.cfg.AntennaBaseAngle+sway)
	p.Set(pose.AntennaRight, -b.cfg.AntennaBaseAngle-sway)
	return p
}
