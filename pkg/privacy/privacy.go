// Package privacy drives the antenna privacy indicator.
//
// Antenna posture is the robot's honest tell for how much it is
// listening: drooped while passive, half-raised while alert, fully
// raised while engaged, with a wiggle while audio is actually being
// recorded. The indicator is a command-priority motion source that
// claims only the antenna axes, so head and body stay with the
// ambient layers.
package privacy

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/teslashibe/go-embody/pkg/attention"
	"github.com/teslashibe/go-embody/pkg/motion"
	"github.com/teslashibe/go-embody/pkg/pose"
)

// Config maps attention states to antenna angles.
type Config struct {
	// Resting angles in radians, mirrored between the antennas.
	// Larger magnitude droops further down.
	PassiveAngle float64 `yaml:"passive_angle" json:"passive_angle"`
	AlertAngle   float64 `yaml:"alert_angle" json:"alert_angle"`
	EngagedAngle float64 `yaml:"engaged_angle" json:"engaged_angle"`

	// Wiggle applied while engaged and recording.
	WiggleAmplitude float64 `yaml:"wiggle_amplitude" json:"wiggle_amplitude"`
	WiggleFrequency float64 `yaml:"wiggle_frequency" json:"wiggle_frequency"`
}

// DefaultConfig returns the standard indicator angles.
func DefaultConfig() Config {
	return Config{
		PassiveAngle:    2.5,
		AlertAngle:      1.2,
		EngagedAngle:    0.15,
		WiggleAmplitude: 0.12,
		WiggleFrequency: 3.0,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.WiggleAmplitude < 0 {
		return fmt.Errorf("wiggle_amplitude must not be negative, got %v", c.WiggleAmplitude)
	}
	if c.WiggleAmplitude > 0 && c.WiggleFrequency <= 0 {
		return fmt.Errorf("wiggle_frequency must be positive, got %v", c.WiggleFrequency)
	}
	return nil
}

// Indicator renders the attention state on the antennas.
type Indicator struct {
	cfg   Config
	start time.Time

	mu        sync.Mutex
	state     attention.State
	recording bool
}

var _ motion.Source = (*Indicator)(nil)

// New creates an indicator starting in the passive posture.
func New(cfg Config) (*Indicator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Indicator{cfg: cfg, start: time.Now()}, nil
}

// SetState updates the displayed attention state.
func (ind *Indicator) SetState(s attention.State) {
	ind.mu.Lock()
	ind.state = s
	ind.mu.Unlock()
}

// SetRecording marks whether capture audio is currently being
// accumulated into a speech segment.
func (ind *Indicator) SetRecording(recording bool) {
	ind.mu.Lock()
	ind.recording = recording
	ind.mu.Unlock()
}

// Kind returns KindCommand: the indicator owns the antenna axes
// outright rather than adding to them.
func (ind *Indicator) Kind() motion.Kind {
	return motion.KindCommand
}

// Sample returns the antenna posture at now. Head and body axes are
// never set.
func (ind *Indicator) Sample(now time.Time) pose.Pose {
	ind.mu.Lock()
	state := ind.state
	recording := ind.recording
	ind.mu.Unlock()

	var angle float64
	switch state {
	case attention.Engaged:
		angle = ind.cfg.EngagedAngle
	case attention.Alert:
		angle = ind.cfg.AlertAngle
	default:
		angle = ind.cfg.PassiveAngle
	}

	var wiggle float64
	if state == attention.Engaged && recording && ind.cfg.WiggleAmplitude > 0 {
		t := now.Sub(ind.start).Seconds()
		wiggle = ind.cfg.WiggleAmplitude * math.Sin(2*math.Pi*ind.cfg.WiggleFrequency*t)
	}

	// The wiggle skews both antennas the same way so they wag side to
	// side against the mirrored base posture.
	return pose.Antennas(angle+wiggle, -angle+wiggle)
}
