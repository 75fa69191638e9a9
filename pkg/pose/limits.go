package pose

import (
	"fmt"
	"math"
)

// Safety bounds per axis. The control daemon clamps again on its side;
// these keep blended targets inside the envelope before dispatch.
const (
	MaxHeadRoll     = 0.35 // radians
	MaxHeadPitch    = 0.52 // radians
	MaxHeadYaw      = 0.70 // radians
	MaxHeadZ        = 0.02 // meters of head travel
	MaxBodyYaw      = 2.8  // radians
	MaxAntennaAngle = 2.9  // radians
)

// Range bounds one axis.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp forces v into the range.
func (r Range) Clamp(v float64) float64 {
	return math.Min(math.Max(v, r.Min), r.Max)
}

// Limits holds per-axis safety bounds.
type Limits struct {
	ranges [axisCount]Range
}

// DefaultLimits returns the Reachy Mini safety envelope.
func DefaultLimits() Limits {
	var l Limits
	l.SetRange(HeadRoll, -MaxHeadRoll, MaxHeadRoll)
	l.SetRange(HeadPitch, -MaxHeadPitch, MaxHeadPitch)
	l.SetRange(HeadYaw, -MaxHeadYaw, MaxHeadYaw)
	l.SetRange(HeadZ, -MaxHeadZ, MaxHeadZ)
	l.SetRange(BodyYaw, -MaxBodyYaw, MaxBodyYaw)
	l.SetRange(AntennaLeft, -MaxAntennaAngle, MaxAntennaAngle)
	l.SetRange(AntennaRight, -MaxAntennaAngle, MaxAntennaAngle)
	return l
}

// SetRange sets the bounds for one axis.
func (l *Limits) SetRange(a Axis, min, max float64) {
	l.ranges[a] = Range{Min: min, Max: max}
}

// Range returns the bounds for one axis.
func (l Limits) Range(a Axis) Range {
	return l.ranges[a]
}

// Clamp forces every set axis of p into its range. Absent axes are
// left absent.
func (l Limits) Clamp(p Pose) Pose {
	for i := range p.values {
		if p.set[i] {
			p.values[i] = l.ranges[i].Clamp(p.values[i])
		}
	}
	return p
}

// Validate checks that every axis has a usable range. Called once at
// startup so a bad config fails fast instead of freezing an axis.
func (l Limits) Validate() error {
	for i, r := range l.ranges {
		if math.IsNaN(r.Min) || math.IsNaN(r.Max) {
			return fmt.Errorf("limit for %s is NaN", Axis(i))
		}
		if r.Min >= r.Max {
			return fmt.Errorf("limit for %s has min %.3f >= max %.3f", Axis(i), r.Min, r.Max)
		}
	}
	return nil
}
