// Package pose models partial robot poses for the embodiment loop.
//
// A Pose carries values for a subset of the controllable axes. Motion
// sources produce partial poses that the blend engine fuses, so "axis
// absent" and "axis at zero" are distinct states.
package pose

import (
	"fmt"
	"strings"
)

// Axis identifies one controllable degree of freedom.
type Axis int

const (
	HeadRoll Axis = iota
	HeadPitch
	HeadYaw
	HeadZ
	BodyYaw
	AntennaLeft
	AntennaRight

	axisCount
)

var axisNames = [axisCount]string{
	"head_roll",
	"head_pitch",
	"head_yaw",
	"head_z",
	"body_yaw",
	"antenna_left",
	"antenna_right",
}

func (a Axis) String() string {
	if a < 0 || a >= axisCount {
		return fmt.Sprintf("axis(%d)", int(a))
	}
	return axisNames[a]
}

// Axes returns every axis in dispatch order.
func Axes() []Axis {
	out := make([]Axis, axisCount)
	for i := range out {
		out[i] = Axis(i)
	}
	return out
}

// Pose is a partial pose. The zero value has no axes set and
// contributes nothing when blended.
type Pose struct {
	values [axisCount]float64
	set    [axisCount]bool
}

// Set assigns a value to an axis.
func (p *Pose) Set(a Axis, v float64) {
	p.values[a] = v
	p.set[a] = true
}

// Clear removes an axis from the pose.
func (p *Pose) Clear(a Axis) {
	p.values[a] = 0
	p.set[a] = false
}

// With returns a copy of the pose with one axis assigned.
func (p Pose) With(a Axis, v float64) Pose {
	p.Set(a, v)
	return p
}

// Get returns the axis value and whether it is set.
func (p Pose) Get(a Axis) (float64, bool) {
	return p.values[a], p.set[a]
}

// Value returns the axis value, or zero when absent.
func (p Pose) Value(a Axis) float64 {
	return p.values[a]
}

// Has reports whether the axis is set.
func (p Pose) Has(a Axis) bool {
	return p.set[a]
}

// IsZero reports whether no axes are set.
func (p Pose) IsZero() bool {
	for _, s := range p.set {
		if s {
			return false
		}
	}
	return true
}

// Add returns the axis-wise sum of two poses. An axis is set in the
// result when it is set in either operand.
func (p Pose) Add(q Pose) Pose {
	var out Pose
	for i := range out.values {
		if p.set[i] || q.set[i] {
			out.values[i] = p.values[i] + q.values[i]
			out.set[i] = true
		}
	}
	return out
}

// Override returns p with q's set axes replacing p's values.
func (p Pose) Override(q Pose) Pose {
	for i := range p.values {
		if q.set[i] {
			p.values[i] = q.values[i]
			p.set[i] = true
		}
	}
	return p
}

// Scale returns the pose with every set axis multiplied by f.
func (p Pose) Scale(f float64) Pose {
	for i := range p.values {
		if p.set[i] {
			p.values[i] *= f
		}
	}
	return p
}

// String renders the set axes for logging.
func (p Pose) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for i, s := range p.set {
		if !s {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %.3f", axisNames[i], p.values[i])
		first = false
	}
	b.WriteByte('}')
	return b.String()
}

// HeadOffset builds a pose for the head rotation axes.
func HeadOffset(roll, pitch, yaw float64) Pose {
	var p Pose
	p.Set(HeadRoll, roll)
	p.Set(HeadPitch, pitch)
	p.Set(HeadYaw, yaw)
	return p
}

// Antennas builds a pose for both antenna axes.
func Antennas(left, right float64) Pose {
	var p Pose
	p.Set(AntennaLeft, left)
	p.Set(AntennaRight, right)
	return p
}

// Body builds a pose for the body yaw axis.
func Body(yaw float64) Pose {
	var p Pose
	p.Set(BodyYaw, yaw)
	return p
}

// Lift builds a pose for the head height axis.
func Lift(z float64) Pose {
	var p Pose
	p.Set(HeadZ, z)
	return p
}
