package pose

import "math"

// releaseEpsilon is the magnitude below which a decaying axis is
// considered settled and dropped from the smoothed output.
const releaseEpsilon = 1e-4

// Smoother applies per-axis exponential smoothing toward a target
// pose. Each call moves the internal state a fixed fraction of the
// remaining distance, so step changes in the target become gradual
// motion at the tick rate.
type Smoother struct {
	factor float64
	state  [axisCount]float64
	active [axisCount]bool
}

// NewSmoother creates a smoother with the given per-tick factor in
// (0, 1]. A factor of 1 passes targets through unchanged.
func NewSmoother(factor float64) *Smoother {
	return &Smoother{factor: factor}
}

// Next advances one tick toward target and returns the smoothed pose.
// Axes absent from the target decay toward neutral and are released
// once they settle, so a source that stops contributing does not
// freeze an axis at its last value.
func (s *Smoother) Next(target Pose) Pose {
	var out Pose
	for i := range s.state {
		goal, ok := target.Get(Axis(i))
		if !ok {
			goal = 0
		}
		if !ok && !s.active[i] {
			continue
		}
		s.state[i] += s.factor * (goal - s.state[i])
		if !ok && math.Abs(s.state[i]) < releaseEpsilon {
			s.state[i] = 0
			s.active[i] = false
			continue
		}
		s.active[i] = true
		out.Set(Axis(i), s.state[i])
	}
	return out
}

// Reset clears the smoother state so the next target is adopted from
// neutral.
func (s *Smoother) Reset() {
	s.state = [axisCount]float64{}
	s.active = [axisCount]bool{}
}
