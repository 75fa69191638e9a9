// Package daemon is the client for the robot control daemon's HTTP
// API. The blend engine is the daemon's only pose writer; everything
// that moves the robot funnels through a Dispatcher.
package daemon

import (
	"context"

	"github.com/teslashibe/go-embody/pkg/pose"
)

// StateRunning is the daemon state that accepts pose targets.
const StateRunning = "running"

// HeadTarget is the head group of a dispatch payload.
type HeadTarget struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Z     float64 `json:"z"`
}

// Target is one pose dispatch. Nil groups leave that group untouched
// on the daemon side. Within a present head group, axes the engine did
// not set dispatch as neutral; that is safe because this process is
// the daemon's sole pose writer.
type Target struct {
	Head     *HeadTarget `json:"target_head_pose"`
	Antennas *[2]float64 `json:"target_antennas"`
	BodyYaw  *float64    `json:"target_body_yaw"`
	Duration float64     `json:"duration"`
}

// IsEmpty reports whether the target carries no groups at all.
func (t Target) IsEmpty() bool {
	return t.Head == nil && t.Antennas == nil && t.BodyYaw == nil
}

// TargetFromPose converts a partial pose into a dispatch payload.
// Groups with no set axes become nil rather than neutral so the
// daemon holds their last target.
func TargetFromPose(p pose.Pose, duration float64) Target {
	t := Target{Duration: duration}

	if p.Has(pose.HeadRoll) || p.Has(pose.HeadPitch) || p.Has(pose.HeadYaw) || p.Has(pose.HeadZ) {
		t.Head = &HeadTarget{
			Roll:  p.Value(pose.HeadRoll),
			Pitch: p.Value(pose.HeadPitch),
			Yaw:   p.Value(pose.HeadYaw),
			Z:     p.Value(pose.HeadZ),
		}
	}
	if p.Has(pose.AntennaLeft) || p.Has(pose.AntennaRight) {
		t.Antennas = &[2]float64{p.Value(pose.AntennaLeft), p.Value(pose.AntennaRight)}
	}
	if p.Has(pose.BodyYaw) {
		yaw := p.Value(pose.BodyYaw)
		t.BodyYaw = &yaw
	}
	return t
}

// Dispatcher sends pose targets to the control daemon.
type Dispatcher interface {
	SetTarget(ctx context.Context, t Target) error
}

// StatusProber queries daemon liveness.
type StatusProber interface {
	Status(ctx context.Context) (string, error)
}
