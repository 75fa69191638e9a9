package privacy

import (
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-embody/pkg/attention"
	"github.com/teslashibe/go-embody/pkg/pose"
)

func newIndicator(t *testing.T) *Indicator {
	t.Helper()
	ind, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ind
}

func TestAntennaAxesOnly(t *testing.T) {
	ind := newIndicator(t)
	states := []attention.State{attention.Passive, attention.Alert, attention.Engaged}

	for _, s := range states {
		ind.SetState(s)
		ind.SetRecording(true)
		p := ind.Sample(time.Now())

		if !p.Has(pose.AntennaLeft) || !p.Has(pose.AntennaRight) {
			t.Errorf("state %v: antenna axes not set", s)
		}
		for _, a := range []pose.Axis{pose.HeadRoll, pose.HeadPitch, pose.HeadYaw, pose.HeadZ, pose.BodyYaw} {
			if p.Has(a) {
				t.Errorf("state %v: indicator set %v, must leave it to other sources", s, a)
			}
		}
	}
}

func TestPosturePerState(t *testing.T) {
	cfg := DefaultConfig()
	ind := newIndicator(t)

	tests := []struct {
		state attention.State
		angle float64
	}{
		{attention.Passive, cfg.PassiveAngle},
		{attention.Alert, cfg.AlertAngle},
		{attention.Engaged, cfg.EngagedAngle},
	}
	for _, tt := range tests {
		ind.SetState(tt.state)
		p := ind.Sample(time.Now())
		if got := p.Value(pose.AntennaLeft); got != tt.angle {
			t.Errorf("state %v: left antenna = %v, want %v", tt.state, got, tt.angle)
		}
		if got := p.Value(pose.AntennaRight); got != -tt.angle {
			t.Errorf("state %v: right antenna = %v, want %v", tt.state, got, -tt.angle)
		}
	}
}

func TestWiggleOnlyWhileEngagedRecording(t *testing.T) {
	cfg := DefaultConfig()
	ind := newIndicator(t)

	// Sampling across a wiggle period: posture must stay fixed unless
	// engaged and recording.
	steady := func() bool {
		base := ind.Sample(ind.start)
		for i := 1; i <= 8; i++ {
			at := ind.start.Add(time.Duration(i) * time.Duration(float64(time.Second)/(8*cfg.WiggleFrequency)))
			if ind.Sample(at) != base {
				return false
			}
		}
		return true
	}

	ind.SetState(attention.Engaged)
	ind.SetRecording(false)
	if !steady() {
		t.Error("antennas moved while engaged but not recording")
	}

	ind.SetState(attention.Alert)
	ind.SetRecording(true)
	if !steady() {
		t.Error("antennas moved while recording outside engaged state")
	}

	ind.SetState(attention.Engaged)
	if steady() {
		t.Error("no wiggle while engaged and recording")
	}
}

func TestWiggleStaysWithinAmplitude(t *testing.T) {
	cfg := DefaultConfig()
	ind := newIndicator(t)
	ind.SetState(attention.Engaged)
	ind.SetRecording(true)

	for i := 0; i < 100; i++ {
		p := ind.Sample(ind.start.Add(time.Duration(i) * 7 * time.Millisecond))
		dev := math.Abs(p.Value(pose.AntennaLeft) - cfg.EngagedAngle)
		if dev > cfg.WiggleAmplitude+1e-9 {
			t.Fatalf("left antenna deviates %v, max wiggle %v", dev, cfg.WiggleAmplitude)
		}
	}
}

func TestValidateRejectsNegativeAmplitude(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WiggleAmplitude = -0.1
	if _, err := New(cfg); err == nil {
		t.Error("New accepted negative wiggle amplitude")
	}
}
