package motion

import (
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-embody/pkg/pose"
)

func testIdleConfig() IdleLookConfig {
	return IdleLookConfig{
		MinLookInterval:     time.Second,
		MaxLookInterval:     2 * time.Second,
		YawRange:            0.5,
		PitchRange:          0.2,
		RollRange:           0.1,
		PauseOnInteraction:  true,
		InteractionCooldown: 3 * time.Second,
	}
}

func seededIdleLook(cfg IdleLookConfig, seed int64) *IdleLook {
	l := NewIdleLook(cfg, nil)
	l.rng = rand.New(rand.NewSource(seed))
	return l
}

func TestIdleLookTargetsWithinRanges(t *testing.T) {
	cfg := testIdleConfig()
	l := seededIdleLook(cfg, 42)

	now := time.Now()
	for i := 0; i < 100; i++ {
		p := l.Sample(now)
		if v := p.Value(pose.HeadYaw); math.Abs(v) > cfg.YawRange {
			t.Fatalf("yaw %v outside range %v", v, cfg.YawRange)
		}
		if v := p.Value(pose.HeadPitch); math.Abs(v) > cfg.PitchRange {
			t.Fatalf("pitch %v outside range %v", v, cfg.PitchRange)
		}
		if v := p.Value(pose.HeadRoll); math.Abs(v) > cfg.RollRange {
			t.Fatalf("roll %v outside range %v", v, cfg.RollRange)
		}
		// Advance past the longest look interval to force a re-pick.
		now = now.Add(cfg.MaxLookInterval + time.Second)
	}
}

func TestIdleLookHoldsTargetBetweenLooks(t *testing.T) {
	cfg := testIdleConfig()
	cfg.DoubleLookChance = 0
	cfg.ReturnToNeutralChance = 0
	l := seededIdleLook(cfg, 1)

	now := time.Now()
	first := l.Sample(now)
	if first.IsZero() {
		t.Fatal("no look target on first sample")
	}
	again := l.Sample(now.Add(100 * time.Millisecond))
	if first != again {
		t.Errorf("target changed before the look interval: %v then %v", first, again)
	}
}

func TestIdleLookSuspendedDuringInteraction(t *testing.T) {
	cfg := testIdleConfig()
	l := seededIdleLook(cfg, 3)

	now := time.Now()
	if l.Sample(now).IsZero() {
		t.Fatal("no look target while idle")
	}

	l.NoteInteraction()
	if p := l.Sample(time.Now()); !p.IsZero() {
		t.Errorf("idle look active during interaction: %v", p)
	}

	// Once the cooldown elapses, wandering resumes.
	resumeAt := time.Now().Add(cfg.InteractionCooldown + time.Second)
	if p := l.Sample(resumeAt); p.IsZero() {
		t.Error("idle look still suspended after interaction cooldown")
	}
}

func TestIdleLookReturnsToNeutral(t *testing.T) {
	cfg := testIdleConfig()
	cfg.ReturnToNeutralChance = 1
	cfg.DoubleLookChance = 0
	l := seededIdleLook(cfg, 5)

	now := time.Now()
	if l.Sample(now).IsZero() {
		t.Fatal("first look should pick a target, not neutral")
	}
	now = now.Add(cfg.MaxLookInterval + time.Second)
	if p := l.Sample(now); !p.IsZero() {
		t.Errorf("second look = %v, want return to neutral", p)
	}
}

func TestIdleLookDoubleLookSchedulesSoon(t *testing.T) {
	cfg := testIdleConfig()
	cfg.DoubleLookChance = 1
	cfg.ReturnToNeutralChance = 0
	l := seededIdleLook(cfg, 9)

	now := time.Now()
	l.Sample(now)
	if gap := l.nextLookAt.Sub(now); gap < doubleLookMin || gap > doubleLookMax {
		t.Fatalf("double look scheduled %v out, want within [%v, %v]", gap, doubleLookMin, doubleLookMax)
	}

	// The double itself must not chain another double.
	now = l.nextLookAt.Add(time.Millisecond)
	l.Sample(now)
	if gap := l.nextLookAt.Sub(now); gap < cfg.MinLookInterval {
		t.Errorf("look after a double scheduled %v out, want at least %v", gap, cfg.MinLookInterval)
	}
}

func TestIdleLookEmitsCuriosityCue(t *testing.T) {
	cfg := testIdleConfig()
	cfg.CuriosityChance = 1
	cfg.DoubleLookChance = 0
	cfg.ReturnToNeutralChance = 0
	l := seededIdleLook(cfg, 11)

	var mu sync.Mutex
	var cues []string
	l.OnCue(func(cue string) {
		mu.Lock()
		cues = append(cues, cue)
		mu.Unlock()
	})

	l.Sample(time.Now())
	mu.Lock()
	defer mu.Unlock()
	if len(cues) != 1 || cues[0] != CueCurious {
		t.Errorf("cues = %v, want one %q", cues, CueCurious)
	}
}

func TestBreathingWaveform(t *testing.T) {
	cfg := BreathingConfig{
		Enabled:          true,
		Frequency:        0.25, // 4s period
		PitchAmplitude:   0.02,
		RollAmplitude:    0.01,
		ZAmplitude:       0.003,
		AntennaAmplitude: 0.1,
		AntennaBaseAngle: 0.15,
	}
	b := NewBreathing(cfg)

	// Phase zero: everything at rest except the antenna base angle.
	p0 := b.Sample(b.start)
	if !floatEquals(p0.Value(pose.HeadPitch), 0) {
		t.Errorf("pitch at phase 0 = %v, want 0", p0.Value(pose.HeadPitch))
	}
	if !floatEquals(p0.Value(pose.AntennaLeft), cfg.AntennaBaseAngle) {
		t.Errorf("left antenna at phase 0 = %v, want base %v", p0.Value(pose.AntennaLeft), cfg.AntennaBaseAngle)
	}

	// Quarter period: pitch at full amplitude.
	p1 := b.Sample(b.start.Add(time.Second))
	if !floatEquals(p1.Value(pose.HeadPitch), cfg.PitchAmplitude) {
		t.Errorf("pitch at quarter period = %v, want %v", p1.Value(pose.HeadPitch), cfg.PitchAmplitude)
	}
}

func TestBreathingAntennasMirror(t *testing.T) {
	cfg := DefaultConfig().Breathing
	b := NewBreathing(cfg)

	for i := 0; i < 50; i++ {
		p := b.Sample(b.start.Add(time.Duration(i) * 137 * time.Millisecond))
		left := p.Value(pose.AntennaLeft)
		right := p.Value(pose.AntennaRight)
		if !floatEquals(left, -right) {
			t.Fatalf("antennas not mirrored: left %v, right %v", left, right)
		}
	}
}

func TestBreathingDisabled(t *testing.T) {
	cfg := DefaultConfig().Breathing
	cfg.Enabled = false
	b := NewBreathing(cfg)
	if p := b.Sample(time.Now()); !p.IsZero() {
		t.Errorf("disabled breathing contributed %v", p)
	}
}

func testWobbleConfig() WobbleConfig {
	cfg := DefaultConfig().Wobble
	cfg.LatencyCompensation = 0
	return cfg
}

// loudPCM returns one second of loud PCM16 at the rate.
func loudPCM(rate int) []int16 {
	samples := make([]int16, rate)
	for i := range samples {
		samples[i] = 12000
	}
	return samples
}

func TestWobbleInactiveWhenNotSpeaking(t *testing.T) {
	w := NewWobble(testWobbleConfig())
	w.Feed(loudPCM(16000), 16000)
	if p := w.Sample(time.Now()); !p.IsZero() {
		t.Errorf("wobble contributed %v while not speaking", p)
	}
}

func TestWobbleFollowsPlaybackEnvelope(t *testing.T) {
	w := NewWobble(testWobbleConfig())
	w.SetSpeaking(true)
	w.Feed(loudPCM(16000), 16000)

	p := w.Sample(time.Now())
	if p.IsZero() {
		t.Fatal("no wobble contribution during loud playback")
	}
	if !p.Has(pose.HeadPitch) || !p.Has(pose.HeadYaw) || !p.Has(pose.HeadRoll) {
		t.Error("wobble must set all three head rotation axes")
	}
	if p.Has(pose.AntennaLeft) || p.Has(pose.BodyYaw) || p.Has(pose.HeadZ) {
		t.Error("wobble must only touch head rotation axes")
	}
}

func TestWobbleRespectsAxisCaps(t *testing.T) {
	cfg := testWobbleConfig()
	cfg.PitchAmplitude = 10
	cfg.MaxPitch = 0.01
	w := NewWobble(cfg)
	w.SetSpeaking(true)
	w.Feed(loudPCM(16000), 16000)

	for i := 0; i < 40; i++ {
		p := w.Sample(time.Now().Add(time.Duration(i) * 33 * time.Millisecond))
		if v := math.Abs(p.Value(pose.HeadPitch)); v > cfg.MaxPitch+1e-9 {
			t.Fatalf("pitch %v exceeds cap %v", v, cfg.MaxPitch)
		}
	}
}

func TestWobbleNoiseFallback(t *testing.T) {
	cfg := testWobbleConfig()
	cfg.NoiseScale = 1
	w := NewWobble(cfg)
	w.SetSpeaking(true)

	// No envelope fed: synthetic noise drives the sway.
	moved := false
	for i := 0; i < 20 && !moved; i++ {
		p := w.Sample(w.start.Add(time.Duration(i) * 100 * time.Millisecond))
		if math.Abs(p.Value(pose.HeadPitch)) > 1e-6 || math.Abs(p.Value(pose.HeadYaw)) > 1e-6 {
			moved = true
		}
	}
	if !moved {
		t.Error("no synthetic sway without a playback envelope")
	}
}

func TestWobbleLatencyCompensationShiftsReads(t *testing.T) {
	cfg := testWobbleConfig()
	cfg.LatencyCompensation = 100 * time.Millisecond
	cfg.NoiseScale = 0
	w := NewWobble(cfg)
	w.SetSpeaking(true)

	now := time.Now()
	w.Feed(loudPCM(16000), 16000)

	// The envelope starts roughly now; a read shifted 100ms back lands
	// before it, so there is nothing to drive the sway yet.
	early := w.Sample(now.Add(10 * time.Millisecond))
	if v := math.Abs(early.Value(pose.HeadPitch)); v > 1e-9 {
		t.Errorf("sway %v before compensated envelope time, want none", v)
	}

	late := w.Sample(now.Add(300 * time.Millisecond))
	if late.IsZero() {
		t.Error("no sway once the compensated read reaches the envelope")
	}
}

func TestWobbleStopClearsEnvelope(t *testing.T) {
	w := NewWobble(testWobbleConfig())
	w.SetSpeaking(true)
	w.Feed(loudPCM(16000), 16000)
	w.SetSpeaking(false)

	if len(w.points) != 0 {
		t.Errorf("envelope retained %d points after speech ended", len(w.points))
	}
	if p := w.Sample(time.Now()); !p.IsZero() {
		t.Errorf("wobble contributed %v after speech ended", p)
	}
}

func TestPseudoNoiseBounded(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := pseudoNoise(float64(i) * 0.0173)
		if v < 0 || v > 1 {
			t.Fatalf("pseudoNoise(%v) = %v outside [0, 1]", float64(i)*0.0173, v)
		}
	}
}

func TestCommandHoldAndExpiry(t *testing.T) {
	c := NewCommand()
	target := pose.HeadOffset(0, 0.1, 0.2)

	c.Set(target, 50*time.Millisecond)
	if !c.Active() {
		t.Fatal("command inactive right after Set")
	}
	if p := c.Sample(time.Now()); p != target {
		t.Errorf("Sample = %v, want %v", p, target)
	}

	if p := c.Sample(time.Now().Add(time.Second)); !p.IsZero() {
		t.Errorf("Sample = %v after hold expired, want nothing", p)
	}
	if c.Active() {
		t.Error("command still active after expiry")
	}
}

func TestCommandIndefiniteHold(t *testing.T) {
	c := NewCommand()
	target := pose.Body(0.4)

	c.Set(target, 0)
	if p := c.Sample(time.Now().Add(time.Hour)); p != target {
		t.Errorf("Sample = %v, want indefinite hold %v", p, target)
	}

	c.Clear()
	if p := c.Sample(time.Now()); !p.IsZero() {
		t.Errorf("Sample = %v after Clear, want nothing", p)
	}
}
