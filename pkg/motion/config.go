package motion

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-embody/pkg/pose"
)

// Config holds blend engine parameters.
type Config struct {
	// TickRate is the internal blend loop frequency in Hz.
	TickRate int `yaml:"tick_rate" json:"tick_rate"`

	// CommandRate is the dispatch frequency in Hz. Must divide
	// TickRate; intermediate ticks only update internal state.
	CommandRate int `yaml:"command_rate" json:"command_rate"`

	// SmoothingFactor is the per-tick exponential smoothing factor in
	// (0, 1], applied independently per source layer.
	SmoothingFactor float64 `yaml:"smoothing_factor" json:"smoothing_factor"`

	// DispatchDuration is the interpolation window, in seconds, sent
	// with each pose target.
	DispatchDuration float64 `yaml:"dispatch_duration" json:"dispatch_duration"`

	// MaxStepRad caps how far any axis may move from the last
	// dispatched pose in a single dispatch.
	MaxStepRad float64 `yaml:"max_step_rad" json:"max_step_rad"`

	// Dead-zone thresholds. A dispatch is skipped when every group
	// moved less than its threshold since the last send. Zero disables
	// the dead zone for that group.
	HeadDeadZone    float64 `yaml:"head_dead_zone" json:"head_dead_zone"`
	LiftDeadZone    float64 `yaml:"lift_dead_zone" json:"lift_dead_zone"`
	AntennaDeadZone float64 `yaml:"antenna_dead_zone" json:"antenna_dead_zone"`
	BodyDeadZone    float64 `yaml:"body_dead_zone" json:"body_dead_zone"`

	// PauseThreshold is the run of consecutive dispatch failures that
	// switches the engine to paused dispatch. Blending continues;
	// sending resumes only after NotifyDaemonHealthy.
	PauseThreshold int `yaml:"pause_threshold" json:"pause_threshold"`

	// Limits is the safety envelope applied to every composite pose.
	// Assembled in code, not from config files.
	Limits pose.Limits `yaml:"-" json:"-"`

	IdleLook  IdleLookConfig  `yaml:"idle_look" json:"idle_look"`
	Breathing BreathingConfig `yaml:"breathing" json:"breathing"`
	Wobble    WobbleConfig    `yaml:"wobble" json:"wobble"`
}

// IdleLookConfig tunes the ambient wandering gaze.
type IdleLookConfig struct {
	// Look interval is drawn uniformly from [Min, Max].
	MinLookInterval time.Duration `yaml:"min_look_interval" json:"min_look_interval"`
	MaxLookInterval time.Duration `yaml:"max_look_interval" json:"max_look_interval"`

	// Target ranges, radians, symmetric around neutral.
	YawRange   float64 `yaml:"yaw_range" json:"yaw_range"`
	PitchRange float64 `yaml:"pitch_range" json:"pitch_range"`
	RollRange  float64 `yaml:"roll_range" json:"roll_range"`

	// CuriosityChance attaches an emotion cue to a look.
	CuriosityChance float64 `yaml:"curiosity_chance" json:"curiosity_chance"`

	// DoubleLookChance schedules an immediate second look.
	DoubleLookChance float64 `yaml:"double_look_chance" json:"double_look_chance"`

	// ReturnToNeutralChance recenters instead of picking a new target.
	ReturnToNeutralChance float64 `yaml:"return_to_neutral_chance" json:"return_to_neutral_chance"`

	// PauseOnInteraction suspends wandering while the robot is
	// interacting; wandering resumes InteractionCooldown after the
	// last interaction event.
	PauseOnInteraction  bool          `yaml:"pause_on_interaction" json:"pause_on_interaction"`
	InteractionCooldown time.Duration `yaml:"interaction_cooldown" json:"interaction_cooldown"`
}

// BreathingConfig tunes the always-on breathing sway.
type BreathingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Frequency in breath cycles per second.
	Frequency float64 `yaml:"frequency" json:"frequency"`

	// Amplitudes in radians (meters for Z).
	PitchAmplitude   float64 `yaml:"pitch_amplitude" json:"pitch_amplitude"`
	RollAmplitude    float64 `yaml:"roll_amplitude" json:"roll_amplitude"`
	ZAmplitude       float64 `yaml:"z_amplitude" json:"z_amplitude"`
	AntennaAmplitude float64 `yaml:"antenna_amplitude" json:"antenna_amplitude"`

	// AntennaBaseAngle is the resting angle the sway oscillates
	// around, mirrored between the two antennas.
	AntennaBaseAngle float64 `yaml:"antenna_base_angle" json:"antenna_base_angle"`
}

// WobbleConfig tunes speech-synchronized head sway.
type WobbleConfig struct {
	// Oscillator frequencies in Hz.
	PitchFrequency float64 `yaml:"pitch_frequency" json:"pitch_frequency"`
	YawFrequency   float64 `yaml:"yaw_frequency" json:"yaw_frequency"`
	RollFrequency  float64 `yaml:"roll_frequency" json:"roll_frequency"`

	// Full-envelope amplitudes in radians.
	PitchAmplitude float64 `yaml:"pitch_amplitude" json:"pitch_amplitude"`
	YawAmplitude   float64 `yaml:"yaw_amplitude" json:"yaw_amplitude"`
	RollAmplitude  float64 `yaml:"roll_amplitude" json:"roll_amplitude"`

	// Hard per-axis magnitude caps on the wobble contribution.
	MaxPitch float64 `yaml:"max_pitch" json:"max_pitch"`
	MaxYaw   float64 `yaml:"max_yaw" json:"max_yaw"`
	MaxRoll  float64 `yaml:"max_roll" json:"max_roll"`

	// LatencyCompensation shifts envelope reads back in time so sway
	// lines up with audible output.
	LatencyCompensation time.Duration `yaml:"latency_compensation" json:"latency_compensation"`

	// NoiseScale drives synthetic sway when no playback envelope is
	// available while speaking.
	NoiseScale float64 `yaml:"noise_scale" json:"noise_scale"`
}

// DefaultConfig returns production blend engine defaults.
func DefaultConfig() Config {
	return Config{
		TickRate:         100,
		CommandRate:      20,
		SmoothingFactor:  0.25,
		DispatchDuration: 0.1,
		MaxStepRad:       0.05,
		HeadDeadZone:     0.005,
		LiftDeadZone:     0.001,
		AntennaDeadZone:  0.009,
		BodyDeadZone:     0.009,
		PauseThreshold:   10,
		Limits:           pose.DefaultLimits(),
		IdleLook: IdleLookConfig{
			MinLookInterval:       4 * time.Second,
			MaxLookInterval:       10 * time.Second,
			YawRange:              0.5,
			PitchRange:            0.2,
			RollRange:             0.1,
			CuriosityChance:       0.15,
			DoubleLookChance:      0.2,
			ReturnToNeutralChance: 0.35,
			PauseOnInteraction:    true,
			InteractionCooldown:   3 * time.Second,
		},
		Breathing: BreathingConfig{
			Enabled:          true,
			Frequency:        0.3,
			PitchAmplitude:   0.02,
			RollAmplitude:    0.01,
			ZAmplitude:       0.003,
			AntennaAmplitude: 0.1,
			AntennaBaseAngle: 0.1,
		},
		Wobble: WobbleConfig{
			PitchFrequency:      2.2,
			YawFrequency:        0.6,
			RollFrequency:       1.3,
			PitchAmplitude:      0.078,
			YawAmplitude:        0.13,
			RollAmplitude:       0.039,
			MaxPitch:            0.1,
			MaxYaw:              0.16,
			MaxRoll:             0.05,
			LatencyCompensation: 150 * time.Millisecond,
			NoiseScale:          0.3,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be positive, got %d", c.TickRate)
	}
	if c.CommandRate <= 0 || c.CommandRate > c.TickRate {
		return fmt.Errorf("command_rate must be in [1, tick_rate], got %d", c.CommandRate)
	}
	if c.TickRate%c.CommandRate != 0 {
		return fmt.Errorf("command_rate %d must divide tick_rate %d", c.CommandRate, c.TickRate)
	}
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		return fmt.Errorf("smoothing_factor must be in (0, 1], got %v", c.SmoothingFactor)
	}
	if c.DispatchDuration <= 0 {
		return fmt.Errorf("dispatch_duration must be positive, got %v", c.DispatchDuration)
	}
	if c.MaxStepRad <= 0 {
		return fmt.Errorf("max_step_rad must be positive, got %v", c.MaxStepRad)
	}
	if c.PauseThreshold <= 0 {
		return fmt.Errorf("pause_threshold must be positive, got %d", c.PauseThreshold)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if c.IdleLook.MinLookInterval <= 0 || c.IdleLook.MaxLookInterval < c.IdleLook.MinLookInterval {
		return fmt.Errorf("idle look intervals invalid: [%v, %v]",
			c.IdleLook.MinLookInterval, c.IdleLook.MaxLookInterval)
	}
	if c.Breathing.Enabled && c.Breathing.Frequency <= 0 {
		return fmt.Errorf("breathing frequency must be positive, got %v", c.Breathing.Frequency)
	}
	return nil
}
