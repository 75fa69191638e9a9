// Package audiodev manages the audio devices shared between the
// embodiment loop and the robot control daemon.
//
// Supported backends:
//   - ALSA (Linux/Robot) - production capture and playback on the Pi
//   - WebRTC - remote intake from the robot's signalling server
//   - Mock - CI/testing without hardware
//
// The backend is selected automatically from the platform, or can be
// explicitly specified via configuration. A Manager wraps one source
// and one sink and adds retries, health monitoring, and exclusive
// input leasing on top.
package audiodev

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendALSA uses Linux ALSA devices via arecord/aplay.
	BackendALSA Backend = "alsa"
	// BackendWebRTC pulls audio from the robot's WebRTC producer.
	BackendWebRTC Backend = "webrtc"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio device configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (selects best available for platform)
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000 (native rate of the wake and VAD pipeline)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// FrameDuration is the size of capture frames.
	// Default: 20ms (320 samples at 16kHz)
	FrameDuration time.Duration `yaml:"frame_duration" json:"frame_duration"`

	// Device is the platform-specific device identifier.
	// Examples:
	//   - ALSA: "hw:0,0", "default", "plughw:1,0"
	//   - WebRTC/Mock: ignored
	Device string `yaml:"device" json:"device"`

	// SignalURL is the WebRTC signalling server, e.g.
	// "ws://192.168.68.80:8443". Required for the webrtc backend.
	SignalURL string `yaml:"signal_url" json:"signal_url"`

	// Producer is the WebRTC producer name to attach to.
	Producer string `yaml:"producer" json:"producer"`

	// InputWarmupFrames is how many capture frames to discard after
	// the source opens. Early frames carry DC offset and driver
	// garbage on the Pi.
	InputWarmupFrames int `yaml:"input_warmup_frames" json:"input_warmup_frames"`

	// OutputLeadIn is the silence prepended to each playback burst so
	// the output path is awake before real audio arrives.
	OutputLeadIn time.Duration `yaml:"output_lead_in" json:"output_lead_in"`

	// MaxInitRetries is how many times device initialization is
	// re-attempted after the first failure.
	MaxInitRetries int `yaml:"max_init_retries" json:"max_init_retries"`

	// RetryDelay is the base delay between initialization attempts.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`

	// RetryBackoff multiplies the delay after each failed attempt.
	RetryBackoff float64 `yaml:"retry_backoff" json:"retry_backoff"`

	// HealthInterval is how often device liveness is probed.
	HealthInterval time.Duration `yaml:"health_interval" json:"health_interval"`

	// MaxConsecutiveErrors is how many probe failures in a row mark
	// the device degraded.
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors" json:"max_consecutive_errors"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:              BackendAuto,
		SampleRate:           16000,
		Channels:             1,
		FrameDuration:        20 * time.Millisecond,
		Device:               "",
		Producer:             "reachymini",
		InputWarmupFrames:    5,
		OutputLeadIn:         150 * time.Millisecond,
		MaxInitRetries:       3,
		RetryDelay:           time.Second,
		RetryBackoff:         2.0,
		HealthInterval:       5 * time.Second,
		MaxConsecutiveErrors: 3,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive, got %v", c.FrameDuration)
	}
	if c.Backend == BackendWebRTC && c.SignalURL == "" {
		return fmt.Errorf("webrtc backend requires signal_url")
	}
	if c.InputWarmupFrames < 0 {
		return fmt.Errorf("input_warmup_frames must not be negative, got %d", c.InputWarmupFrames)
	}
	if c.OutputLeadIn < 0 {
		return fmt.Errorf("output_lead_in must not be negative, got %v", c.OutputLeadIn)
	}
	if c.MaxInitRetries < 0 {
		return fmt.Errorf("max_init_retries must not be negative, got %d", c.MaxInitRetries)
	}
	if c.MaxInitRetries > 0 && c.RetryDelay <= 0 {
		return fmt.Errorf("retry_delay must be positive, got %v", c.RetryDelay)
	}
	if c.MaxInitRetries > 0 && c.RetryBackoff < 1 {
		return fmt.Errorf("retry_backoff must be >= 1, got %v", c.RetryBackoff)
	}
	return nil
}

// FrameSize returns the number of samples per frame per channel.
func (c *Config) FrameSize() int {
	return int(float64(c.SampleRate) * c.FrameDuration.Seconds())
}

// FrameBytes returns the size of a frame in bytes (PCM16).
func (c *Config) FrameBytes() int {
	return c.FrameSize() * c.Channels * 2
}
