package vad

import (
	"fmt"
	"time"
)

// Config holds voice-activity segmentation parameters.
type Config struct {
	// ProfilePath is an optional calibration profile for the primary
	// classifier. Empty selects the plain energy classifier directly.
	ProfilePath string `yaml:"profile_path" json:"profile_path"`

	// SpeechThreshold is the normalized RMS level above which a frame
	// counts as speech in energy mode, in (0, 1).
	SpeechThreshold float64 `yaml:"speech_threshold" json:"speech_threshold"`

	// MinSpeechDuration is the contiguous speech required before a
	// segment opens.
	MinSpeechDuration time.Duration `yaml:"min_speech_duration" json:"min_speech_duration"`

	// SilenceDuration is the contiguous silence that closes an open
	// segment.
	SilenceDuration time.Duration `yaml:"silence_duration" json:"silence_duration"`

	// MaxSpeechDuration force-finalizes a segment that never goes
	// silent. Truncation, not an error.
	MaxSpeechDuration time.Duration `yaml:"max_speech_duration" json:"max_speech_duration"`

	// UseEnergyFallback substitutes the energy classifier when the
	// calibration profile cannot be loaded. When false, a failed
	// profile load disables segmentation entirely.
	UseEnergyFallback bool `yaml:"use_energy_fallback" json:"use_energy_fallback"`
}

// DefaultConfig returns production segmentation defaults.
func DefaultConfig() Config {
	return Config{
		SpeechThreshold:   0.015,
		MinSpeechDuration: 200 * time.Millisecond,
		SilenceDuration:   700 * time.Millisecond,
		MaxSpeechDuration: 30 * time.Second,
		UseEnergyFallback: true,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SpeechThreshold <= 0 || c.SpeechThreshold >= 1 {
		return fmt.Errorf("speech_threshold must be in (0, 1), got %v", c.SpeechThreshold)
	}
	if c.MinSpeechDuration <= 0 {
		return fmt.Errorf("min_speech_duration must be positive, got %v", c.MinSpeechDuration)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("silence_duration must be positive, got %v", c.SilenceDuration)
	}
	if c.MaxSpeechDuration <= c.MinSpeechDuration {
		return fmt.Errorf("max_speech_duration %v must exceed min_speech_duration %v",
			c.MaxSpeechDuration, c.MinSpeechDuration)
	}
	return nil
}
