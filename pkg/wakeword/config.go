package wakeword

import (
	"fmt"
	"time"
)

// DefaultManifest is the manifest filename looked up inside ModelDir.
const DefaultManifest = "personas.yaml"

// Config holds wake-word detection parameters.
type Config struct {
	// ModelDir is the directory holding persona model files and the
	// persona manifest.
	ModelDir string `yaml:"model_dir" json:"model_dir"`

	// Manifest is the manifest filename within ModelDir.
	Manifest string `yaml:"manifest" json:"manifest"`

	// Sensitivity is the score a persona must exceed to fire, in
	// (0, 1]. Lower values detect more and false-trigger more.
	Sensitivity float64 `yaml:"sensitivity" json:"sensitivity"`

	// Cooldown is the minimum gap between detections of the same
	// persona. Other personas are unaffected.
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"`

	// SkipOnFailure switches the detector to bypass mode when no
	// model loads, so speech activity engages directly instead of
	// leaving the robot deaf.
	SkipOnFailure bool `yaml:"skip_on_failure" json:"skip_on_failure"`
}

// DefaultConfig returns production wake-word defaults.
func DefaultConfig() Config {
	return Config{
		ModelDir:      "models/wake",
		Manifest:      DefaultManifest,
		Sensitivity:   0.6,
		Cooldown:      2 * time.Second,
		SkipOnFailure: true,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.ModelDir == "" {
		return fmt.Errorf("model_dir is required")
	}
	if c.Sensitivity <= 0 || c.Sensitivity > 1 {
		return fmt.Errorf("sensitivity must be in (0, 1], got %v", c.Sensitivity)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %v", c.Cooldown)
	}
	return nil
}
