package attention

import (
	"fmt"
	"time"
)

// Config holds the attention timing parameters.
type Config struct {
	// AlertTimeout is how long Alert holds without a wake word or
	// face before dropping back to Passive.
	AlertTimeout time.Duration `yaml:"alert_timeout" json:"alert_timeout"`

	// EngagedTimeout is how long Engaged tolerates silence before
	// stepping down to Alert. User speech resets it.
	EngagedTimeout time.Duration `yaml:"engaged_timeout" json:"engaged_timeout"`
}

// DefaultConfig returns the production attention timings. The alert
// window is deliberately long: dropping out of Alert costs a wake-word
// round trip to get back.
func DefaultConfig() Config {
	return Config{
		AlertTimeout:   5 * time.Minute,
		EngagedTimeout: 60 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.AlertTimeout <= 0 {
		return fmt.Errorf("alert_timeout must be positive, got %v", c.AlertTimeout)
	}
	if c.EngagedTimeout <= 0 {
		return fmt.Errorf("engaged_timeout must be positive, got %v", c.EngagedTimeout)
	}
	return nil
}
