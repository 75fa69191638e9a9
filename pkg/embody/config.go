package embody

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-embody/pkg/attention"
	"github.com/teslashibe/go-embody/pkg/audiodev"
	"github.com/teslashibe/go-embody/pkg/motion"
	"github.com/teslashibe/go-embody/pkg/perception"
	"github.com/teslashibe/go-embody/pkg/privacy"
	"github.com/teslashibe/go-embody/pkg/status"
	"github.com/teslashibe/go-embody/pkg/vad"
	"github.com/teslashibe/go-embody/pkg/wakeword"
)

// Config assembles the settings for every subsystem the app runs.
type Config struct {
	// DaemonURL is the base URL of the robot control daemon, e.g.
	// "http://192.168.68.80:8000".
	DaemonURL string `yaml:"daemon_url" json:"daemon_url"`

	// DaemonProbeInterval is how often the daemon is probed for
	// recovery while pose dispatch is paused.
	DaemonProbeInterval time.Duration `yaml:"daemon_probe_interval" json:"daemon_probe_interval"`

	Audio      audiodev.Config   `yaml:"audio" json:"audio"`
	Wake       wakeword.Config   `yaml:"wake" json:"wake"`
	VAD        vad.Config        `yaml:"vad" json:"vad"`
	Attention  attention.Config  `yaml:"attention" json:"attention"`
	Motion     motion.Config     `yaml:"motion" json:"motion"`
	Privacy    privacy.Config    `yaml:"privacy" json:"privacy"`
	Perception perception.Config `yaml:"perception" json:"perception"`
	Status     status.Config     `yaml:"status" json:"status"`
}

// DefaultConfig returns the production defaults for a local daemon.
func DefaultConfig() Config {
	return Config{
		DaemonURL:           "http://localhost:8000",
		DaemonProbeInterval: 5 * time.Second,
		Audio:               audiodev.DefaultConfig(),
		Wake:                wakeword.DefaultConfig(),
		VAD:                 vad.DefaultConfig(),
		Attention:           attention.DefaultConfig(),
		Motion:              motion.DefaultConfig(),
		Privacy:             privacy.DefaultConfig(),
		Perception:          perception.DefaultConfig(),
		Status:              status.DefaultConfig(),
	}
}

// LoadFile reads a YAML config file over the defaults. Keys the file
// omits keep their default values.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("embody: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("embody: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the whole tree and reports the first offending
// subsystem.
func (c *Config) Validate() error {
	if c.DaemonURL == "" {
		return fmt.Errorf("daemon_url must not be empty")
	}
	if c.DaemonProbeInterval <= 0 {
		return fmt.Errorf("daemon_probe_interval must be positive, got %v", c.DaemonProbeInterval)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := c.Wake.Validate(); err != nil {
		return fmt.Errorf("wake: %w", err)
	}
	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad: %w", err)
	}
	if err := c.Attention.Validate(); err != nil {
		return fmt.Errorf("attention: %w", err)
	}
	if err := c.Motion.Validate(); err != nil {
		return fmt.Errorf("motion: %w", err)
	}
	if err := c.Privacy.Validate(); err != nil {
		return fmt.Errorf("privacy: %w", err)
	}
	if err := c.Perception.Validate(); err != nil {
		return fmt.Errorf("perception: %w", err)
	}
	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	return nil
}
