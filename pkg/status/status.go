// Package status exposes the embodiment core for external observers:
// a JSON state snapshot over HTTP and a websocket stream of attention,
// speech and motion events. It is read-only by design; nothing here
// can drive the robot.
package status

import (
	"fmt"
	"time"
)

// Event kinds published on /ws/events.
const (
	EventSnapshot      = "snapshot"
	EventStateChange   = "state_change"
	EventWake          = "wake_word"
	EventSpeechSegment = "speech_segment"
	EventMotion        = "motion"
	EventFace          = "face"
	EventCue           = "cue"
	EventDispatchPause = "dispatch_pause"
	EventAudioHealth   = "audio_health"
)

// Event is the envelope for every websocket message. New streams are
// primed with an EventSnapshot carrying the current Snapshot.
type Event struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// Snapshot is the introspection state served by /api/state.
type Snapshot struct {
	AttentionState string   `json:"attention_state"`
	ActivePersona  string   `json:"active_persona,omitempty"`
	Personas       []string `json:"personas,omitempty"`
	WakeMode       string   `json:"wake_mode"`
	VADEnabled     bool     `json:"vad_enabled"`
	Recording      bool     `json:"recording"`
	AudioHealthy   bool     `json:"audio_healthy"`
	DispatchPaused bool     `json:"dispatch_paused"`
	CameraDegraded bool     `json:"camera_degraded"`
	UptimeSeconds  float64  `json:"uptime_seconds"`
}

// Provider supplies the live snapshot; the app implements it.
type Provider interface {
	Snapshot() Snapshot
}

// Config controls the status server.
type Config struct {
	// Enabled gates the whole server; when false the app skips it.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Host is the bind address. Empty binds all interfaces.
	Host string `yaml:"host" json:"host"`

	// Port is the listen port. Zero picks an ephemeral port.
	Port int `yaml:"port" json:"port"`
}

// DefaultConfig returns production status settings.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Port:    8088,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	return nil
}
