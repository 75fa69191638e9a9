// Package attention tracks how engaged the robot is with its
// surroundings. A single-writer state machine moves between Passive,
// Alert, and Engaged in response to wake words, speech, and perception
// events, and owns the timeout that eventually winds attention back
// down.
package attention

import (
	"encoding/json"
	"time"
)

// State is the robot's attention level.
type State int

const (
	// Passive is the resting state: nothing interesting nearby.
	Passive State = iota
	// Alert means something moved; the robot is watching for a person.
	Alert
	// Engaged means a person is interacting; listening is active.
	Engaged
)

func (s State) String() string {
	switch s {
	case Passive:
		return "passive"
	case Alert:
		return "alert"
	case Engaged:
		return "engaged"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Event identifies what prompted a transition request.
type Event string

const (
	EventMotion         Event = "motion_detected"
	EventFace           Event = "face_detected"
	EventWake           Event = "wake_word_detected"
	EventUserSpeaking   Event = "user_speaking"
	EventAlertTimeout   Event = "alert_timeout"
	EventEngagedTimeout Event = "engaged_timeout"
)

// Change describes one completed state transition.
type Change struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	Event   Event     `json:"event"`
	Persona string    `json:"persona,omitempty"`
	At      time.Time `json:"at"`
}
