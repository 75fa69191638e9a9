// Package wakeword scores the live capture stream for per-persona wake
// phrases.
//
// Each configured persona owns one streaming scorer fed frames in
// arrival order. Detection requires the score to cross the configured
// sensitivity while that persona's cooldown has elapsed. When no model
// can be loaded the detector degrades instead of failing: to bypass
// mode (speech-start engages directly) when configured, otherwise to
// disabled.
package wakeword

import (
	"errors"
	"time"
)

var (
	// ErrModelLoad indicates a wake model file is missing or corrupt.
	// Load failures follow the fallback chain and are never fatal.
	ErrModelLoad = errors.New("wakeword: model load failed")

	// ErrBadModel indicates a model file that exists but cannot be
	// parsed.
	ErrBadModel = errors.New("wakeword: malformed model file")
)

// Mode is the detector's operating mode after model resolution.
type Mode int

const (
	// ModeActive means at least one persona scorer is running.
	ModeActive Mode = iota
	// ModeBypass means no model loaded and wake detection is skipped;
	// the first speech activity should engage instead.
	ModeBypass
	// ModeDisabled means no model loaded and bypass is not allowed.
	ModeDisabled
)

func (m Mode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModeBypass:
		return "bypass"
	case ModeDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// Detection is one wake-word hit.
type Detection struct {
	Persona    string    `json:"persona"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}
