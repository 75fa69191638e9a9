package vad

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-embody/pkg/audiodev"
)

// Classifier decides whether a single frame contains speech.
type Classifier interface {
	Speech(f audiodev.Frame) bool
	Name() string
}

// Profile is an offline-calibrated noise model for one installation.
// A frame is speech when its level clears the measured noise floor by
// the margin.
type Profile struct {
	NoiseFloorDBFS float64 `yaml:"noise_floor_dbfs"`
	SpeechMarginDB float64 `yaml:"speech_margin_db"`
}

// LoadProfile reads a calibration profile from disk.
func LoadProfile(path string) (Profile, error) {
	var p Profile
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: parse %s: %v", ErrModelUnavailable, path, err)
	}
	if p.NoiseFloorDBFS >= 0 {
		return p, fmt.Errorf("%w: noise floor %v dBFS must be negative", ErrModelUnavailable, p.NoiseFloorDBFS)
	}
	if p.SpeechMarginDB <= 0 {
		return p, fmt.Errorf("%w: speech margin %v dB must be positive", ErrModelUnavailable, p.SpeechMarginDB)
	}
	return p, nil
}

// calibratedClassifier compares frame level in dBFS against the
// profiled noise floor plus margin.
type calibratedClassifier struct {
	threshold float64
}

func (c calibratedClassifier) Speech(f audiodev.Frame) bool {
	return f.DBFS() >= c.threshold
}

func (c calibratedClassifier) Name() string { return "calibrated" }

// energyClassifier compares normalized frame RMS against a fixed
// threshold. Crude but dependency-free; the degraded-mode fallback.
type energyClassifier struct {
	threshold float64
}

func (c energyClassifier) Speech(f audiodev.Frame) bool {
	return f.RMS() >= c.threshold
}

func (c energyClassifier) Name() string { return "energy" }

// newClassifier resolves the classifier for the configuration. A
// profile load failure falls back to the energy classifier when
// allowed, otherwise surfaces the error so the segmenter can disable
// itself.
func newClassifier(cfg Config, logger *slog.Logger) (Classifier, error) {
	if cfg.ProfilePath == "" {
		return energyClassifier{threshold: cfg.SpeechThreshold}, nil
	}

	p, err := LoadProfile(cfg.ProfilePath)
	if err == nil {
		return calibratedClassifier{threshold: p.NoiseFloorDBFS + p.SpeechMarginDB}, nil
	}
	if !cfg.UseEnergyFallback {
		return nil, err
	}
	logger.Warn("vad profile unavailable, falling back to energy threshold", "error", err)
	return energyClassifier{threshold: cfg.SpeechThreshold}, nil
}
