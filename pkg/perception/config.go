package perception

import (
	"fmt"
	"time"
)

// Config controls the perception watcher and its detectors.
type Config struct {
	// SnapshotURL is the HTTP endpoint serving JPEG camera snapshots.
	// Empty disables perception entirely.
	SnapshotURL string `yaml:"snapshot_url" json:"snapshot_url"`

	// Interval is how often the watcher polls for a frame.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// FaceEveryN runs the (expensive) face detector on every Nth poll.
	// Motion scoring runs on every poll.
	FaceEveryN int `yaml:"face_every_n" json:"face_every_n"`

	// MotionThreshold is the fraction of changed pixels above which a
	// frame counts as motion.
	MotionThreshold float64 `yaml:"motion_threshold" json:"motion_threshold"`

	// PixelDelta is the grayscale difference (0-255) a pixel must exceed
	// to count as changed.
	PixelDelta float64 `yaml:"pixel_delta" json:"pixel_delta"`

	// ModelPath points at the YuNet ONNX model. Empty disables face
	// detection; the watcher then reports motion only.
	ModelPath string `yaml:"model_path" json:"model_path"`

	// FaceConfidence is the minimum detection score a face must reach.
	FaceConfidence float64 `yaml:"face_confidence" json:"face_confidence"`

	// InputWidth and InputHeight are the detector's nominal input size.
	// The detector is resized to each frame's real dimensions before
	// inference, so these only seed initialization.
	InputWidth  int `yaml:"input_width" json:"input_width"`
	InputHeight int `yaml:"input_height" json:"input_height"`

	// MaxErrors is how many consecutive capture failures the watcher
	// tolerates before declaring the camera degraded.
	MaxErrors int `yaml:"max_errors" json:"max_errors"`
}

// DefaultConfig returns production perception settings: 5 Hz polling
// with face detection on every 5th frame.
func DefaultConfig() Config {
	return Config{
		Interval:        200 * time.Millisecond,
		FaceEveryN:      5,
		MotionThreshold: 0.02,
		PixelDelta:      25,
		ModelPath:       "models/face_detection_yunet.onnx",
		FaceConfidence:  0.5,
		InputWidth:      320,
		InputHeight:     320,
		MaxErrors:       25,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	}
	if c.FaceEveryN < 1 {
		return fmt.Errorf("face_every_n must be at least 1, got %d", c.FaceEveryN)
	}
	if c.MotionThreshold <= 0 || c.MotionThreshold > 1 {
		return fmt.Errorf("motion_threshold must be in (0,1], got %v", c.MotionThreshold)
	}
	if c.PixelDelta <= 0 || c.PixelDelta > 255 {
		return fmt.Errorf("pixel_delta must be in (0,255], got %v", c.PixelDelta)
	}
	if c.FaceConfidence < 0 || c.FaceConfidence > 1 {
		return fmt.Errorf("face_confidence must be in [0,1], got %v", c.FaceConfidence)
	}
	if c.MaxErrors < 1 {
		return fmt.Errorf("max_errors must be at least 1, got %d", c.MaxErrors)
	}
	return nil
}
