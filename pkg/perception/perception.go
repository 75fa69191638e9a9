// Package perception watches a camera feed for visual presence cues:
// frame-to-frame motion and human faces. The Watcher polls a FrameSource
// for JPEG snapshots, scores them, and reports hits through callbacks so
// the attention layer can react without knowing anything about OpenCV.
//
// The gocv-backed detectors in this package are one implementation;
// anything that can produce JPEG frames and satisfy the detector
// interfaces can stand in (an external perception service, a test stub).
package perception

import (
	"context"
	"errors"
)

var (
	// ErrModelLoad indicates the face detection model could not be
	// loaded. The Watcher treats this as non-fatal and runs motion-only.
	ErrModelLoad = errors.New("perception: face model load failed")

	// ErrBadFrame indicates a snapshot could not be decoded as an image.
	ErrBadFrame = errors.New("perception: undecodable frame")
)

// FrameSource produces JPEG-encoded camera snapshots. Capture blocks at
// most until ctx is done; implementations return the most recent frame
// available rather than waiting for a fresh one.
type FrameSource interface {
	Capture(ctx context.Context) ([]byte, error)
}

// MotionScorer reports how much of the frame changed since the previous
// call, as a ratio in [0,1]. The first frame establishes the baseline
// and scores zero.
type MotionScorer interface {
	Ratio(jpeg []byte) (float64, error)
	Close() error
}

// FaceDetector finds faces in a JPEG frame.
type FaceDetector interface {
	Detect(jpeg []byte) ([]Face, error)
	Close() error
}

// Face is a detected face with a normalized bounding box. X and Y are
// the top-left corner in 0-1 frame coordinates.
type Face struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Confidence float64 `json:"confidence"`
}

// Center returns the center point of the bounding box.
func (f Face) Center() (x, y float64) {
	return f.X + f.W/2, f.Y + f.H/2
}

// Area returns the normalized area of the bounding box.
func (f Face) Area() float64 {
	return f.W * f.H
}

// SelectBest picks the most prominent face from a set of detections,
// weighting confidence over size.
func SelectBest(faces []Face) *Face {
	if len(faces) == 0 {
		return nil
	}
	if len(faces) == 1 {
		return &faces[0]
	}

	maxArea := 0.0
	for _, f := range faces {
		if f.Area() > maxArea {
			maxArea = f.Area()
		}
	}

	bestScore := -1.0
	var best *Face
	for i := range faces {
		score := faces[i].Confidence * 0.7
		if maxArea > 0 {
			score += (faces[i].Area() / maxArea) * 0.3
		}
		if score > bestScore {
			bestScore = score
			best = &faces[i]
		}
	}
	return best
}
