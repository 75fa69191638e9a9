package perception

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNet wraps OpenCV's FaceDetectorYN. Inference is serialized; the
// underlying detector is not thread-safe.
type YuNet struct {
	mu  sync.Mutex
	det gocv.FaceDetectorYN
}

// NewYuNet loads the YuNet ONNX model from cfg.ModelPath. A missing
// model file wraps ErrModelLoad so callers can degrade to motion-only
// operation.
func NewYuNet(cfg Config) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, cfg.ModelPath, err)
	}

	det := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // ONNX models carry their own graph, no config file
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.FaceConfidence), // score threshold
		0.3,                         // NMS threshold
		5000,                        // top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{det: det}, nil
}

// Detect finds faces in the JPEG frame. Bounding boxes are normalized
// to 0-1 frame coordinates.
func (y *YuNet) Detect(jpeg []byte) ([]Face, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrBadFrame
	}

	imgW := float64(img.Cols())
	imgH := float64(img.Rows())

	// The detector was initialized at a nominal size; match it to the
	// actual frame before inference.
	y.det.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()
	y.det.Detect(img, &out)

	// YuNet rows are 15 floats: bbox x,y,w,h in pixels, five landmark
	// pairs, then the face score in column 14.
	var faces []Face
	for r := 0; r < out.Rows(); r++ {
		faces = append(faces, Face{
			X:          float64(out.GetFloatAt(r, 0)) / imgW,
			Y:          float64(out.GetFloatAt(r, 1)) / imgH,
			W:          float64(out.GetFloatAt(r, 2)) / imgW,
			H:          float64(out.GetFloatAt(r, 3)) / imgH,
			Confidence: float64(out.GetFloatAt(r, 14)),
		})
	}
	return faces, nil
}

// Close releases the detector.
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.det.Close()
	return nil
}
