package perception

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// blurKernel is the Gaussian kernel size applied before differencing to
// suppress sensor noise.
const blurKernel = 5

// FrameDiff scores motion by grayscale frame differencing: each frame is
// blurred, diffed against the previous one, and the fraction of pixels
// whose delta exceeds the configured threshold is the motion ratio.
type FrameDiff struct {
	pixelDelta float32

	mu      sync.Mutex // protects prev across polls
	prev    gocv.Mat
	hasPrev bool
}

// NewFrameDiff creates a differencing motion scorer. pixelDelta is the
// grayscale change (0-255) a pixel must exceed to count as moved.
func NewFrameDiff(pixelDelta float64) *FrameDiff {
	return &FrameDiff{
		pixelDelta: float32(pixelDelta),
		prev:       gocv.NewMat(),
	}
}

// Ratio decodes the JPEG frame and returns the changed-pixel fraction
// relative to the previous frame. The first frame (and any frame whose
// dimensions differ from the previous one) establishes a new baseline
// and scores zero.
func (d *FrameDiff) Ratio(jpeg []byte) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadGrayScale)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	defer img.Close()
	if img.Empty() {
		return 0, ErrBadFrame
	}

	gray := gocv.NewMat()
	gocv.GaussianBlur(img, &gray, image.Pt(blurKernel, blurKernel), 0, 0, gocv.BorderDefault)

	if !d.hasPrev || d.prev.Rows() != gray.Rows() || d.prev.Cols() != gray.Cols() {
		d.prev.Close()
		d.prev = gray
		d.hasPrev = true
		return 0, nil
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(d.prev, gray, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, d.pixelDelta, 255, gocv.ThresholdBinary)

	changed := gocv.CountNonZero(mask)
	total := mask.Rows() * mask.Cols()

	d.prev.Close()
	d.prev = gray

	if total == 0 {
		return 0, nil
	}
	return float64(changed) / float64(total), nil
}

// Close releases the retained baseline frame.
func (d *FrameDiff) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prev.Close()
	d.hasPrev = false
	return nil
}
