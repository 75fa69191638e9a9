package perception

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/teslashibe/go-embody/internal/httpc"
)

const (
	// snapshotTimeout bounds a single snapshot fetch. The camera endpoint
	// is on the local link, like the daemon.
	snapshotTimeout = 2 * time.Second

	// maxSnapshotBytes caps a snapshot body. A 1080p JPEG is well under
	// a megabyte; anything bigger is a misconfigured endpoint.
	maxSnapshotBytes = 4 << 20
)

// SnapshotSource fetches JPEG frames from an HTTP snapshot endpoint,
// the kind the robot daemon exposes for its camera.
type SnapshotSource struct {
	URL string

	hc *http.Client
}

// NewSnapshotSource creates a FrameSource backed by an HTTP endpoint
// that returns one JPEG per GET.
func NewSnapshotSource(url string) *SnapshotSource {
	return &SnapshotSource{
		URL: url,
		hc:  httpc.NewClient(snapshotTimeout),
	}
}

// Capture fetches the current frame.
func (s *SnapshotSource) Capture(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("snapshot endpoint returned %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("snapshot read failed: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrBadFrame
	}
	return data, nil
}
