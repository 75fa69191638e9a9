package audiodev

import (
	"context"
	"encoding/json"
	"time"
)

// HealthState classifies device health.
type HealthState int

const (
	// Healthy means probes are passing.
	Healthy HealthState = iota
	// Degraded means too many consecutive probe failures.
	Degraded
	// Failed means initialization exhausted its retries.
	Failed
)

func (h HealthState) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its name.
func (h HealthState) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// Health is a snapshot of device health.
type Health struct {
	State             HealthState `json:"state"`
	ConsecutiveErrors int         `json:"consecutive_errors"`
	LastOK            time.Time   `json:"last_ok"`
	LastError         string      `json:"last_error,omitempty"`
}

// Prober is implemented by backends that can report liveness.
type Prober interface {
	Probe(ctx context.Context) error
}
