package audiodev

import "errors"

var (
	// ErrInitFailed indicates device initialization exhausted all
	// retry attempts.
	ErrInitFailed = errors.New("audiodev: device initialization failed")

	// ErrDegraded indicates the device stopped responding to health
	// probes.
	ErrDegraded = errors.New("audiodev: device degraded")

	// ErrInputBusy indicates the input stream is already leased.
	ErrInputBusy = errors.New("audiodev: input already leased")

	// ErrClosed indicates the manager has been closed.
	ErrClosed = errors.New("audiodev: manager closed")

	// ErrNotOpen indicates an operation before Open succeeded.
	ErrNotOpen = errors.New("audiodev: devices not open")
)
