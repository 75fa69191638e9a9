package daemon

import "errors"

var (
	// ErrDispatch indicates a pose target failed to reach the daemon.
	ErrDispatch = errors.New("daemon: dispatch failed")

	// ErrNotRunning indicates the daemon answered but is not in the
	// running state.
	ErrNotRunning = errors.New("daemon: not running")
)
