package audiodev

import (
	"fmt"
	"log/slog"
	"runtime"
)

// NewSource creates a new audio source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend(cfg)
	}

	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frame_ms", cfg.FrameDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendALSA:
		return newALSASource(cfg, logger)
	case BackendWebRTC:
		return newWebRTCSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewSink creates a new audio sink with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is
// selected. The webrtc backend is capture-only, so its sink falls back
// to ALSA on Linux and mock elsewhere.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend(cfg)
	}
	if backend == BackendWebRTC {
		if runtime.GOOS == "linux" {
			backend = BackendALSA
		} else {
			backend = BackendMock
		}
	}

	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frame_ms", cfg.FrameDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendALSA:
		return newALSASink(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// detectBestBackend returns the best available backend for the current
// platform and configuration. A configured signalling server wins so
// development boxes can pull the robot's mic remotely.
func detectBestBackend(cfg Config) Backend {
	if cfg.SignalURL != "" {
		return BackendWebRTC
	}
	if runtime.GOOS == "linux" {
		return BackendALSA
	}
	return BackendMock
}

// AvailableBackends returns the list of backends usable on this
// platform.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock, BackendWebRTC}
	if runtime.GOOS == "linux" {
		backends = append(backends, BackendALSA)
	}
	return backends
}
