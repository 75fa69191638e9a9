// embodyd runs the embodiment core against a robot control daemon:
// wake-word listening, speech segmentation, attention, ambient motion,
// and the status server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-embody/internal/config"
	"github.com/teslashibe/go-embody/internal/log"
	"github.com/teslashibe/go-embody/pkg/embody"
)

// envOverrides is the environment surface. Values apply over the
// config file; flags apply over both.
type envOverrides struct {
	DaemonURL   string `env:"EMBODY_DAEMON_URL"`
	LogLevel    string `env:"EMBODY_LOG_LEVEL" envDefault:"info"`
	AudioDevice string `env:"EMBODY_AUDIO_DEVICE"`
	SignalURL   string `env:"EMBODY_AUDIO_SIGNAL_URL"`
	WakeModels  string `env:"EMBODY_WAKE_MODEL_DIR"`
	VADProfile  string `env:"EMBODY_VAD_PROFILE"`
	SnapshotURL string `env:"EMBODY_CAMERA_SNAPSHOT_URL"`
	StatusPort  int    `env:"EMBODY_STATUS_PORT" envDefault:"-1"`
}

func main() {
	configPath := flag.String("config", "", "YAML config file")
	daemonURL := flag.String("daemon-url", "", "control daemon base URL")
	logLevel := flag.String("log-level", "", "debug, info, warn, or error")
	flag.Parse()

	ov, err := config.ParseEnv[envOverrides]()
	if err != nil {
		fmt.Fprintf(os.Stderr, "embodyd: parse environment: %v\n", err)
		os.Exit(1)
	}

	cfg := embody.DefaultConfig()
	if *configPath != "" {
		if cfg, err = embody.LoadFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "embodyd: %v\n", err)
			os.Exit(1)
		}
	}

	// ROBOT_HOST points at the daemon on its default port; the explicit
	// URL settings win over it.
	if host := config.DaemonHost(""); host != "" {
		cfg.DaemonURL = config.DaemonURL(host)
	}
	if ov.DaemonURL != "" {
		cfg.DaemonURL = ov.DaemonURL
	}
	if ov.AudioDevice != "" {
		cfg.Audio.Device = ov.AudioDevice
	}
	if ov.SignalURL != "" {
		cfg.Audio.SignalURL = ov.SignalURL
	}
	if ov.WakeModels != "" {
		cfg.Wake.ModelDir = ov.WakeModels
	}
	if ov.VADProfile != "" {
		cfg.VAD.ProfilePath = ov.VADProfile
	}
	if ov.SnapshotURL != "" {
		cfg.Perception.SnapshotURL = ov.SnapshotURL
	}
	if ov.StatusPort >= 0 {
		cfg.Status.Port = ov.StatusPort
	}
	if *daemonURL != "" {
		cfg.DaemonURL = *daemonURL
	}

	level := ov.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	log.Init(level)
	logger := log.L()

	app, err := embody.New(cfg, logger)
	if err != nil {
		logger.Error("configuration rejected", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		logger.Error("embodiment core failed", "error", err)
		os.Exit(1)
	}
}
