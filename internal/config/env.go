// Package config provides configuration helpers for go-embody commands.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// Default daemon endpoint configuration.
const (
	DefaultDaemonPort = "8000"
)

// ParseEnv populates a config struct from environment variables using
// `env` struct tags.
func ParseEnv[T any]() (T, error) {
	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// DaemonHost returns the control daemon host from ROBOT_HOST.
// Falls back to the provided default if not set.
func DaemonHost(defaultHost string) string {
	if host := os.Getenv("ROBOT_HOST"); host != "" {
		return host
	}
	return defaultHost
}

// DaemonURL returns the control daemon HTTP API URL for a host.
func DaemonURL(host string) string {
	return fmt.Sprintf("http://%s:%s", host, DefaultDaemonPort)
}
