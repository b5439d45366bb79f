// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every externally tunable knob. Nothing in the core packages
// hard-codes these values.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"ADDR" envDefault:":8080"`
	// AllowedOrigin restricts WebSocket upgrades; empty allows any origin.
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:""`

	// SnapshotPath is where the session map is persisted across restarts.
	SnapshotPath string `env:"SNAPSHOT_PATH" envDefault:"sessions.json"`
	// SnapshotInterval is how often the snapshot is written.
	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"1m"`

	// SweepInterval is how often stale sessions are swept.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"30m"`
	// SessionTTL is the staleness threshold: sessions idle longer are removed.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"4h"`

	// DisplayCap is the maximum simultaneous display connections per session.
	DisplayCap int `env:"DISPLAY_CAP" envDefault:"10"`
	// MsgRateLimit is the per-connection inbound message budget per one-second
	// window; exceeding it forces a disconnect.
	MsgRateLimit int `env:"MSG_RATE_LIMIT" envDefault:"20"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
