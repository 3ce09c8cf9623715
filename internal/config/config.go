// Package config loads the simulator's runtime-tunable constants via
// envconfig, the way the retrieval pack's sms-gateway service loads
// its own settings.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime knob the simulator exposes. Every field
// is overridable through an MKERNEL_-prefixed environment variable.
// MaxPayloadBytes is loaded but read by nothing: message payloads stay
// fixed at proc.MaxPayloadBytes whatever it is set to.
type Config struct {
	Cores           int           `envconfig:"CORES" default:"8"`
	InboxCapacity   int           `envconfig:"INBOX_CAPACITY" default:"100"`
	MaxPayloadBytes int           `envconfig:"MAX_PAYLOAD_BYTES" default:"512"`
	MaxProcesses    int           `envconfig:"MAX_PROCESSES" default:"64"`
	Quantum         time.Duration `envconfig:"QUANTUM" default:"50ms"`
	CycleSleep      time.Duration `envconfig:"CYCLE_SLEEP" default:"50ms"`
}

// Load reads MKERNEL_* environment variables into a Config, falling
// back to the built-in defaults for anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("mkernel", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: load environment: %w", err)
	}
	return cfg, nil
}

// Default returns the simulator's built-in constants without
// consulting the environment, for tests and for callers that don't
// want env coupling.
func Default() Config {
	return Config{
		Cores:           8,
		InboxCapacity:   100,
		MaxPayloadBytes: 512,
		MaxProcesses:    64,
		Quantum:         50 * time.Millisecond,
		CycleSleep:      50 * time.Millisecond,
	}
}
