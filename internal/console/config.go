package console

import (
	"time"

	"codeberg.org/mutker/packmon/internal/errors"
)

type Config struct {
	Enabled bool
	Listen  string

	// ShutdownTimeout bounds how long Shutdown waits for in-flight
	// requests to drain.
	ShutdownTimeout time.Duration

	// RestartDelay is the grace period between answering a save or
	// cancel request and invoking the restart hook, so the confirmation
	// page reaches the browser before the process goes away.
	RestartDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Listen:          ":8080",
		ShutdownTimeout: 5 * time.Second,
		RestartDelay:    3 * time.Second,
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	errFactory := errors.New()

	if c.Listen == "" {
		return errFactory.WithData(ErrInvalidConfig, "listen address must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "shutdown timeout must be positive")
	}
	if c.RestartDelay < 0 {
		return errFactory.WithData(ErrInvalidConfig, "restart delay must not be negative")
	}

	return nil
}
