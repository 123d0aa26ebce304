package appsm

import (
	"time"

	"codeberg.org/mutker/packmon/internal/errors"
)

type Config struct {
	// TickPeriod is the cadence of state machine execution.
	TickPeriod time.Duration
	// ProcessingBudget is the ceiling on a single tick's duration.
	// Exceeding it is a fault that stops watchdog feeding.
	ProcessingBudget time.Duration
	// FeedInterval is handed to the watchdog feeders started when the
	// machine leaves Init.
	FeedInterval time.Duration
	// JoinTimeout bounds the wait for acquisition goroutines to exit
	// when entering configuration mode or shutting down.
	JoinTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickPeriod:       time.Second,
		ProcessingBudget: 30 * time.Second,
		FeedInterval:     20 * time.Millisecond,
		JoinTimeout:      500 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.TickPeriod <= 0 || c.ProcessingBudget <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "tick period and processing budget must be positive")
	}
	if c.FeedInterval <= 0 || c.JoinTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "feed interval and join timeout must be positive")
	}

	return nil
}
