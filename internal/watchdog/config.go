package watchdog

import (
	"time"

	"codeberg.org/mutker/packmon/internal/errors"
)

type Config struct {
	// FeedInterval is the cadence at which feeders refresh their
	// last-fed instant while feeding is allowed.
	FeedInterval time.Duration
	// Timeout is how stale a feeder's last-fed instant may become
	// before the timer fires.
	Timeout time.Duration
	// OnExpire replaces the default expiry action. The default logs
	// the starved component and terminates the process.
	OnExpire func(component string)
}

func DefaultConfig() Config {
	return Config{
		FeedInterval: 20 * time.Millisecond,
		Timeout:      80 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.FeedInterval <= 0 || c.Timeout <= 0 {
		return errFactory.WithData(ErrInvalidPeriod, "feed interval and timeout must be positive")
	}
	if c.Timeout <= c.FeedInterval {
		return errFactory.WithData(ErrInvalidPeriod, "timeout must exceed the feed interval")
	}

	return nil
}
