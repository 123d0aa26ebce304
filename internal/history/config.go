package history

import (
	"time"

	"codeberg.org/mutker/packmon/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/packmon/history.db"

	// Retention matches sixty seconds of windows at the nominal rate
	// of four sub-windowed batches per second.
	defaultRetention = 240
)

type Config struct {
	Enabled bool
	DBPath  string
	// Retention is the number of windows kept; older rows are pruned
	// on every flush.
	Retention int
	// BatchSize is the number of buffered windows that forces a
	// flush; FlushInterval bounds how long a partial batch may sit.
	BatchSize     int
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		DBPath:        defaultDBPath,
		Retention:     defaultRetention,
		BatchSize:     8,
		FlushInterval: 5 * time.Second,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.Retention <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "retention must be positive")
	}
	if c.BatchSize <= 0 || c.FlushInterval <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "batch size and flush interval must be positive")
	}

	return nil
}
