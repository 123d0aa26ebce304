// Package adapter provides the sensor abstraction that physically
// measures cell voltages and pack current. The only shipped
// implementation is the demo generator; a hardware adapter plugs in
// behind the same interface.
package adapter

import (
	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/errors"
	"codeberg.org/mutker/packmon/internal/logger"
)

const KindDemo = "demo"

type Config struct {
	Kind string
	Seed uint32
}

func DefaultConfig() Config {
	return Config{Kind: KindDemo}
}

// New selects and initializes the configured adapter.
func New(cfg Config, limits bms.Limits, log logger.Logger) (Adapter, error) {
	switch cfg.Kind {
	case KindDemo:
		return newDemo(cfg.Seed, limits, log), nil
	default:
		return nil, errors.New().WithData(ErrUnknownKind, cfg.Kind)
	}
}
