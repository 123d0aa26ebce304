// Package watchdog implements the fail-stop supervision layer: a
// shared trip latch, an in-process expiry timer with per-component
// feed tracking, and the feeder loops that keep the timer satisfied
// while the monitored loops stay healthy. A loop that detects its own
// fault trips the latch; feeding stops, the timer expires, and the
// process is taken down rather than left running with a wedged
// pipeline.
package watchdog

import (
	"sync/atomic"

	"codeberg.org/mutker/packmon/internal/logger"
)

// Supervisor is the shared trip latch. Feeders consult it before every
// feed; any component that trips it starves the timer for all of them.
type Supervisor struct {
	allow atomic.Bool
	log   logger.Logger
}

func NewSupervisor(log logger.Logger) *Supervisor {
	s := &Supervisor{log: log}
	s.allow.Store(true)

	return s
}

// Allowed reports whether feeding is still permitted.
func (s *Supervisor) Allowed() bool {
	return s.allow.Load()
}

// Trip records a fault and stops all feeding. The first trip wins the
// error log; later trips from other components are still recorded at
// debug so the full fault picture survives in verbose logs.
func (s *Supervisor) Trip(component, reason string) {
	if s.allow.CompareAndSwap(true, false) {
		s.log.Error().
			Str("component", component).
			Str("reason", reason).
			Msg("Fault detected, watchdog feeding stopped")

		return
	}

	s.log.Debug().
		Str("component", component).
		Str("reason", reason).
		Msg("Fault reported after watchdog feeding already stopped")
}
