// Package acquire implements the sampling producer: a fixed-rate loop
// that reads one sample per cycle from the measurement adapter and
// hands it to the ingress queue. Scheduling is by absolute deadline,
// so a slow cycle shifts one sample, not every sample after it.
//
// The loop never blocks on the consumer. A saturated queue and a cycle
// that overruns its own period are both faults that trip the
// supervisor; the loop itself keeps running and leaves termination to
// the watchdog.
package acquire

import (
	"context"
	"time"

	"codeberg.org/mutker/packmon/internal/adapter"
	"codeberg.org/mutker/packmon/internal/errors"
	"codeberg.org/mutker/packmon/internal/logger"
	"codeberg.org/mutker/packmon/internal/queue"
	"codeberg.org/mutker/packmon/internal/watchdog"
)

// Component names the acquisition loop in watchdog registration and
// fault reports.
const Component = "acquisition"

type Config struct {
	// Period is the sampling interval.
	Period time.Duration
}

func DefaultConfig() Config {
	return Config{
		Period: 50 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Period <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "sampling period must be positive")
	}

	return nil
}

type Sampler struct {
	adapter    adapter.Adapter
	queue      *queue.Queue
	supervisor *watchdog.Supervisor
	period     time.Duration
	log        logger.Logger
}

func New(cfg Config, adp adapter.Adapter, q *queue.Queue, sup *watchdog.Supervisor, log logger.Logger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Sampler{
		adapter:    adp,
		queue:      q,
		supervisor: sup,
		period:     cfg.Period,
		log:        log,
	}, nil
}

// Run samples until the context is canceled. Deadlines are absolute:
// each cycle's deadline is the previous one plus the period, so timing
// error does not accumulate and a late cycle is followed by an
// immediate catch-up fire.
func (s *Sampler) Run(ctx context.Context) {
	s.log.Info().
		Dur("period", s.period).
		Msg("Acquisition started")
	defer s.log.Debug().Msg("Acquisition stopped")

	next := time.Now().Add(s.period)
	timer := time.NewTimer(s.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		start := time.Now()
		s.cycle()

		if elapsed := time.Since(start); elapsed > s.period {
			s.supervisor.Trip(Component, "cycle overrun")
			s.log.Warn().
				Dur("elapsed", elapsed).
				Dur("period", s.period).
				Msg("Acquisition cycle overran its period")
		}

		next = next.Add(s.period)
		timer.Reset(time.Until(next))
	}
}

func (s *Sampler) cycle() {
	if s.queue.Free() == 0 {
		s.supervisor.Trip(Component, "sample queue saturated")
		s.log.Warn().
			Int("queued", s.queue.Len()).
			Msg("Sample queue saturated, cycle skipped")

		return
	}

	sample, err := s.adapter.ReadSample()
	if err != nil {
		errFactory := errors.New()
		s.log.ErrorWithCode(errFactory.Wrap(adapter.ErrReadFailed, err)).
			Msg("Sample read failed")

		return
	}

	// The queue filled between the saturation check and the push. The
	// next cycle's check reports the fault; this sample is just lost.
	if !s.queue.Push(sample) {
		s.log.Warn().Msg("Sample dropped, queue filled during cycle")
	}
}
