// Package process implements the consumption side of the measurement
// pipeline: drain the ingress queue into the staging ring, compute
// statistics windows over full batches, deliver them to the telemetry
// sink and the history store, and retire consumed samples.
//
// Retirement follows the delivery mode. Best-effort retires a batch as
// soon as its windows are computed, so a failed publish drops data but
// never stalls the pipeline. At-least-once retires only after every
// window of the batch is acknowledged; a failed publish holds the
// batch in the ring and the next cycle recomputes and resends it,
// which can deliver the already-acknowledged windows twice.
package process

import (
	"context"

	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/errors"
	"codeberg.org/mutker/packmon/internal/history"
	"codeberg.org/mutker/packmon/internal/logger"
	"codeberg.org/mutker/packmon/internal/queue"
	"codeberg.org/mutker/packmon/internal/stats"
	"codeberg.org/mutker/packmon/internal/telemetry"
)

// Component names the processing loop in watchdog registration and
// fault reports.
const Component = "processing"

// ConfigRequest reports whether the operator has asked the device to
// drop into configuration mode.
type ConfigRequest interface {
	IsSet() bool
}

type Config struct {
	// RingCapacity is the size of the staging ring allocated on
	// Begin. It must hold at least one full batch.
	RingCapacity int
	// MaxDrainPerCycle bounds how many queued samples one cycle may
	// stage, which keeps a single cycle's work finite when the
	// consumer falls behind.
	MaxDrainPerCycle int
	// AtLeastOnce selects acknowledged delivery with held batches
	// instead of best-effort retire-on-compute.
	AtLeastOnce bool
}

func DefaultConfig() Config {
	return Config{
		RingCapacity:     100,
		MaxDrainPerCycle: 100,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.RingCapacity <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "ring capacity must be positive")
	}
	if c.MaxDrainPerCycle <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "max drain per cycle must be positive")
	}

	return nil
}

type Loop struct {
	cfg     Config
	queue   *queue.Queue
	engine  *stats.Engine
	sink    telemetry.Sink
	store   history.Store
	request ConfigRequest
	log     logger.Logger

	ring *bms.Ring
}

func New(
	cfg Config,
	q *queue.Queue,
	engine *stats.Engine,
	sink telemetry.Sink,
	store history.Store,
	request ConfigRequest,
	log logger.Logger,
) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Loop{
		cfg:     cfg,
		queue:   q,
		engine:  engine,
		sink:    sink,
		store:   store,
		request: request,
		log:     log,
	}, nil
}

// Begin allocates the staging ring. It is the entry action of the
// processing state; samples queued earlier stay in the queue until the
// first cycle drains them.
func (l *Loop) Begin() error {
	ring, err := bms.NewRing(l.cfg.RingCapacity)
	if err != nil {
		return err
	}
	l.ring = ring
	l.log.Debug().
		Int("capacity", l.cfg.RingCapacity).
		Msg("Staging ring allocated")

	return nil
}

// End releases the staging ring. Samples still staged are abandoned;
// under at-least-once they were never acknowledged and the consumer
// upstream must treat the stream as interrupted.
func (l *Loop) End() {
	l.ring = nil
	l.log.Debug().Msg("Staging ring released")
}

// Staged reports how many samples currently sit in the staging ring.
func (l *Loop) Staged() int {
	if l.ring == nil {
		return 0
	}

	return l.ring.Len()
}

// Cycle runs one processing pass and reports whether configuration
// mode has been requested. The request check comes first: a pending
// request abandons any staged work.
func (l *Loop) Cycle(ctx context.Context) (configRequested bool) {
	if l.request.IsSet() {
		l.log.Info().Msg("Configuration mode requested")

		return true
	}

	if l.ring == nil {
		return false
	}

	l.drain()
	l.processBatches(ctx)

	return false
}

// drain moves queued samples into the staging ring, bounded by ring
// space and the per-cycle drain budget.
func (l *Loop) drain() {
	moved := 0
	for moved < l.cfg.MaxDrainPerCycle && l.ring.Free() > 0 {
		sample, ok := l.queue.Pop()
		if !ok {
			break
		}
		l.ring.Push(sample)
		moved++
	}

	if moved > 0 {
		l.log.Debug().
			Int("samples", moved).
			Int("staged", l.ring.Len()).
			Msg("Drained samples into staging ring")
	}
}

func (l *Loop) processBatches(ctx context.Context) {
	for ctx.Err() == nil {
		windows, consumed := l.engine.Compute(l.ring)
		if consumed == 0 {
			return
		}

		if l.cfg.AtLeastOnce {
			if !l.deliverAcknowledged(ctx, windows) {
				return
			}
			l.ring.Retire(consumed)
			l.record(windows)

			continue
		}

		l.ring.Retire(consumed)
		l.deliverBestEffort(ctx, windows)
		l.record(windows)
	}
}

// deliverAcknowledged publishes windows in order and stops at the
// first failure. Only a fully delivered batch may be retired.
func (l *Loop) deliverAcknowledged(ctx context.Context, windows []stats.Window) bool {
	for i := range windows {
		if err := l.sink.Publish(ctx, windows[i]); err != nil {
			l.log.Warn().
				Err(err).
				Uint32("window_timestamp", windows[i].Timestamp).
				Int("delivered", i).
				Int("windows", len(windows)).
				Msg("Window delivery failed, batch held for retry")

			return false
		}
	}

	return true
}

func (l *Loop) deliverBestEffort(ctx context.Context, windows []stats.Window) {
	for i := range windows {
		if err := l.sink.Publish(ctx, windows[i]); err != nil {
			l.log.Warn().
				Err(err).
				Uint32("window_timestamp", windows[i].Timestamp).
				Msg("Window delivery failed, dropped")
		}
	}
}

func (l *Loop) record(windows []stats.Window) {
	for i := range windows {
		if err := l.store.Append(windows[i]); err != nil {
			l.log.Error().
				Err(err).
				Msg("Failed to record window in history")
		}
	}
}
