// Package appsm drives the application state machine. Each tick runs
// an entry action when the state was just entered, the current state's
// handler, and an exit action when the handler decided to leave.
//
// Init retries nothing by itself: collaborators are built before the
// machine starts, so Init only picks the first working state. Leaving
// Init starts the measurement side, which is the watchdog timer, the
// feeders, and the acquisition loop. Entering Config tears the
// measurement side down and leaves only the console running; the
// state is terminal and the way back to Processing is a restart.
package appsm

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/packmon/internal/acquire"
	"codeberg.org/mutker/packmon/internal/logger"
	"codeberg.org/mutker/packmon/internal/process"
	"codeberg.org/mutker/packmon/internal/watchdog"
)

type Machine struct {
	cfg        Config
	loop       *process.Loop
	sampler    *acquire.Sampler
	timer      *watchdog.Timer
	supervisor *watchdog.Supervisor
	request    process.ConfigRequest
	log        logger.Logger

	// mu guards curr for readers outside the machine goroutine; prev
	// and next are touched only by Tick.
	mu   sync.Mutex
	prev State
	curr State
	next State

	acquireCancel context.CancelFunc
	acquireWG     sync.WaitGroup
}

func New(
	cfg Config,
	loop *process.Loop,
	sampler *acquire.Sampler,
	timer *watchdog.Timer,
	supervisor *watchdog.Supervisor,
	request process.ConfigRequest,
	log logger.Logger,
) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Machine{
		cfg:        cfg,
		loop:       loop,
		sampler:    sampler,
		timer:      timer,
		supervisor: supervisor,
		request:    request,
		log:        log,
		prev:       StateUndefined,
		curr:       StateInit,
		next:       StateInit,
	}, nil
}

// State reports the current state. It is safe to call from other
// goroutines, which is how the console status page reads the mode.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.curr
}

// Run executes the machine at the tick period until the context is
// canceled. A tick that exceeds the processing budget is a fault: the
// supervisor trips and the watchdog takes the process down.
func (m *Machine) Run(ctx context.Context) {
	m.log.Info().
		Dur("tick_period", m.cfg.TickPeriod).
		Msg("State machine started")

	ticker := time.NewTicker(m.cfg.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.stopAcquisition()
			m.log.Info().Msg("State machine stopped")

			return
		case <-ticker.C:
			start := time.Now()
			m.Tick(ctx)

			if elapsed := time.Since(start); elapsed > m.cfg.ProcessingBudget {
				m.supervisor.Trip(process.Component, "tick budget exceeded")
				m.log.Error().
					Dur("elapsed", elapsed).
					Dur("budget", m.cfg.ProcessingBudget).
					Msg("State machine tick exceeded processing budget")
			}
		}
	}
}

// Tick runs one pass: entry action, state handler, exit action, then
// state rotation.
func (m *Machine) Tick(ctx context.Context) {
	m.enterState()

	switch m.curr {
	case StateInit:
		m.next = m.handleInit()
	case StateProcessing:
		m.next = m.handleProcessing(ctx)
	case StateConfig:
		m.next = m.handleConfig()
	default:
		m.next = m.curr
	}

	m.leaveState(ctx)

	m.prev = m.curr
	m.mu.Lock()
	m.curr = m.next
	m.mu.Unlock()
}

// enterState runs the entry action of a freshly entered state.
func (m *Machine) enterState() {
	if m.prev == m.curr {
		return
	}

	m.log.Debug().
		Str("from", m.prev.String()).
		Str("state", m.curr.String()).
		Msg("State entered")

	switch m.curr {
	case StateProcessing:
		if err := m.loop.Begin(); err != nil {
			m.supervisor.Trip(process.Component, "staging ring allocation failed")
			m.log.Error().Err(err).Msg("Failed to allocate staging ring")
		}
	case StateConfig:
		m.stopAcquisition()
		m.log.Info().Msg("Configuration mode active, measurement suspended")
	default:
	}
}

// leaveState runs the exit action of a state the handler decided to
// leave.
func (m *Machine) leaveState(ctx context.Context) {
	if m.curr == m.next {
		return
	}

	switch m.curr {
	case StateInit:
		if m.next == StateProcessing {
			m.startAcquisition(ctx)
			m.log.Info().Msg("Application started, measurement running")
		}
	case StateProcessing:
		m.loop.End()
	default:
	}
}

func (m *Machine) handleInit() State {
	// A config request that survived a restart boots the device
	// straight into configuration mode.
	if m.request.IsSet() {
		return StateConfig
	}

	return StateProcessing
}

func (m *Machine) handleProcessing(ctx context.Context) State {
	if m.loop.Cycle(ctx) {
		return StateConfig
	}

	return StateProcessing
}

func (m *Machine) handleConfig() State {
	return StateConfig
}

// startAcquisition brings up the watchdog timer, the feeders, and the
// sampling loop.
func (m *Machine) startAcquisition(ctx context.Context) {
	acquireCtx, cancel := context.WithCancel(ctx)
	m.acquireCancel = cancel

	m.timer.Start()

	feeders := []*watchdog.Feeder{
		watchdog.NewFeeder(acquire.Component, m.timer, m.supervisor, m.cfg.FeedInterval),
		watchdog.NewFeeder(process.Component, m.timer, m.supervisor, m.cfg.FeedInterval),
	}
	for _, feeder := range feeders {
		m.acquireWG.Add(1)
		go func(f *watchdog.Feeder) {
			defer m.acquireWG.Done()
			f.Run(acquireCtx)
		}(feeder)
	}

	m.acquireWG.Add(1)
	go func() {
		defer m.acquireWG.Done()
		m.sampler.Run(acquireCtx)
	}()
}

// stopAcquisition cancels the measurement goroutines, waits briefly
// for them to exit, and stops the watchdog timer. A missed join is
// reported but not fatal; the goroutines hold no resources beyond the
// queue.
func (m *Machine) stopAcquisition() {
	if m.acquireCancel == nil {
		return
	}
	m.acquireCancel()
	m.acquireCancel = nil

	done := make(chan struct{})
	go func() {
		m.acquireWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Debug().Msg("Acquisition stopped cleanly")
	case <-time.After(m.cfg.JoinTimeout):
		m.log.Warn().
			Dur("timeout", m.cfg.JoinTimeout).
			Msg("Could not verify clean shutdown of acquisition")
	}

	m.timer.Stop()
}
