package appsm_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/packmon/internal/acquire"
	"codeberg.org/mutker/packmon/internal/appsm"
	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/logger"
	"codeberg.org/mutker/packmon/internal/process"
	"codeberg.org/mutker/packmon/internal/queue"
	"codeberg.org/mutker/packmon/internal/stats"
	"codeberg.org/mutker/packmon/internal/telemetry"
	"codeberg.org/mutker/packmon/internal/watchdog"
)

type fakeAdapter struct {
	mu    sync.Mutex
	reads int
}

func (f *fakeAdapter) ReadSample() (bms.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	var s bms.Sample
	for c := 0; c < bms.NumCells; c++ {
		s.CellV[c] = 1.2
	}
	s.PackV = 6.0
	s.PackI = 0.5
	s.Timestamp = uint32(f.reads)

	return s, nil
}

func (f *fakeAdapter) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.reads
}

type countingSink struct {
	mu        sync.Mutex
	published int
}

func (s *countingSink) Publish(context.Context, stats.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published++

	return nil
}

func (s *countingSink) Close() error { return nil }

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.published
}

type countingStore struct {
	mu       sync.Mutex
	recorded int
}

func (s *countingStore) Append(stats.Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded++

	return nil
}

func (s *countingStore) Recent(int) ([]stats.Window, error) { return nil, nil }
func (s *countingStore) Close() error                       { return nil }

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recorded
}

type flagStub struct {
	mu  sync.Mutex
	val bool
}

func (f *flagStub) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.val
}

func (f *flagStub) Set(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.val = v
}

type harness struct {
	machine *appsm.Machine
	queue   *queue.Queue
	loop    *process.Loop
	sup     *watchdog.Supervisor
	adapter *fakeAdapter
	sink    *countingSink
	store   *countingStore
	flag    *flagStub
	fired   chan string
}

var _ telemetry.Sink = (*countingSink)(nil)

func newHarness(t *testing.T, mutate func(*appsm.Config)) *harness {
	t.Helper()

	q, err := queue.New(600)
	require.NoError(t, err)

	engine, err := stats.NewEngine(stats.Config{
		Limits: bms.Limits{
			CellVoltageMin: 0.5,
			CellVoltageMax: 2.0,
			PackVoltageMin: 2.5,
			PackVoltageMax: 10.0,
			CurrentMin:     -5.0,
			CurrentMax:     5.0,
		},
		BatchSize:     20,
		SubwindowSize: 4,
	})
	require.NoError(t, err)

	sink := &countingSink{}
	store := &countingStore{}
	flag := &flagStub{}

	loop, err := process.New(process.DefaultConfig(), q, engine, sink, store, flag, logger.Default())
	require.NoError(t, err)

	sup := watchdog.NewSupervisor(logger.Default())
	fired := make(chan string, 4)
	timer, err := watchdog.NewTimer(watchdog.Config{
		FeedInterval: 5 * time.Millisecond,
		Timeout:      50 * time.Millisecond,
		OnExpire:     func(component string) { fired <- component },
	}, logger.Default())
	require.NoError(t, err)

	adapter := &fakeAdapter{}
	sampler, err := acquire.New(acquire.Config{Period: 10 * time.Millisecond}, adapter, q, sup, logger.Default())
	require.NoError(t, err)

	cfg := appsm.DefaultConfig()
	cfg.TickPeriod = 20 * time.Millisecond
	cfg.FeedInterval = 5 * time.Millisecond
	cfg.JoinTimeout = 200 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	machine, err := appsm.New(cfg, loop, sampler, timer, sup, flag, logger.Default())
	require.NoError(t, err)

	return &harness{
		machine: machine,
		queue:   q,
		loop:    loop,
		sup:     sup,
		adapter: adapter,
		sink:    sink,
		store:   store,
		flag:    flag,
		fired:   fired,
	}
}

func (h *harness) run(t *testing.T) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.machine.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("machine did not stop")
		}
	})

	return cancel
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, appsm.DefaultConfig().Validate())

	cfg := appsm.DefaultConfig()
	cfg.TickPeriod = 0
	assert.Error(t, cfg.Validate())

	cfg = appsm.DefaultConfig()
	cfg.JoinTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestBootsIntoProcessingAndPublishes(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t)

	require.Eventually(t, func() bool {
		return h.machine.State() == appsm.StateProcessing
	}, 2*time.Second, 10*time.Millisecond, "machine never reached processing")

	// Acquisition at 10ms fills a 20-sample batch in about 200ms;
	// the next tick computes and delivers it.
	require.Eventually(t, func() bool {
		return h.sink.count() >= 1
	}, 5*time.Second, 20*time.Millisecond, "no window was ever published")

	assert.GreaterOrEqual(t, h.store.count(), 1)
	assert.True(t, h.sup.Allowed())
}

func TestBootsIntoConfigWhenRequested(t *testing.T) {
	h := newHarness(t, nil)
	h.flag.Set(true)
	h.run(t)

	require.Eventually(t, func() bool {
		return h.machine.State() == appsm.StateConfig
	}, 2*time.Second, 10*time.Millisecond)

	// Measurement never started.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, h.adapter.readCount())
	assert.Zero(t, h.sink.count())
}

func TestProcessingToConfigOnRequest(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t)

	require.Eventually(t, func() bool {
		return h.sink.count() >= 1
	}, 5*time.Second, 20*time.Millisecond)

	h.flag.Set(true)

	require.Eventually(t, func() bool {
		return h.machine.State() == appsm.StateConfig
	}, 2*time.Second, 10*time.Millisecond)

	// The staging ring was released on the way out.
	assert.Zero(t, h.loop.Staged())

	// Acquisition wound down: the read count settles.
	time.Sleep(50 * time.Millisecond)
	reads := h.adapter.readCount()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, reads, h.adapter.readCount())

	// Config is terminal even if the request is withdrawn.
	h.flag.Set(false)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, appsm.StateConfig, h.machine.State())
}

func TestTickBudgetOverrunTrips(t *testing.T) {
	h := newHarness(t, func(cfg *appsm.Config) {
		cfg.ProcessingBudget = time.Nanosecond
	})
	h.run(t)

	require.Eventually(t, func() bool {
		return !h.sup.Allowed()
	}, 2*time.Second, 10*time.Millisecond, "budget overrun never tripped the supervisor")

	// With feeding stopped the watchdog timer expires.
	select {
	case <-h.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired after trip")
	}
}
