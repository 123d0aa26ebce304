package acquire_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/packmon/internal/acquire"
	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/logger"
	"codeberg.org/mutker/packmon/internal/queue"
	"codeberg.org/mutker/packmon/internal/watchdog"
)

type fakeAdapter struct {
	mu      sync.Mutex
	reads   int
	err     error
	delay   time.Duration
	delayAt int
}

func (f *fakeAdapter) ReadSample() (bms.Sample, error) {
	f.mu.Lock()
	f.reads++
	reads := f.reads
	f.mu.Unlock()

	if f.err != nil {
		return bms.Sample{}, f.err
	}
	if f.delayAt != 0 && reads == f.delayAt {
		time.Sleep(f.delay)
	}

	return bms.Sample{Timestamp: uint32(reads)}, nil
}

func (f *fakeAdapter) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.reads
}

func newSampler(t *testing.T, period time.Duration, adp *fakeAdapter, capacity int) (*acquire.Sampler, *queue.Queue, *watchdog.Supervisor) {
	t.Helper()

	q, err := queue.New(capacity)
	require.NoError(t, err)
	sup := watchdog.NewSupervisor(logger.Default())

	sampler, err := acquire.New(acquire.Config{Period: period}, adp, q, sup, logger.Default())
	require.NoError(t, err)

	return sampler, q, sup
}

func runFor(sampler *acquire.Sampler, d time.Duration) time.Duration {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	start := time.Now()
	go func() {
		sampler.Run(ctx)
		close(done)
	}()
	time.Sleep(d)
	elapsed := time.Since(start)
	cancel()
	<-done

	return elapsed
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, acquire.DefaultConfig().Validate())
	assert.Error(t, acquire.Config{Period: 0}.Validate())
	assert.Error(t, acquire.Config{Period: -time.Second}.Validate())
}

func TestSamplerProducesAtConfiguredRate(t *testing.T) {
	period := 10 * time.Millisecond
	adp := &fakeAdapter{}
	sampler, q, sup := newSampler(t, period, adp, 100)

	elapsed := runFor(sampler, 115*time.Millisecond)

	expected := int(elapsed / period)
	assert.InDelta(t, expected, q.Len(), 2)
	assert.True(t, sup.Allowed())
}

func TestSamplerCatchesUpAfterSlowCycle(t *testing.T) {
	period := 10 * time.Millisecond
	adp := &fakeAdapter{delay: 35 * time.Millisecond, delayAt: 3}
	sampler, q, sup := newSampler(t, period, adp, 100)

	elapsed := runFor(sampler, 150*time.Millisecond)

	// Absolute deadlines mean the stalled cycle is followed by
	// immediate catch-up fires, so the total count still tracks
	// elapsed time.
	expected := int(elapsed / period)
	assert.GreaterOrEqual(t, q.Len(), expected-2)

	// The stalled cycle itself is an overrun fault.
	assert.False(t, sup.Allowed())
}

func TestSamplerTripsOnSaturation(t *testing.T) {
	adp := &fakeAdapter{}
	sampler, q, sup := newSampler(t, 5*time.Millisecond, adp, 2)

	runFor(sampler, 100*time.Millisecond)

	assert.Equal(t, 2, q.Len())
	assert.False(t, sup.Allowed())
}

func TestSamplerContinuesAfterReadError(t *testing.T) {
	adp := &fakeAdapter{err: assert.AnError}
	sampler, q, sup := newSampler(t, 5*time.Millisecond, adp, 100)

	runFor(sampler, 60*time.Millisecond)

	assert.Greater(t, adp.readCount(), 1)
	assert.Zero(t, q.Len())
	// Read errors are reported but are not supervisor faults.
	assert.True(t, sup.Allowed())
}

func TestSamplerStopsOnCancel(t *testing.T) {
	adp := &fakeAdapter{}
	sampler, _, _ := newSampler(t, 5*time.Millisecond, adp, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sampler.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("sampler did not stop after cancellation")
	}
}
