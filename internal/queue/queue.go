// Package queue provides the bounded hand-off between the acquisition
// and processing goroutines. Push never blocks and never overwrites: a
// full queue rejects the sample and the producer treats saturation as a
// fault, not as backpressure to wait out.
package queue

import (
	"sync"

	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/errors"
)

// Queue is a fixed-capacity FIFO of samples. All operations run inside a
// short critical section so the producer's real-time period is never
// threatened by the consumer.
type Queue struct {
	mu       sync.Mutex
	samples  []bms.Sample
	head     int
	count    int
	capacity int
}

// New creates a queue with the given capacity.
func New(capacity int) (*Queue, error) {
	if capacity <= 0 {
		return nil, errors.New().WithData(errors.ErrInvalidArgument, "queue capacity must be positive")
	}

	return &Queue{
		samples:  make([]bms.Sample, capacity),
		capacity: capacity,
	}, nil
}

// Push enqueues one sample. It returns false when the queue is full; the
// caller never retries or blocks.
func (q *Queue) Push(s bms.Sample) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == q.capacity {
		return false
	}

	q.samples[(q.head+q.count)%q.capacity] = s
	q.count++

	return true
}

// Pop dequeues the oldest sample. The second return value is false when
// the queue is empty.
func (q *Queue) Pop() (bms.Sample, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return bms.Sample{}, false
	}

	s := q.samples[q.head]
	q.head = (q.head + 1) % q.capacity
	q.count--

	return s, true
}

// Free returns the number of free slots.
func (q *Queue) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.capacity - q.count
}

// Len returns the number of queued samples.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.count
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return q.capacity
}
