package bms

import "codeberg.org/mutker/packmon/internal/errors"

// Ring is the processing-side staging buffer for samples drained from
// the inter-task queue. It is owned exclusively by the processing loop
// while the Processing state is active and is not safe for concurrent
// use. Index arithmetic is (head + offset) mod capacity.
type Ring struct {
	samples  []Sample
	head     int
	count    int
	capacity int
}

// NewRing allocates a ring buffer of the given capacity.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, errors.New().WithData(errors.ErrInvalidArgument, "ring capacity must be positive")
	}

	return &Ring{
		samples:  make([]Sample, capacity),
		capacity: capacity,
	}, nil
}

// Capacity returns the fixed size of the ring.
func (r *Ring) Capacity() int {
	return r.capacity
}

// Len returns the number of staged samples.
func (r *Ring) Len() int {
	return r.count
}

// Free returns the number of unused slots.
func (r *Ring) Free() int {
	return r.capacity - r.count
}

// Push appends one sample. It returns false when the ring is full.
func (r *Ring) Push(s Sample) bool {
	if r.count == r.capacity {
		return false
	}

	r.samples[r.index(r.count)] = s
	r.count++

	return true
}

// At returns the sample at the given offset from the oldest staged
// sample. The offset must be below Len.
func (r *Ring) At(offset int) Sample {
	return r.samples[r.index(offset)]
}

// Retire wipes the n oldest samples in place and advances the head past
// them. Returns the number of samples actually retired.
func (r *Ring) Retire(n int) int {
	if n <= 0 {
		return 0
	}
	if n > r.count {
		n = r.count
	}

	for i := 0; i < n; i++ {
		r.samples[r.index(i)] = Sample{}
	}

	r.head = r.index(n)
	r.count -= n

	return n
}

func (r *Ring) index(offset int) int {
	return (r.head + offset) % r.capacity
}
