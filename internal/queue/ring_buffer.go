// Package queue provides the bounded buffer carrying signals from ingestion
// to the correlation pipeline.
package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"redblue-core/internal/schema"
)

var (
	// ErrQueueFull is returned when a push would exceed capacity.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueEmpty is returned when no signal is available.
	ErrQueueEmpty = errors.New("queue is empty")
	// ErrQueueClosed is returned once the queue has been closed and drained.
	ErrQueueClosed = errors.New("queue is closed")
)

// RingBuffer is a fixed-capacity circular signal buffer safe for concurrent
// producers and consumers. Pushes never block; a full buffer drops the signal
// and counts it.
type RingBuffer struct {
	buffer []*schema.Signal
	size   int
	head   int
	tail   int
	count  int
	closed bool
	mu     sync.Mutex
	cond   *sync.Cond

	// Metrics (accessed atomically)
	totalPushed  uint64
	totalPopped  uint64
	totalDropped uint64
}

// NewRingBuffer creates a RingBuffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 10000
	}
	rb := &RingBuffer{
		buffer: make([]*schema.Signal, size),
		size:   size,
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Push enqueues a signal. Returns ErrQueueFull if the buffer is at capacity
// and ErrQueueClosed after Close.
func (rb *RingBuffer) Push(sig *schema.Signal) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return ErrQueueClosed
	}
	if rb.count == rb.size {
		atomic.AddUint64(&rb.totalDropped, 1)
		return ErrQueueFull
	}

	rb.buffer[rb.tail] = sig
	rb.tail = (rb.tail + 1) % rb.size
	rb.count++
	atomic.AddUint64(&rb.totalPushed, 1)

	rb.cond.Signal()
	return nil
}

// popLocked removes the head signal. Caller holds rb.mu and has verified
// count > 0.
func (rb *RingBuffer) popLocked() *schema.Signal {
	sig := rb.buffer[rb.head]
	rb.buffer[rb.head] = nil
	rb.head = (rb.head + 1) % rb.size
	rb.count--
	atomic.AddUint64(&rb.totalPopped, 1)
	return sig
}

// Pop removes and returns the oldest signal without blocking.
func (rb *RingBuffer) Pop() (*schema.Signal, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.count == 0 {
		if rb.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}
	return rb.popLocked(), nil
}

// PopBlocking removes and returns the oldest signal, waiting until one is
// available or the queue is closed and drained.
func (rb *RingBuffer) PopBlocking() (*schema.Signal, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.count == 0 && !rb.closed {
		rb.cond.Wait()
	}
	if rb.count == 0 {
		return nil, ErrQueueClosed
	}
	return rb.popLocked(), nil
}

// PopWithTimeout removes and returns the oldest signal, waiting at most the
// given duration. Returns ErrQueueEmpty on timeout.
func (rb *RingBuffer) PopWithTimeout(timeout time.Duration) (*schema.Signal, error) {
	deadline := time.Now().Add(timeout)

	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.count == 0 && !rb.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrQueueEmpty
		}

		// cond has no timed wait; a helper timer broadcasts so the
		// loop can re-check the deadline.
		timer := time.AfterFunc(remaining, func() {
			rb.mu.Lock()
			rb.cond.Broadcast()
			rb.mu.Unlock()
		})
		rb.cond.Wait()
		timer.Stop()
	}

	if rb.count == 0 {
		if rb.closed {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueEmpty
	}
	return rb.popLocked(), nil
}

// Len returns the number of buffered signals.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Cap returns the buffer capacity.
func (rb *RingBuffer) Cap() int {
	return rb.size
}

// Close stops accepting pushes and wakes all waiting consumers. Buffered
// signals remain poppable until drained.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
	rb.cond.Broadcast()
}

// Metrics returns cumulative queue counters and current depth.
func (rb *RingBuffer) Metrics() Metrics {
	return Metrics{
		Pushed:   atomic.LoadUint64(&rb.totalPushed),
		Popped:   atomic.LoadUint64(&rb.totalPopped),
		Dropped:  atomic.LoadUint64(&rb.totalDropped),
		Depth:    rb.Len(),
		Capacity: rb.size,
	}
}

// Metrics holds queue operation counters.
type Metrics struct {
	Pushed   uint64 `json:"pushed"`
	Popped   uint64 `json:"popped"`
	Dropped  uint64 `json:"dropped"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}
