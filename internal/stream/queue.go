package stream

import (
	"sync"
)

// RingQueue is a thread-safe FIFO that grows geometrically once it reaches
// 70% of capacity, so producers never block and never drop.
type RingQueue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	head     int // next read position
	tail     int // next write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalPushed int64
	totalPopped int64
	growths     int
}

// NewRingQueue creates a queue with the given initial capacity.
func NewRingQueue[T any](initialCapacity int) *RingQueue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	q := &RingQueue[T]{
		items:    make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item, growing the queue if at 70% capacity.
// Returns false if the queue is closed.
func (q *RingQueue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.items[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalPushed++

	q.cond.Signal()
	return true
}

// Pop removes and returns the oldest item, blocking until one is available
// or the queue is closed. Returns false once closed and drained.
func (q *RingQueue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}

	return q.popLocked(), true
}

// Close closes the queue. Pending items remain poppable; Push returns false.
func (q *RingQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *RingQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the current capacity.
func (q *RingQueue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Stats returns queue counters.
func (q *RingQueue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:         q.count,
		Cap:         q.capacity,
		TotalPushed: q.totalPushed,
		TotalPopped: q.totalPopped,
		Growths:     q.growths,
	}
}

// QueueStats contains queue counters.
type QueueStats struct {
	Len         int
	Cap         int
	TotalPushed int64
	TotalPopped int64
	Growths     int
}

// popLocked removes the head item. Must be called with the lock held and
// count > 0.
func (q *RingQueue[T]) popLocked() T {
	item := q.items[q.head]
	var zero T
	q.items[q.head] = zero // release reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.totalPopped++
	return item
}

// grow doubles capacity. Must be called with the lock held.
func (q *RingQueue[T]) grow() {
	next := make([]T, q.capacity*2)

	if q.count > 0 {
		if q.head < q.tail {
			copy(next, q.items[q.head:q.tail])
		} else {
			n := copy(next, q.items[q.head:])
			copy(next[n:], q.items[:q.tail])
		}
	}

	q.items = next
	q.head = 0
	q.tail = q.count
	q.capacity = len(next)
	q.growths++
}
