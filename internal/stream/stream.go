package stream

import (
	"sync"
)

// subscriberQueueCap is the initial per-subscriber queue capacity.
const subscriberQueueCap = 64

// Stream is a broadcast stream with current-value semantics: every new
// subscriber first receives the most recently published value, then all
// subsequent values in publish order. Publishing never blocks and never
// drops; slow subscribers accumulate in a growable queue.
type Stream[T any] struct {
	mu     sync.Mutex
	last   T
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool
}

// New creates a stream seeded with an initial current value.
func New[T any](initial T) *Stream[T] {
	return &Stream[T]{
		last: initial,
		subs: make(map[uint64]*Subscription[T]),
	}
}

// Publish sets the current value and delivers it to every subscriber.
// No-op after Close.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.last = v
	for _, sub := range s.subs {
		sub.queue.Push(v)
	}
}

// Last returns the current value.
func (s *Stream[T]) Last() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Subscribe registers a new subscriber. Its channel yields the current
// value first. Returns a terminated subscription if the stream is closed.
func (s *Stream[T]) Subscribe() *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscription[T]{
		stream: s,
		id:     s.nextID,
		queue:  NewRingQueue[T](subscriberQueueCap),
		out:    make(chan T),
		dead:   make(chan struct{}),
	}
	s.nextID++

	if s.closed {
		sub.queue.Close()
		close(sub.out)
		return sub
	}

	sub.queue.Push(s.last)
	s.subs[sub.id] = sub

	go sub.pump()

	return sub
}

// Close terminates the stream. Subscribers receive any queued values, then
// their channels close. No further values are deliverable.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for id, sub := range s.subs {
		sub.queue.Close()
		delete(s.subs, id)
	}
}

// remove detaches a subscription; called from Cancel.
func (s *Stream[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Subscription is one subscriber's view of a Stream.
type Subscription[T any] struct {
	stream *Stream[T]
	id     uint64
	queue  *RingQueue[T]
	out    chan T
	dead   chan struct{}

	cancelOnce sync.Once
}

// C returns the value channel. It closes after Cancel, or after stream
// Close once queued values have been drained.
func (sub *Subscription[T]) C() <-chan T {
	return sub.out
}

// Cancel detaches the subscription and closes its channel. Undelivered
// values are discarded; the subscriber is assumed to have stopped reading.
func (sub *Subscription[T]) Cancel() {
	sub.cancelOnce.Do(func() {
		sub.stream.remove(sub.id)
		sub.queue.Close()
		close(sub.dead)
	})
}

// pump moves values from the queue to the subscriber channel in order.
func (sub *Subscription[T]) pump() {
	defer close(sub.out)
	for {
		v, ok := sub.queue.Pop()
		if !ok {
			return
		}
		select {
		case sub.out <- v:
		case <-sub.dead:
			return
		}
	}
}
