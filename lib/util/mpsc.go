package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// qnode is a single link of the queue
type qnode[T any] struct {
	value *T
	next  atomic.Pointer[qnode[T]]
}

// MPSCQueue is an unbounded, lock-free multi-producer single-consumer queue.
//
// Any number of goroutines may Push concurrently. Values are delivered to exactly
// one consumer through the channel returned by Recv. The stream transport uses it
// as the send queue of a connection: request goroutines push frames, a single
// writer goroutine drains them onto the socket.
//
// Ordering is per producer only: when two producers push at the same time,
// whichever links its node first is delivered first.
type MPSCQueue[T any] struct {
	head   atomic.Pointer[qnode[T]]
	tail   atomic.Pointer[qnode[T]]
	out    chan *T
	closed atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

// NewMPSCQueue creates a queue and starts its delivery goroutine.
// The goroutine ends after Close once every queued value was delivered.
func NewMPSCQueue[T any]() *MPSCQueue[T] {
	sentinel := &qnode[T]{}

	q := &MPSCQueue[T]{
		out: make(chan *T),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.deliver()

	return q
}

// Push appends value to the queue.
// It returns false if value is nil or the queue is closed.
func (q *MPSCQueue[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	n := &qnode[T]{value: value}
	var spins uint8

	for {
		tail := q.tail.Load()
		next := tail.next.Load()

		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// may fail if another producer already advanced the tail, that is fine
				q.tail.CompareAndSwap(tail, n)

				// take the lock so the signal cannot slip in between the
				// consumer's emptiness check and its Wait
				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// another producer linked a node but has not moved the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		// exponential backoff under contention
		if spins < 10 {
			spins++
			for i := 0; i < 1<<spins; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// deliver moves values from the linked list to the out channel
func (q *MPSCQueue[T]) deliver() {
	defer close(q.out)

	for {
		delivered := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true

			value := next.value
			q.head.Store(next)
			q.out <- value
			next.value = nil
		}

		if !delivered && q.closed.Load() {
			return
		}

		if !delivered {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the channel values are delivered on.
// The channel is closed after Close once the queue ran empty.
func (q *MPSCQueue[T]) Recv() <-chan *T {
	return q.out
}

// Close rejects further pushes. Queued values are still delivered.
func (q *MPSCQueue[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// IsClosed reports whether Close was called
func (q *MPSCQueue[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len counts the queued values. It walks the list and is meant for debugging only.
func (q *MPSCQueue[T]) Len() int {
	count := 0
	for n := q.head.Load().next.Load(); n != nil; n = n.next.Load() {
		count++
	}
	return count
}
