package async

import (
	"sync"
)

// Op is the handle of an operation that completes at some point in the future.
// An Op completes exactly once, either with a value or with an error. After
// completion the result never changes and can be read any number of times.
//
// The zero value is not usable, create ops with New, Go, Then, Completed or Failed.
type Op[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// New creates a pending operation. The creator is responsible for calling
// Complete or Fail exactly once, later calls are ignored.
func New[T any]() *Op[T] {
	return &Op[T]{done: make(chan struct{})}
}

// Completed returns an operation that has already completed with v
func Completed[T any](v T) *Op[T] {
	op := New[T]()
	op.Complete(v)
	return op
}

// Failed returns an operation that has already failed with err
func Failed[T any](err error) *Op[T] {
	op := New[T]()
	op.Fail(err)
	return op
}

// Go runs fn in a new goroutine and returns an operation that completes with its result
func Go[T any](fn func() (T, error)) *Op[T] {
	op := New[T]()
	go func() {
		v, err := fn()
		op.finish(v, err)
	}()
	return op
}

// Then returns an operation that completes with fn applied to the result of op.
// If op fails, fn is not called and the returned operation fails with the same error.
func Then[T, U any](op *Op[T], fn func(T) (U, error)) *Op[U] {
	next := New[U]()

	// fast path: no goroutine needed
	if op.TryWait() {
		next.finish(apply(op, fn))
		return next
	}

	go func() {
		next.finish(apply(op, fn))
	}()
	return next
}

// --------------------------------------------------------------------------
// Completion
// --------------------------------------------------------------------------

// Complete completes the operation with v.
// It returns false if the operation was already completed.
func (o *Op[T]) Complete(v T) bool {
	return o.finish(v, nil)
}

// Fail completes the operation with err.
// It returns false if the operation was already completed.
func (o *Op[T]) Fail(err error) bool {
	var zero T
	return o.finish(zero, err)
}

func (o *Op[T]) finish(v T, err error) bool {
	first := false
	o.once.Do(func() {
		o.val = v
		o.err = err
		first = true
		close(o.done)
	})
	return first
}

// --------------------------------------------------------------------------
// Observation
// --------------------------------------------------------------------------

// Wait blocks until the operation completed and returns its result
func (o *Op[T]) Wait() (T, error) {
	<-o.done
	return o.val, o.err
}

// TryWait reports whether the operation has completed. It never blocks.
func (o *Op[T]) TryWait() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the operation completed.
// This allows waiting for an operation in a select statement.
func (o *Op[T]) Done() <-chan struct{} {
	return o.done
}

// Err returns the error of a completed operation, or nil if it is still pending or succeeded
func (o *Op[T]) Err() error {
	if !o.TryWait() {
		return nil
	}
	return o.err
}

// WaitAll waits for all operations and returns the first error encountered (in argument order)
func WaitAll[T any](ops ...*Op[T]) error {
	var firstErr error
	for _, op := range ops {
		if _, err := op.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func apply[T, U any](op *Op[T], fn func(T) (U, error)) (U, error) {
	v, err := op.Wait()
	if err != nil {
		var zero U
		return zero, err
	}
	return fn(v)
}
