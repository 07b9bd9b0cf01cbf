package cache

import (
	"errors"
	"fmt"
	"iter"
)

// ErrOutOfRange is returned by Cursor.Value for a cursor outside its range
var ErrOutOfRange = errors.New("cache: cursor out of range")

// RangeIterator traverses the ids first..last of a cache in order. Every
// dereference prefetches the following readAhead ids, wrapping around at last
// like OrderedRange. Iteration is lazy and can be restarted with a new Begin.
//
// Cursors are values and may be used from different goroutines. All and Err
// share the error of the last loop, so one RangeIterator must not run two All
// loops at the same time.
type RangeIterator[T any] struct {
	cache     *CacheManager[T]
	readAhead uint64
	first     uint64
	last      uint64
	err       error
}

// Cursor is a position of a RangeIterator. A cursor moved past last equals End,
// also when last is the largest id and the position wraps to 0.
type Cursor[T any] struct {
	it   *RangeIterator[T]
	pos  uint64
	past bool // moved beyond last
}

// NewRangeIterator creates an iterator over [first, last] of cm
func NewRangeIterator[T any](cm *CacheManager[T], readAhead, first, last uint64) *RangeIterator[T] {
	return &RangeIterator[T]{
		cache:     cm,
		readAhead: readAhead,
		first:     first,
		last:      last,
	}
}

// Begin returns a cursor at first
func (it *RangeIterator[T]) Begin() Cursor[T] {
	return Cursor[T]{it: it, pos: it.first}
}

// End returns the cursor behind last
func (it *RangeIterator[T]) End() Cursor[T] {
	return Cursor[T]{it: it, pos: it.last + 1, past: true}
}

// All yields every id of the range with its value. Iteration stops at the
// first error, which is then returned by Err.
//
//	for id, v := range it.All() {
//		...
//	}
//	if err := it.Err(); err != nil { ... }
func (it *RangeIterator[T]) All() iter.Seq2[uint64, T] {
	return func(yield func(uint64, T) bool) {
		it.err = nil
		for c := it.Begin(); c.Valid(); c.Next() {
			v, err := c.Value()
			if err != nil {
				it.err = err
				return
			}
			if !yield(c.pos, v) {
				return
			}
		}
	}
}

// Err returns the error that stopped the last All loop
func (it *RangeIterator[T]) Err() error {
	return it.err
}

// Value prefetches the ids following the cursor and returns the value at the cursor
func (c *Cursor[T]) Value() (T, error) {
	if !c.Valid() {
		var zero T
		return zero, fmt.Errorf("%w: %d not in [%d, %d]", ErrOutOfRange, c.pos, c.it.first, c.it.last)
	}
	for _, id := range wrapAhead(c.it.first, c.it.last, c.pos, c.it.readAhead) {
		c.it.cache.Prefetch(id)
	}
	return c.it.cache.Get(c.pos)
}

// Next advances the cursor
func (c *Cursor[T]) Next() {
	if c.pos == c.it.last {
		c.past = true
	}
	c.pos++
}

// Pos returns the id at the cursor, last+1 (mod 2^64) at End
func (c Cursor[T]) Pos() uint64 {
	return c.pos
}

// Equal reports whether both cursors are at the same position
func (c Cursor[T]) Equal(other Cursor[T]) bool {
	return c.pos == other.pos && c.past == other.past
}

// Valid reports whether the cursor is inside the range
func (c Cursor[T]) Valid() bool {
	return !c.past && c.pos >= c.it.first && c.pos <= c.it.last
}
