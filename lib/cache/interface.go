package cache

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Policies
// --------------------------------------------------------------------------

// EvictionPolicy decides which entries leave a full cache.
//
// The policy tracks exactly the ids that are entries of the cache. The cache
// calls it with its mutex held, so implementations need no locking.
type EvictionPolicy interface {
	// Access records an access of id. inserted is true if id just became an
	// entry of the cache. If more than capacity ids are tracked afterward,
	// Access stops tracking and returns the ids to evict. It never returns
	// the id that was just inserted.
	Access(id uint64, inserted bool, capacity int) []uint64
	// Remove stops tracking id
	Remove(id uint64)
	// Len returns the number of tracked ids
	Len() int
	// Name is used in logs
	Name() string
}

// PrefetchPolicy decides which ids to load ahead of time after an access.
// It is called concurrently from every goroutine using the cache.
type PrefetchPolicy interface {
	// Next records a successful get or put of id and returns the ids to prefetch
	Next(id uint64) []uint64
}

// --------------------------------------------------------------------------
// Modes
// --------------------------------------------------------------------------

// Mode selects the prefetch behavior of a cache. Exactly one mode is active,
// it is one of None, OrderedRange or Custom.
type Mode interface {
	fmt.Stringer
	policy() PrefetchPolicy
}

// None disables prefetching
type None struct{}

func (None) policy() PrefetchPolicy { return nil }

func (None) String() string { return "none" }

// OrderedRange prefetches the ReadAhead ids following an accessed id of the
// range [First, Last]. The ids wrap around at Last, so an access of Last
// prefetches First onward. Accesses outside the range prefetch nothing.
type OrderedRange struct {
	First     uint64
	Last      uint64
	ReadAhead uint64
}

func (r OrderedRange) policy() PrefetchPolicy { return r }

func (r OrderedRange) String() string {
	return fmt.Sprintf("ordered-range[%d, %d] read-ahead %d", r.First, r.Last, r.ReadAhead)
}

// Next implements PrefetchPolicy
func (r OrderedRange) Next(id uint64) []uint64 {
	if id < r.First || id > r.Last {
		return nil
	}
	return wrapAhead(r.First, r.Last, id, r.ReadAhead)
}

// Custom delegates prefetching to Policy
type Custom struct {
	Policy PrefetchPolicy
}

func (c Custom) policy() PrefetchPolicy { return c.Policy }

func (c Custom) String() string { return fmt.Sprintf("custom %T", c.Policy) }

// --------------------------------------------------------------------------
// Entry State
// --------------------------------------------------------------------------

// State is the state of an id in a cache
type State int

const (
	Absent   State = iota // not in the cache
	Pending               // prefetch in flight
	Resident              // value held locally
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Pending:
		return "pending"
	case Resident:
		return "resident"
	default:
		return "unknown"
	}
}

// ErrZeroCapacity is returned by New for a capacity below one
var ErrZeroCapacity = errors.New("cache: capacity must be at least 1")

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// wrapAhead returns ((i + k - first) mod n) + first for k = 1..readAhead with
// n = last - first + 1. Beyond n-1 steps the ids repeat, so at most n-1 are
// returned. i must be in [first, last].
func wrapAhead(first, last, i, readAhead uint64) []uint64 {
	n := last - first + 1 // 0 means the full uint64 range
	steps := readAhead
	if n != 0 && steps > n-1 {
		steps = n - 1
	}

	ids := make([]uint64, 0, steps)
	pos := i - first
	for k := uint64(1); k <= steps; k++ {
		// pos + 1 mod n without overflow
		if n != 0 && pos == n-1 {
			pos = 0
		} else {
			pos++
		}
		ids = append(ids, first+pos)
	}
	return ids
}
