package cache

import "sync"

// minStrideRun is the number of equal strides needed before prefetching
const minStrideRun = 2

type stridePolicy struct {
	mu        sync.Mutex
	readAhead uint64
	last      uint64
	stride    int64
	run       int
	seen      bool
}

// NewStridePolicy detects accesses with a constant distance, like 3, 5, 7, 9.
// Once the same stride was seen twice in a row it prefetches the readAhead
// ids continuing the pattern. Any other access resets the detection.
func NewStridePolicy(readAhead uint64) PrefetchPolicy {
	return &stridePolicy{readAhead: readAhead}
}

func (p *stridePolicy) Next(id uint64) []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.seen {
		p.seen = true
		p.last = id
		return nil
	}

	stride := int64(id - p.last)
	p.last = id
	switch {
	case stride == 0:
		return nil
	case stride == p.stride:
		p.run++
	default:
		p.stride = stride
		p.run = 1
	}
	if p.run < minStrideRun {
		return nil
	}

	ids := make([]uint64, 0, p.readAhead)
	next := id
	for k := uint64(0); k < p.readAhead; k++ {
		prev := next
		next += uint64(p.stride)
		// stop at the ends of the id space
		if (p.stride > 0 && next < prev) || (p.stride < 0 && next > prev) {
			break
		}
		ids = append(ids, next)
	}
	return ids
}
