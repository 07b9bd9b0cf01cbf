package cache

import (
	"container/list"
	"math/rand/v2"

	"github.com/ValentinKolb/dMem/lib/util"
)

// --------------------------------------------------------------------------
// FIFO
// --------------------------------------------------------------------------

type fifoPolicy struct {
	order *list.List // front is the oldest insertion
	elems map[uint64]*list.Element
}

// NewFIFOPolicy evicts in insertion order. Accesses after the insertion do not
// change the order, an entry read a moment ago is still evicted first if it
// was inserted first. This is the default policy.
func NewFIFOPolicy() EvictionPolicy {
	return &fifoPolicy{
		order: list.New(),
		elems: make(map[uint64]*list.Element),
	}
}

func (p *fifoPolicy) Access(id uint64, inserted bool, capacity int) []uint64 {
	if !inserted {
		return nil
	}
	if _, ok := p.elems[id]; !ok {
		p.elems[id] = p.order.PushBack(id)
	}

	var victims []uint64
	for len(p.elems) > capacity {
		oldest := p.order.Front()
		victim := oldest.Value.(uint64)
		p.order.Remove(oldest)
		delete(p.elems, victim)
		victims = append(victims, victim)
	}
	return victims
}

func (p *fifoPolicy) Remove(id uint64) {
	if e, ok := p.elems[id]; ok {
		p.order.Remove(e)
		delete(p.elems, id)
	}
}

func (p *fifoPolicy) Len() int { return len(p.elems) }

func (p *fifoPolicy) Name() string { return "fifo" }

// --------------------------------------------------------------------------
// LRU
// --------------------------------------------------------------------------

type lruPolicy struct {
	heap *util.MapHeap // priority is the tick of the last access
	tick uint64
}

// NewLRUPolicy evicts the least recently accessed entry
func NewLRUPolicy() EvictionPolicy {
	return &lruPolicy{heap: util.NewMapHeap()}
}

func (p *lruPolicy) Access(id uint64, inserted bool, capacity int) []uint64 {
	if !inserted && !p.heap.Contains(id) {
		return nil
	}
	p.tick++
	p.heap.Set(id, p.tick)

	var victims []uint64
	for p.heap.Len() > capacity {
		e, _ := p.heap.PopMin()
		victims = append(victims, e.ID)
	}
	return victims
}

func (p *lruPolicy) Remove(id uint64) {
	p.heap.Remove(id)
}

func (p *lruPolicy) Len() int { return p.heap.Len() }

func (p *lruPolicy) Name() string { return "lru" }

// --------------------------------------------------------------------------
// Random
// --------------------------------------------------------------------------

type randomPolicy struct {
	ids   []uint64
	index map[uint64]int
	rng   *rand.Rand
}

// NewRandomPolicy evicts a uniformly chosen entry other than the one just
// inserted. The same seed yields the same evictions for the same accesses.
func NewRandomPolicy(seed uint64) EvictionPolicy {
	return &randomPolicy{
		index: make(map[uint64]int),
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (p *randomPolicy) Access(id uint64, inserted bool, capacity int) []uint64 {
	if !inserted {
		return nil
	}
	if _, ok := p.index[id]; !ok {
		p.index[id] = len(p.ids)
		p.ids = append(p.ids, id)
	}

	var victims []uint64
	for len(p.ids) > capacity && len(p.ids) > 1 {
		victim := p.ids[p.rng.IntN(len(p.ids))]
		if victim == id {
			continue
		}
		p.Remove(victim)
		victims = append(victims, victim)
	}
	return victims
}

func (p *randomPolicy) Remove(id uint64) {
	i, ok := p.index[id]
	if !ok {
		return
	}
	last := len(p.ids) - 1
	p.ids[i] = p.ids[last]
	p.index[p.ids[i]] = i
	p.ids = p.ids[:last]
	delete(p.index, id)
}

func (p *randomPolicy) Len() int { return len(p.ids) }

func (p *randomPolicy) Name() string { return "random" }
