package util

import (
	"container/heap"
	"strconv"
)

// Entry is an element of a MapHeap.
// The ID identifies the entry, the Priority orders it (lowest first).
type Entry struct {
	ID       uint64
	Priority uint64
	index    int // position in the heap slice, maintained by heap.Interface
}

func (e *Entry) String() string {
	return "{ID: " + strconv.FormatUint(e.ID, 10) + ", Priority: " + strconv.FormatUint(e.Priority, 10) + "}"
}

// MapHeap is a min-heap of entries that can also be addressed by ID.
//
// Priority operations (Set, PopMin, Remove) are O(log n),
// lookups by ID (Contains, Get) are O(1).
//
// The cache uses it for LRU eviction: the priority of an object is the tick of
// its last access, so the minimum is the least recently used object.
//
// A MapHeap is not safe for concurrent use.
type MapHeap struct {
	entries []*Entry
	byID    map[uint64]*Entry
}

// NewMapHeap creates an empty heap
func NewMapHeap() *MapHeap {
	return &MapHeap{
		entries: make([]*Entry, 0),
		byID:    make(map[uint64]*Entry),
	}
}

// --------------------------------------------------------------------------
// heap.Interface (do not call directly, use the methods below)
// --------------------------------------------------------------------------

func (h *MapHeap) Len() int { return len(h.entries) }

func (h *MapHeap) Less(i, j int) bool {
	return h.entries[i].Priority < h.entries[j].Priority
}

func (h *MapHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.entries[i].index = i
	h.entries[j].index = j
}

func (h *MapHeap) Push(x interface{}) {
	e := x.(*Entry)
	e.index = len(h.entries)
	h.entries = append(h.entries, e)
	h.byID[e.ID] = e
}

func (h *MapHeap) Pop() interface{} {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries[n-1] = nil
	e.index = -1
	h.entries = h.entries[:n-1]
	delete(h.byID, e.ID)
	return e
}

// --------------------------------------------------------------------------
// Keyed access
// --------------------------------------------------------------------------

// Set inserts id with the given priority, or moves an existing id to the new priority
func (h *MapHeap) Set(id, priority uint64) {
	if e, ok := h.byID[id]; ok {
		e.Priority = priority
		heap.Fix(h, e.index)
		return
	}
	heap.Push(h, &Entry{ID: id, Priority: priority})
}

// Remove deletes id from the heap and returns its priority
func (h *MapHeap) Remove(id uint64) (uint64, bool) {
	e, ok := h.byID[id]
	if !ok {
		return 0, false
	}
	heap.Remove(h, e.index)
	return e.Priority, true
}

// PopMin removes and returns the entry with the lowest priority
func (h *MapHeap) PopMin() (Entry, bool) {
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	e := heap.Pop(h).(*Entry)
	return *e, true
}

// Peek returns the entry with the lowest priority without removing it
func (h *MapHeap) Peek() (Entry, bool) {
	if len(h.entries) == 0 {
		return Entry{}, false
	}
	return *h.entries[0], true
}

// Contains reports whether id is in the heap
func (h *MapHeap) Contains(id uint64) bool {
	_, ok := h.byID[id]
	return ok
}

// Get returns the entry for id without removing it
func (h *MapHeap) Get(id uint64) (Entry, bool) {
	e, ok := h.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}
