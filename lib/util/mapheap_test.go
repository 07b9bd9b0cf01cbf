package util

import (
	"sort"
	"testing"
)

func TestNewMapHeap(t *testing.T) {
	h := NewMapHeap()

	if h.Len() != 0 {
		t.Errorf("new heap should be empty, has %d entries", h.Len())
	}
	if _, ok := h.Peek(); ok {
		t.Error("Peek on empty heap should return false")
	}
	if _, ok := h.PopMin(); ok {
		t.Error("PopMin on empty heap should return false")
	}
}

func TestSetAndPeek(t *testing.T) {
	h := NewMapHeap()
	h.Set(1, 100)
	h.Set(2, 200)
	h.Set(3, 50)

	if h.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", h.Len())
	}
	for _, id := range []uint64{1, 2, 3} {
		if !h.Contains(id) {
			t.Errorf("heap should contain %d", id)
		}
	}

	min, ok := h.Peek()
	if !ok || min.ID != 3 || min.Priority != 50 {
		t.Errorf("expected min (3,50), got %v", min)
	}
}

func TestSetUpdatesPriority(t *testing.T) {
	h := NewMapHeap()
	h.Set(1, 100)
	h.Set(2, 200)

	// touching 1 again moves it behind 2
	h.Set(1, 300)

	if e, _ := h.Get(1); e.Priority != 300 {
		t.Errorf("priority of 1 should be 300, got %d", e.Priority)
	}
	if min, _ := h.Peek(); min.ID != 2 {
		t.Errorf("min should now be 2, got %d", min.ID)
	}
	if h.Len() != 2 {
		t.Errorf("update must not add entries, len=%d", h.Len())
	}
}

func TestRemove(t *testing.T) {
	h := NewMapHeap()
	h.Set(1, 10)
	h.Set(2, 20)
	h.Set(3, 30)

	prio, ok := h.Remove(2)
	if !ok || prio != 20 {
		t.Errorf("expected (20,true), got (%d,%v)", prio, ok)
	}
	if h.Contains(2) {
		t.Error("2 should be gone")
	}
	if _, ok := h.Remove(2); ok {
		t.Error("second Remove should fail")
	}
	if h.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", h.Len())
	}
}

func TestPopMinOrder(t *testing.T) {
	h := NewMapHeap()
	priorities := []uint64{42, 7, 19, 3, 88, 21, 5}
	for i, p := range priorities {
		h.Set(uint64(i), p)
	}

	var popped []uint64
	for h.Len() > 0 {
		e, _ := h.PopMin()
		if h.Contains(e.ID) {
			t.Errorf("popped entry %d still addressable", e.ID)
		}
		popped = append(popped, e.Priority)
	}

	if !sort.SliceIsSorted(popped, func(i, j int) bool { return popped[i] < popped[j] }) {
		t.Errorf("entries not popped in priority order: %v", popped)
	}
	if len(popped) != len(priorities) {
		t.Errorf("expected %d entries, got %d", len(priorities), len(popped))
	}
}
