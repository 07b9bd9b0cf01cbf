package cache

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/dMem/lib/objstore"
)

func TestRangeIterator(t *testing.T) {
	store, tr := newStore(t)
	for id := uint64(0); id < 20; id++ {
		if err := store.Put(id, value(id)); err != nil {
			t.Fatal(err)
		}
	}
	c := newCache(t, store, nil, 8)
	it := NewRangeIterator(c, 3, 0, 19)

	t.Run("Cursor", func(t *testing.T) {
		count := 0
		for cur := it.Begin(); !cur.Equal(it.End()); cur.Next() {
			v, err := cur.Value()
			if err != nil {
				t.Fatalf("Value at %d failed: %v", cur.Pos(), err)
			}
			if v != value(cur.Pos()) {
				t.Errorf("at %d: expected %q, got %q", cur.Pos(), value(cur.Pos()), v)
			}
			count++
		}
		if count != 20 {
			t.Errorf("expected 20 values, got %d", count)
		}
		if c.Len() > 8 {
			t.Errorf("%d entries exceed the capacity", c.Len())
		}
	})

	t.Run("PrefetchesAhead", func(t *testing.T) {
		tr.Reset()
		cur := it.Begin()
		cur.Next()
		cur.Next() // 2
		if _, err := cur.Value(); err != nil {
			t.Fatal(err)
		}
		for _, id := range []uint64{3, 4, 5} {
			if !c.Contains(id) {
				t.Errorf("id %d should be prefetched", id)
			}
		}
	})

	t.Run("WrapsAtEnd", func(t *testing.T) {
		cur := it.Begin()
		for cur.Pos() != 19 {
			cur.Next()
		}
		if _, err := cur.Value(); err != nil {
			t.Fatal(err)
		}
		for _, id := range []uint64{0, 1, 2} {
			if !c.Contains(id) {
				t.Errorf("id %d should be prefetched after the last position", id)
			}
		}
	})

	t.Run("All", func(t *testing.T) {
		// restartable
		for round := 0; round < 2; round++ {
			next := uint64(0)
			for id, v := range it.All() {
				if id != next || v != value(id) {
					t.Fatalf("round %d: expected (%d, %q), got (%d, %q)", round, next, value(next), id, v)
				}
				next++
			}
			if next != 20 || it.Err() != nil {
				t.Errorf("round %d: stopped at %d with %v", round, next, it.Err())
			}
		}
	})

	t.Run("Break", func(t *testing.T) {
		seen := 0
		for id := range it.All() {
			seen++
			if id == 4 {
				break
			}
		}
		if seen != 5 {
			t.Errorf("expected 5 values before break, got %d", seen)
		}
	})
}

func TestRangeIteratorErrors(t *testing.T) {
	store, _ := newStore(t)
	for id := uint64(0); id < 5; id++ {
		_ = store.Put(id, value(id))
	}
	c := newCache(t, store, nil, 4)

	// ids 5 and up were never put, the end of the data ends the loop
	it := NewRangeIterator(c, 2, 0, 9)
	count := 0
	for range it.All() {
		count++
	}
	if count != 5 {
		t.Errorf("expected 5 values, got %d", count)
	}
	if !errors.Is(it.Err(), objstore.ErrNoSuchID) {
		t.Errorf("expected ErrNoSuchID, got %v", it.Err())
	}

	end := it.End()
	if end.Valid() {
		t.Error("end cursor must not be valid")
	}
	if _, err := end.Value(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if end.Pos() != 10 {
		t.Errorf("expected end at 10, got %d", end.Pos())
	}
}

func TestRangeIteratorSingle(t *testing.T) {
	store, _ := newStore(t)
	_ = store.Put(^uint64(0), "last")
	c := newCache(t, store, nil, 2)

	// the range ends at the largest id, iteration must still stop
	it := NewRangeIterator(c, 4, ^uint64(0), ^uint64(0))
	count := 0
	for id, v := range it.All() {
		if id != ^uint64(0) || v != "last" {
			t.Errorf("unexpected (%d, %q)", id, v)
		}
		count++
	}
	if count != 1 || it.Err() != nil {
		t.Errorf("expected 1 value and no error, got %d and %v", count, it.Err())
	}
}

func TestRangeIteratorEndAtLargestID(t *testing.T) {
	const last = ^uint64(0)
	store, _ := newStore(t)
	for id := last - 2; ; id++ {
		_ = store.Put(id, value(id))
		if id == last {
			break
		}
	}
	c := newCache(t, store, nil, 4)

	t.Run("FullRange", func(t *testing.T) {
		it := NewRangeIterator(c, 0, 0, last)
		if it.Begin().Equal(it.End()) {
			t.Fatal("begin of the full id range must differ from end")
		}
		if !it.Begin().Valid() {
			t.Error("begin must be valid")
		}

		cur := Cursor[string]{it: it, pos: last}
		if !cur.Valid() || cur.Equal(it.End()) {
			t.Fatal("cursor at last must be valid")
		}
		cur.Next()
		if !cur.Equal(it.End()) || cur.Valid() {
			t.Errorf("cursor after last must equal end, got pos %d", cur.Pos())
		}
		if cur.Equal(it.Begin()) {
			t.Error("cursor after last must not equal begin")
		}
	})

	t.Run("CursorLoop", func(t *testing.T) {
		it := NewRangeIterator(c, 1, last-2, last)
		var ids []uint64
		for cur := it.Begin(); !cur.Equal(it.End()); cur.Next() {
			if _, err := cur.Value(); err != nil {
				t.Fatalf("Value at %d failed: %v", cur.Pos(), err)
			}
			ids = append(ids, cur.Pos())
			if len(ids) > 3 {
				t.Fatalf("loop did not stop at end: %v", ids)
			}
		}
		if len(ids) != 3 || ids[0] != last-2 || ids[2] != last {
			t.Errorf("expected the last 3 ids, got %v", ids)
		}
	})
}
