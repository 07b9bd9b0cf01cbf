package cache

import (
	"reflect"
	"testing"
)

func TestWrapAhead(t *testing.T) {
	tests := []struct {
		name                      string
		first, last, i, readAhead uint64
		want                      []uint64
	}{
		{"Inside", 0, 4, 0, 2, []uint64{1, 2}},
		{"WrapsAtLast", 0, 4, 4, 2, []uint64{0, 1}},
		{"WrapsBeforeLast", 0, 4, 3, 3, []uint64{4, 0, 1}},
		{"Offset", 10, 14, 13, 4, []uint64{14, 10, 11, 12}},
		{"ReadAheadLargerThanRange", 0, 2, 1, 10, []uint64{2, 0}},
		{"SingleID", 7, 7, 7, 3, []uint64{}},
		{"NoReadAhead", 0, 10, 5, 0, []uint64{}},
		{"FullRange", 0, ^uint64(0), ^uint64(0), 2, []uint64{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapAhead(tt.first, tt.last, tt.i, tt.readAhead)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestOrderedRangeOutside(t *testing.T) {
	r := OrderedRange{First: 5, Last: 9, ReadAhead: 2}
	for _, id := range []uint64{0, 4, 10} {
		if ids := r.Next(id); len(ids) != 0 {
			t.Errorf("Next(%d): expected nothing, got %v", id, ids)
		}
	}
}

func TestFIFOPolicy(t *testing.T) {
	p := NewFIFOPolicy()

	for id := uint64(1); id <= 3; id++ {
		if victims := p.Access(id, true, 3); len(victims) != 0 {
			t.Fatalf("unexpected victims %v", victims)
		}
	}

	// accesses do not matter
	p.Access(1, false, 3)
	if victims := p.Access(4, true, 3); !reflect.DeepEqual(victims, []uint64{1}) {
		t.Errorf("expected [1], got %v", victims)
	}

	p.Remove(2)
	if p.Len() != 2 {
		t.Errorf("expected 2 ids, got %d", p.Len())
	}

	// shrinking capacity evicts several at once
	p.Access(5, true, 3)
	if victims := p.Access(6, true, 1); !reflect.DeepEqual(victims, []uint64{3, 4, 5}) {
		t.Errorf("expected [3 4 5], got %v", victims)
	}
}

func TestLRUPolicy(t *testing.T) {
	p := NewLRUPolicy()

	p.Access(1, true, 3)
	p.Access(2, true, 3)
	p.Access(3, true, 3)
	p.Access(1, false, 3)

	if victims := p.Access(4, true, 3); !reflect.DeepEqual(victims, []uint64{2}) {
		t.Errorf("expected [2], got %v", victims)
	}

	// untracked ids are ignored
	if victims := p.Access(99, false, 3); len(victims) != 0 || p.Len() != 3 {
		t.Errorf("access of an untracked id changed the policy: %v, len %d", victims, p.Len())
	}

	p.Remove(3)
	p.Access(5, true, 3)
	if victims := p.Access(6, true, 3); !reflect.DeepEqual(victims, []uint64{1}) {
		t.Errorf("expected [1], got %v", victims)
	}
}

func TestRandomPolicy(t *testing.T) {
	t.Run("NeverEvictsInserted", func(t *testing.T) {
		p := NewRandomPolicy(3)
		for id := uint64(0); id < 1000; id++ {
			for _, v := range p.Access(id, true, 4) {
				if v == id {
					t.Fatalf("evicted the id %d that was just inserted", id)
				}
			}
			if p.Len() > 4 {
				t.Fatalf("%d ids tracked with capacity 4", p.Len())
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		run := func() []uint64 {
			p := NewRandomPolicy(11)
			var all []uint64
			for id := uint64(0); id < 50; id++ {
				all = append(all, p.Access(id, true, 5)...)
			}
			return all
		}
		if a, b := run(), run(); !reflect.DeepEqual(a, b) {
			t.Error("same seed produced different evictions")
		}
	})

	t.Run("Remove", func(t *testing.T) {
		p := NewRandomPolicy(1)
		p.Access(1, true, 3)
		p.Access(2, true, 3)
		p.Remove(1)
		p.Remove(1)
		if p.Len() != 1 {
			t.Errorf("expected 1 id, got %d", p.Len())
		}
		p.Access(3, true, 3)
		p.Access(4, true, 3)
		if victims := p.Access(5, true, 3); len(victims) != 1 || victims[0] == 5 {
			t.Errorf("expected one victim other than 5, got %v", victims)
		}
	})
}

func TestStridePolicy(t *testing.T) {
	tests := []struct {
		name     string
		accesses []uint64
		want     []uint64 // result of the last access
	}{
		{"TooShort", []uint64{1, 2}, nil},
		{"Sequential", []uint64{1, 2, 3}, []uint64{4, 5, 6}},
		{"Stride", []uint64{10, 20, 30}, []uint64{40, 50, 60}},
		{"Backward", []uint64{30, 25, 20}, []uint64{15, 10, 5}},
		{"BackwardStopsAtZero", []uint64{6, 4, 2}, []uint64{0}},
		{"Broken", []uint64{1, 2, 3, 7}, nil},
		{"Repeated", []uint64{5, 5, 5}, nil},
		{"Recovers", []uint64{1, 2, 3, 7, 11, 15}, []uint64{19, 23, 27}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewStridePolicy(3)
			var got []uint64
			for _, id := range tt.accesses {
				got = p.Next(id)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
