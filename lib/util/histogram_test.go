package util

import "testing"

func TestSizeHistogram(t *testing.T) {
	h := NewSizeHistogram()

	if h.Average() != 0 || h.Median() != 0 {
		t.Error("empty histogram should report zero")
	}

	for i := 0; i < 90; i++ {
		h.AddSample(100) // bucket (64, 256]
	}
	for i := 0; i < 10; i++ {
		h.AddSample(1 << 20) // bucket (256K, 1M]
	}

	if h.Count() != 100 {
		t.Errorf("expected 100 samples, got %d", h.Count())
	}
	if want := uint64(90*100+10*(1<<20)) / 100; h.Average() != want {
		t.Errorf("expected average %d, got %d", want, h.Average())
	}
	if m := h.Median(); m != (64+256)/2 {
		t.Errorf("expected median estimate %d, got %d", (64+256)/2, m)
	}
	if p := h.Percentile(99); p != (256<<10+1<<20)/2 {
		t.Errorf("unexpected p99 estimate %d", p)
	}
	if h.Percentile(101) != 0 {
		t.Error("invalid percentile should return 0")
	}

	h.Reset()
	if h.Count() != 0 {
		t.Error("reset should drop samples")
	}
}
