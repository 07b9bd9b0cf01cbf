package util

import (
	"sync"
	"testing"
	"time"
)

type frame struct {
	producer int
	seq      int
}

func TestQueuePushRecv(t *testing.T) {
	q := NewMPSCQueue[int]()
	defer q.Close()

	for i := 0; i < 10; i++ {
		v := i
		if !q.Push(&v) {
			t.Fatalf("failed to push %d", i)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case v := <-q.Recv():
			if *v != i {
				t.Errorf("expected %d, got %d", i, *v)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %d", i)
		}
	}

	if q.Push(nil) {
		t.Error("pushing nil should be rejected")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewMPSCQueue[frame]()
	defer q.Close()

	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if !q.Push(&frame{producer: p, seq: i}) {
					t.Errorf("producer %d failed to push %d", p, i)
				}
			}
		}(p)
	}

	// per producer order must be kept
	last := make(map[int]int)
	for p := 0; p < producers; p++ {
		last[p] = -1
	}

	for received := 0; received < producers*perProducer; received++ {
		select {
		case f := <-q.Recv():
			if f.seq != last[f.producer]+1 {
				t.Fatalf("producer %d: expected seq %d, got %d", f.producer, last[f.producer]+1, f.seq)
			}
			last[f.producer] = f.seq
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout after %d frames", received)
		}
	}

	wg.Wait()
}

func TestQueueClose(t *testing.T) {
	q := NewMPSCQueue[int]()

	for i := 0; i < 5; i++ {
		v := i
		q.Push(&v)
	}
	q.Close()

	if !q.IsClosed() {
		t.Error("queue should report closed")
	}
	v := 100
	if q.Push(&v) {
		t.Error("push after close should fail")
	}

	// queued values are still delivered
	for i := 0; i < 5; i++ {
		select {
		case v := <-q.Recv():
			if *v != i {
				t.Errorf("expected %d, got %d", i, *v)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %d after close", i)
		}
	}

	select {
	case _, ok := <-q.Recv():
		if ok {
			t.Error("channel should be closed once drained")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed")
	}
}

func BenchmarkQueueMultiProducer(b *testing.B) {
	q := NewMPSCQueue[int]()
	defer q.Close()

	go func() {
		for range q.Recv() {
		}
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			v := i
			q.Push(&v)
			i++
		}
	})
}
