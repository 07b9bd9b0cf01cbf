package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/remote"
)

// PoolCapacity is the capacity in bytes of the memory pool a Factory must put behind Target.Endpoint
const PoolCapacity = 1 << 20

// Target is what a Factory hands to the test suite
type Target struct {
	// Transport is a fresh, unconnected transport
	Transport remote.ITransport
	// Endpoint is reachable and backed by an empty pool of PoolCapacity bytes
	Endpoint string
	// Unreachable is an endpoint that refuses connections
	Unreachable string
}

// Factory creates a new target for every test. Cleanup should be registered with t.Cleanup.
type Factory func(t *testing.T) Target

// RunTransportTests runs the conformance suite for a remote.ITransport implementation
func RunTransportTests(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Connect", func(t *testing.T) {
			testConnect(t, factory(t))
		})

		t.Run("NotConnected", func(t *testing.T) {
			testNotConnected(t, factory(t))
		})

		t.Run("WriteRead", func(t *testing.T) {
			testWriteRead(t, connected(t, factory(t)))
		})

		t.Run("AsyncSyncEquivalence", func(t *testing.T) {
			testAsyncSyncEquivalence(t, connected(t, factory(t)))
		})

		t.Run("Offsets", func(t *testing.T) {
			testOffsets(t, connected(t, factory(t)))
		})

		t.Run("AllocError", func(t *testing.T) {
			testAllocError(t, connected(t, factory(t)))
		})

		t.Run("IOErrors", func(t *testing.T) {
			testIOErrors(t, connected(t, factory(t)))
		})

		t.Run("ConcurrentAsync", func(t *testing.T) {
			testConcurrentAsync(t, connected(t, factory(t)))
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, connected(t, factory(t)))
		})
	})
}

// --------------------------------------------------------------------------
// Test Cases
// --------------------------------------------------------------------------

func testConnect(t *testing.T, target Target) {
	tr := target.Transport
	defer tr.Close()

	if err := tr.Connect(target.Unreachable); !errors.Is(err, remote.ErrConn) {
		t.Errorf("connecting to %s: expected ErrConn, got %v", target.Unreachable, err)
	}
	if err := tr.Connect(target.Endpoint); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	// idempotent
	if err := tr.Connect(target.Endpoint); err != nil {
		t.Errorf("second Connect failed: %v", err)
	}
}

func testNotConnected(t *testing.T, target Target) {
	tr := target.Transport
	defer tr.Close()

	if _, err := tr.Allocate(8); !errors.Is(err, remote.ErrConn) {
		t.Errorf("Allocate: expected ErrConn, got %v", err)
	}
	if _, err := tr.ReadAsync(remote.Handle{}, 0, 8).Wait(); !errors.Is(err, remote.ErrConn) {
		t.Errorf("ReadAsync: expected ErrConn, got %v", err)
	}
}

func testWriteRead(t *testing.T, tr remote.ITransport) {
	payload := []byte("network attached memory")

	h, err := tr.Allocate(uint64(len(payload)))
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := tr.WriteSync(h, 0, payload); err != nil {
		t.Fatalf("WriteSync failed: %v", err)
	}
	got, err := tr.ReadSync(h, 0, uint64(len(payload)))
	if err != nil {
		t.Fatalf("ReadSync failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("expected %q, got %q", payload, got)
	}

	// overwrite
	if err := tr.WriteSync(h, 0, []byte("NETWORK")); err != nil {
		t.Fatalf("second WriteSync failed: %v", err)
	}
	got, _ = tr.ReadSync(h, 0, uint64(len(payload)))
	if string(got) != "NETWORK attached memory" {
		t.Errorf("unexpected content after overwrite: %q", got)
	}

	if err := tr.Free(h); err != nil {
		t.Errorf("Free failed: %v", err)
	}
}

func testAsyncSyncEquivalence(t *testing.T, tr remote.ITransport) {
	h, err := tr.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	payload := bytes.Repeat([]byte{0xAB, 0xCD}, 32)
	n, err := tr.WriteAsync(h, 0, payload).Wait()
	if err != nil {
		t.Fatalf("WriteAsync failed: %v", err)
	}
	if n != len(payload) {
		t.Errorf("WriteAsync reported %d bytes, expected %d", n, len(payload))
	}

	op := tr.ReadAsync(h, 0, 64)
	asyncData, err := op.Wait()
	if err != nil {
		t.Fatalf("ReadAsync failed: %v", err)
	}
	if !op.TryWait() {
		t.Error("TryWait must report completion after Wait")
	}

	syncData, err := tr.ReadSync(h, 0, 64)
	if err != nil {
		t.Fatalf("ReadSync failed: %v", err)
	}
	if !bytes.Equal(asyncData, syncData) || !bytes.Equal(syncData, payload) {
		t.Errorf("async and sync reads differ:\nasync: %x\nsync:  %x", asyncData, syncData)
	}
}

func testOffsets(t *testing.T, tr remote.ITransport) {
	h, err := tr.Allocate(32)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		chunk := bytes.Repeat([]byte{byte('a' + i)}, 8)
		if err := tr.WriteSync(h, uint64(i*8), chunk); err != nil {
			t.Fatalf("write of chunk %d failed: %v", i, err)
		}
	}

	got, err := tr.ReadSync(h, 12, 8)
	if err != nil {
		t.Fatalf("ReadSync failed: %v", err)
	}
	if string(got) != "bbbbcccc" {
		t.Errorf("expected bbbbcccc, got %q", got)
	}

	// zero length reads are valid
	got, err = tr.ReadSync(h, 32, 0)
	if err != nil || len(got) != 0 {
		t.Errorf("zero length read: got %q, %v", got, err)
	}
}

func testAllocError(t *testing.T, tr remote.ITransport) {
	if _, err := tr.Allocate(PoolCapacity + 1); !errors.Is(err, remote.ErrAlloc) {
		t.Errorf("expected ErrAlloc for oversized allocation, got %v", err)
	}

	// the pool is still usable
	if _, err := tr.Allocate(PoolCapacity / 2); err != nil {
		t.Errorf("allocation after rejection failed: %v", err)
	}
}

func testIOErrors(t *testing.T, tr remote.ITransport) {
	h, err := tr.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if _, err := tr.ReadSync(h, 8, 16); !errors.Is(err, remote.ErrIO) {
		t.Errorf("out of bounds read: expected ErrIO, got %v", err)
	}
	if err := tr.WriteSync(h, 16, []byte{1}); !errors.Is(err, remote.ErrIO) {
		t.Errorf("out of bounds write: expected ErrIO, got %v", err)
	}

	forged := h
	forged.Key++
	if _, err := tr.ReadSync(forged, 0, 1); !errors.Is(err, remote.ErrIO) {
		t.Errorf("read with wrong key: expected ErrIO, got %v", err)
	}

	if err := tr.Free(h); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if _, err := tr.ReadAsync(h, 0, 1).Wait(); !errors.Is(err, remote.ErrIO) {
		t.Errorf("read after free: expected ErrIO, got %v", err)
	}
	if err := tr.Free(h); !errors.Is(err, remote.ErrIO) {
		t.Errorf("double free: expected ErrIO, got %v", err)
	}
}

func testConcurrentAsync(t *testing.T, tr remote.ITransport) {
	const regions = 32

	handles := make([]remote.Handle, regions)
	for i := range handles {
		h, err := tr.Allocate(16)
		if err != nil {
			t.Fatalf("Allocate %d failed: %v", i, err)
		}
		handles[i] = h
	}

	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func(i int, h remote.Handle) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf("region-%09d", i))
			if _, err := tr.WriteAsync(h, 0, payload).Wait(); err != nil {
				t.Errorf("write %d failed: %v", i, err)
			}
		}(i, h)
	}
	wg.Wait()

	reads := make([]*async.Op[[]byte], regions)
	for i, h := range handles {
		reads[i] = tr.ReadAsync(h, 0, 16)
	}
	for i, op := range reads {
		got, err := op.Wait()
		if err != nil {
			t.Errorf("read %d failed: %v", i, err)
			continue
		}
		if want := fmt.Sprintf("region-%09d", i); string(got) != want {
			t.Errorf("region %d: expected %q, got %q", i, want, got)
		}
	}
}

func testClose(t *testing.T, tr remote.ITransport) {
	h, err := tr.Allocate(8)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := tr.ReadSync(h, 0, 8); !errors.Is(err, remote.ErrConn) {
		t.Errorf("read after close: expected ErrConn, got %v", err)
	}
	// closing twice is harmless
	if err := tr.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// connected connects the target transport and closes it when the test ends
func connected(t *testing.T, target Target) remote.ITransport {
	if err := target.Transport.Connect(target.Endpoint); err != nil {
		t.Fatalf("Connect to %s failed: %v", target.Endpoint, err)
	}
	t.Cleanup(func() { _ = target.Transport.Close() })
	return target.Transport
}
