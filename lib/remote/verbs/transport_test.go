package verbs

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dMem/lib/memstore"
	"github.com/ValentinKolb/dMem/lib/remote"
	remotetesting "github.com/ValentinKolb/dMem/lib/remote/testing"
)

var nextPort atomic.Int32

func init() {
	nextPort.Store(7470)
}

// newTarget registers a fresh pool on its own port
func newTarget(t *testing.T) (remotetesting.Target, *Loopback) {
	connector := NewLoopbackConnector()
	port := int(nextPort.Add(1))
	connector.Register("127.0.0.1", port, memstore.NewPool(remotetesting.PoolCapacity))
	t.Cleanup(func() { connector.Unregister("127.0.0.1", port) })

	return remotetesting.Target{
		Transport:   NewTransport(connector),
		Endpoint:    remote.Endpoint("127.0.0.1", port),
		Unreachable: remote.Endpoint("127.0.0.1", port+10000),
	}, connector
}

func TestTransport(t *testing.T) {
	remotetesting.RunTransportTests(t, "Loopback", func(t *testing.T) remotetesting.Target {
		target, _ := newTarget(t)
		return target
	})
}

func TestConnectOtherEndpoint(t *testing.T) {
	target, connector := newTarget(t)
	connector.Register("127.0.0.1", 1, memstore.NewPool(0))
	defer connector.Unregister("127.0.0.1", 1)

	tr := target.Transport
	defer tr.Close()

	if err := tr.Connect(target.Endpoint); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := tr.Connect("127.0.0.1:1"); !errors.Is(err, remote.ErrConn) {
		t.Errorf("expected ErrConn when already connected elsewhere, got %v", err)
	}
}

func TestInvalidEndpoint(t *testing.T) {
	tr := NewTransport(NewLoopbackConnector())
	for _, endpoint := range []string{"", "no-port", "host:port"} {
		if err := tr.Connect(endpoint); !errors.Is(err, remote.ErrConn) {
			t.Errorf("Connect(%q): expected ErrConn, got %v", endpoint, err)
		}
	}
}

func TestPostedCount(t *testing.T) {
	target, connector := newTarget(t)
	tr := target.Transport
	if err := tr.Connect(target.Endpoint); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	h, err := tr.Allocate(8)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	// control path operations do not post work requests
	if n := connector.Posted.Load(); n != 0 {
		t.Errorf("expected 0 posted requests after Allocate, got %d", n)
	}

	_ = tr.WriteSync(h, 0, []byte("12345678"))
	_, _ = tr.ReadSync(h, 0, 8)
	_, _ = tr.ReadAsync(h, 4, 4).Wait()

	if n := connector.Posted.Load(); n != 3 {
		t.Errorf("expected 3 posted requests, got %d", n)
	}
}

func TestReconnect(t *testing.T) {
	target, _ := newTarget(t)
	tr := target.Transport

	if err := tr.Connect(target.Endpoint); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	h, err := tr.Allocate(4)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := tr.WriteSync(h, 0, []byte("keep")); err != nil {
		t.Fatalf("WriteSync failed: %v", err)
	}
	_ = tr.Close()

	// regions live on the server and survive the client connection
	if err := tr.Connect(target.Endpoint); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	defer tr.Close()
	got, err := tr.ReadSync(h, 0, 4)
	if err != nil || string(got) != "keep" {
		t.Errorf("expected (keep, nil), got (%q, %v)", got, err)
	}
}

func TestServerErrorsAreIOErrors(t *testing.T) {
	target, _ := newTarget(t)
	tr := target.Transport
	if err := tr.Connect(target.Endpoint); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer tr.Close()

	_, err := tr.ReadSync(remote.Handle{Addr: 0xdead, Key: 1}, 0, 1)
	if !errors.Is(err, remote.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	// the pool error is kept as cause
	if !errors.Is(err, memstore.ErrNoRegion) {
		t.Errorf("expected the cause to be ErrNoRegion, got %v", err)
	}
}
