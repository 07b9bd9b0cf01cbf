package unix

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dMem/lib/remote"
	"github.com/ValentinKolb/dMem/rpc/common"
	"github.com/ValentinKolb/dMem/rpc/transport"
)

func socketPath(t *testing.T) string {
	dir, err := os.MkdirTemp("", "dmem")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "t.sock")
}

// serve starts a server transport with handler on path and waits until it accepts connections
func serve(t *testing.T, path string, handler transport.ServerHandleFunc) transport.IRPCServerTransport {
	s := NewUnixServerTransport()
	s.RegisterHandler(handler)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: path, WorkersPerConn: 8}}); err != nil {
			t.Errorf("Listen failed: %v", err)
		}
	}()
	t.Cleanup(func() {
		_ = s.Close()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("unix", path)
		if err == nil {
			_ = conn.Close()
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func connect(t *testing.T, path string, timeoutSecond, conns int) transport.IRPCClientTransport {
	c := NewUnixClientTransport()
	err := c.Connect(common.ClientConfig{
		TimeoutSecond: timeoutSecond,
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{path},
			ConnectionsPerEndpoint: conns,
		},
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// echo prefixes the request with the shard id
func echo(shardId uint64, req []byte) []byte {
	return append([]byte(fmt.Sprintf("%d:", shardId)), req...)
}

func TestSend(t *testing.T) {
	path := socketPath(t)
	serve(t, path, echo)
	c := connect(t, path, 5, 1)

	resp, err := c.Send(7, []byte("ping"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp) != "7:ping" {
		t.Errorf("expected 7:ping, got %q", resp)
	}

	// empty payloads are valid frames
	resp, err = c.Send(1, nil)
	if err != nil || string(resp) != "1:" {
		t.Errorf("expected (1:, nil), got (%q, %v)", resp, err)
	}
}

func TestSendAsyncMultiplexed(t *testing.T) {
	path := socketPath(t)

	// responses leave in reverse order of arrival for the first requests
	var slow sync.WaitGroup
	slow.Add(1)
	serve(t, path, func(shardId uint64, req []byte) []byte {
		if shardId == 0 {
			slow.Wait()
		}
		return echo(shardId, req)
	})
	c := connect(t, path, 5, 2)

	first := c.SendAsync(0, []byte("first"))
	for i := 1; i <= 100; i++ {
		payload := bytes.Repeat([]byte{byte(i)}, i*10)
		resp, err := c.SendAsync(uint64(i), payload).Wait()
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if !bytes.Equal(resp, echo(uint64(i), payload)) {
			t.Fatalf("request %d got a wrong response", i)
		}
	}
	if first.TryWait() {
		t.Fatal("blocked request completed too early")
	}

	slow.Done()
	if resp, err := first.Wait(); err != nil || string(resp) != "0:first" {
		t.Errorf("expected (0:first, nil), got (%q, %v)", resp, err)
	}
}

func TestConcurrentSend(t *testing.T) {
	path := socketPath(t)
	serve(t, path, echo)
	c := connect(t, path, 5, 4)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				req := []byte(fmt.Sprintf("g%d-%d", g, i))
				resp, err := c.Send(uint64(g), req)
				if err != nil {
					t.Errorf("send failed: %v", err)
					return
				}
				if !bytes.Equal(resp, echo(uint64(g), req)) {
					t.Errorf("expected %q, got %q", echo(uint64(g), req), resp)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestTimeout(t *testing.T) {
	path := socketPath(t)
	release := make(chan struct{})
	serve(t, path, func(shardId uint64, req []byte) []byte {
		<-release
		return req
	})
	defer close(release)

	c := connect(t, path, 1, 1)

	start := time.Now()
	_, err := c.Send(0, []byte("never answered in time"))
	if !errors.Is(err, remote.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond || elapsed > 3*time.Second {
		t.Errorf("timeout fired after %s, expected about 1s", elapsed)
	}
}

func TestConnectionLoss(t *testing.T) {
	path := socketPath(t)
	block := make(chan struct{})
	s := NewUnixServerTransport()
	s.RegisterHandler(func(shardId uint64, req []byte) []byte {
		if shardId == 0 {
			<-block
		}
		return req
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: path}})
	}()
	waitForSocket(t, path)

	c := connect(t, path, 0, 1)
	pending := c.SendAsync(0, []byte("lost"))

	// server goes away with the request in flight
	time.Sleep(50 * time.Millisecond)
	_ = s.Close()
	close(block)
	<-done

	if _, err := pending.Wait(); !errors.Is(err, remote.ErrConn) {
		t.Fatalf("expected ErrConn for the pending request, got %v", err)
	}

	// a new server on the same socket is picked up by the reconnect loop
	serve(t, path, echo)
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := c.Send(3, []byte("back"))
		if err == nil {
			if string(resp) != "3:back" {
				t.Errorf("expected 3:back, got %q", resp)
			}
			return
		}
		if !errors.Is(err, remote.ErrConn) {
			t.Fatalf("expected ErrConn while reconnecting, got %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatalf("client did not reconnect: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestConnectRefused(t *testing.T) {
	c := NewUnixClientTransport()
	err := c.Connect(common.ClientConfig{Transport: common.ClientTransportConfig{Endpoints: []string{socketPath(t)}}})
	if !errors.Is(err, remote.ErrConn) {
		t.Errorf("expected ErrConn, got %v", err)
	}

	if _, err := c.Send(0, []byte("x")); !errors.Is(err, remote.ErrConn) {
		t.Errorf("Send without connection: expected ErrConn, got %v", err)
	}
}

func TestCloseFailsPending(t *testing.T) {
	path := socketPath(t)
	release := make(chan struct{})
	serve(t, path, func(shardId uint64, req []byte) []byte {
		<-release
		return req
	})
	defer close(release)

	c := NewUnixClientTransport()
	if err := c.Connect(common.ClientConfig{Transport: common.ClientTransportConfig{Endpoints: []string{path}}}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	op := c.SendAsync(0, []byte("pending"))
	time.Sleep(20 * time.Millisecond)
	_ = c.Close()

	if _, err := op.Wait(); !errors.Is(err, remote.ErrConn) {
		t.Errorf("expected ErrConn, got %v", err)
	}
}

func waitForSocket(t *testing.T, path string) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("unix", path)
		if err == nil {
			_ = conn.Close()
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
