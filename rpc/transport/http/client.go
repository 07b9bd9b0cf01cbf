package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/remote"
	"github.com/ValentinKolb/dMem/rpc/common"
	"github.com/ValentinKolb/dMem/rpc/transport"
)

const dialTimeout = 5 * time.Second

// NewHttpClientTransport creates a client transport sending every request as a POST to <endpoint>/<shardId>
func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	mu         sync.RWMutex
	serverURLs []*url.URL
	client     *http.Client
	counter    atomic.Uint32
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *httpClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return remote.NewError(remote.RetCConnError, nil, "no endpoints provided")
	}

	parsedURLs := make([]*url.URL, len(config.Transport.Endpoints))
	for i, server := range config.Transport.Endpoints {
		if !strings.Contains(server, "://") {
			server = "http://" + server
		}
		parsedURL, err := url.Parse(strings.TrimSuffix(server, "/"))
		if err != nil {
			return remote.NewError(remote.RetCConnError, err, "invalid endpoint %q", server)
		}
		parsedURLs[i] = parsedURL
	}

	// fail early like the stream transports do, at least one endpoint must accept connections
	var lastErr error
	reachable := 0
	for _, u := range parsedURLs {
		conn, err := net.DialTimeout("tcp", hostPort(u), dialTimeout)
		if err != nil {
			Logger.Warningf("Endpoint %s is not reachable: %v", u, err)
			lastErr = err
			continue
		}
		_ = conn.Close()
		reachable++
	}
	if reachable == 0 {
		return remote.NewError(remote.RetCConnError, lastErr, "failed to connect to any endpoint")
	}

	perHost := max(1, config.Transport.ConnectionsPerEndpoint)
	client := &http.Client{
		Timeout: time.Duration(config.TimeoutSecond) * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        perHost * len(parsedURLs),
			MaxIdleConnsPerHost: perHost,
			IdleConnTimeout:     90 * time.Second,
			WriteBufferSize:     config.Transport.SocketConf.WriteBufferSize,
			ReadBufferSize:      config.Transport.SocketConf.ReadBufferSize,
		},
	}

	t.mu.Lock()
	t.client = client
	t.serverURLs = parsedURLs
	t.mu.Unlock()

	return nil
}

func (t *httpClientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	t.mu.RLock()
	client, urls := t.client, t.serverURLs
	t.mu.RUnlock()

	if client == nil {
		return nil, remote.NewError(remote.RetCConnError, nil, "http transport not connected")
	}

	// round-robin
	serverURL := urls[t.counter.Add(1)%uint32(len(urls))]
	requestURL := fmt.Sprintf("%s/%d", serverURL.String(), shardId)

	httpResponse, err := client.Post(requestURL, "application/octet-stream", bytes.NewReader(req))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, remote.NewError(remote.RetCIOError, err, "request to %s timed out", requestURL)
		}
		return nil, remote.NewError(remote.RetCConnError, err, "request to %s failed", requestURL)
	}
	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 512))
		return nil, remote.NewError(remote.RetCIOError, nil, "http error: %s: %s", httpResponse.Status, strings.TrimSpace(string(msg)))
	}

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, remote.NewError(remote.RetCConnError, err, "failed to read response from %s", requestURL)
	}
	return body, nil
}

// hostPort returns host:port of u, adding the default port of the scheme
func hostPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}

// SendAsync runs Send in its own goroutine, net/http has no pipelining to hook into
func (t *httpClientTransport) SendAsync(shardId uint64, req []byte) *async.Op[[]byte] {
	return async.Go(func() ([]byte, error) {
		return t.Send(shardId, req)
	})
}

func (t *httpClientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.client = nil
	t.serverURLs = nil

	return nil
}
